package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	classifiederrors "github.com/developer-mesh/dispatch-core/pkg/errors"
)

const (
	tenantIDContextKey = "dispatch_tenant_id"
	userIDContextKey   = "dispatch_user_id"
)

// bearerAuth validates the Authorization header against the configured
// service token and injects the single configured tenant/user into the gin
// context, the single-tenant fallback resolution spec §6 describes.
func bearerAuth(token string, tenantID, userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != token {
			writeError(c, classifiederrors.NewAuthError("bearer_auth", "invalid or missing bearer token"))
			c.Abort()
			return
		}
		c.Set(tenantIDContextKey, tenantID)
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

// passphraseAuth validates the X-Passphrase header callers must present to
// reach the executor-callback endpoints (spec §6).
func passphraseAuth(passphrase string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Passphrase") != passphrase {
			writeError(c, classifiederrors.NewAuthError("passphrase_auth", "invalid or missing X-Passphrase header"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func tenantFromContext(c *gin.Context) uuid.UUID {
	v, _ := c.Get(tenantIDContextKey)
	id, _ := v.(uuid.UUID)
	return id
}

// writeError maps a *errors.ClassifiedError to its declared HTTP shape
// (spec §7); any other error is treated as an unclassified internal error.
func writeError(c *gin.Context, err error) {
	if classified, ok := err.(*classifiederrors.ClassifiedError); ok {
		c.JSON(classifiederrors.HTTPStatus(classified), gin.H{
			"code":    classified.Code,
			"message": classified.Message,
			"details": classified.Details,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    classifiederrors.CodeFatalInternal,
		"message": "internal error",
	})
}
