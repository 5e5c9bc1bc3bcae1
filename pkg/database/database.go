package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/developer-mesh/dispatch-core/pkg/database/migration"
	"github.com/jmoiron/sqlx"

	// Import PostgreSQL driver
	_ "github.com/lib/pq"
)

// Common errors
var (
	ErrInvalidDatabaseConfig = errors.New("invalid database configuration: missing required fields")
	ErrNotFound              = errors.New("record not found")
	ErrDuplicateKey          = errors.New("duplicate key violation")
)

// sanitizeDSN removes sensitive information from a DSN for safe logging.
func sanitizeDSN(dsn string) string {
	if strings.Contains(dsn, "password=") {
		parts := strings.Split(dsn, " ")
		var sanitized []string
		for _, part := range parts {
			if strings.HasPrefix(part, "password=") {
				sanitized = append(sanitized, "password=***")
			} else {
				sanitized = append(sanitized, part)
			}
		}
		return strings.Join(sanitized, " ")
	}
	if strings.Contains(dsn, "@") {
		if idx := strings.Index(dsn, "://"); idx != -1 {
			if atIdx := strings.Index(dsn[idx:], "@"); atIdx != -1 {
				prefix := dsn[:idx+3]
				suffix := dsn[idx+atIdx:]
				return prefix + "***:***" + suffix
			}
		}
	}
	return dsn
}

// Database represents the database access layer.
type Database struct {
	db         *sqlx.DB
	config     Config
	statements map[string]*sqlx.Stmt
}

// NewDatabase opens a connection pool and runs migrations if configured.
func NewDatabase(ctx context.Context, cfg Config) (*Database, error) {
	dsn := cfg.DSN
	if dsn == "" {
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, sslMode)
	}
	log.Printf("Connecting to database: %s", sanitizeDSN(dsn))

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	database := &Database{
		db:         db,
		config:     cfg,
		statements: make(map[string]*sqlx.Stmt),
	}

	if cfg.AutoMigrate {
		log.Println("Running automatic database migrations...")
		migrationOpts := migration.DefaultOptions()
		migrationOpts.Path = cfg.MigrationsPath
		migrationOpts.FailOnError = cfg.FailOnMigrationError

		if err := migration.AutoMigrate(ctx, db, cfg.Driver, migrationOpts); err != nil {
			if migrationOpts.FailOnError {
				if closeErr := db.Close(); closeErr != nil {
					log.Printf("Failed to close database after migration error: %v", closeErr)
				}
				return nil, fmt.Errorf("database migration failed: %w", err)
			}
			log.Printf("Warning: Database migration had errors but continuing: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}
	}

	if err := database.prepareStatementsWithRetry(ctx); err != nil {
		log.Printf("Warning: Failed to prepare statements after retries: %v", err)
	}

	return database, nil
}

// prepareStatementsWithRetry prepares statements with exponential backoff,
// covering the window between connection and migrations completing.
func (d *Database) prepareStatementsWithRetry(ctx context.Context) error {
	maxRetries := 5
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := d.prepareStatements(ctx)
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "does not exist") {
			if i < maxRetries-1 {
				delay := baseDelay * (1 << uint(i))
				if delay > 2*time.Second {
					delay = 2 * time.Second
				}
				log.Printf("Failed to prepare statements (attempt %d/%d), retrying in %v: %v",
					i+1, maxRetries, delay, err)

				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		} else {
			return err
		}
	}

	return fmt.Errorf("failed to prepare statements after %d attempts", maxRetries)
}

// prepareStatements prepares five hot-path queries. The repositories build
// their own SQL and do not use these statements.
func (d *Database) prepareStatements(ctx context.Context) error {
	queries := map[string]string{
		"get_task":             "SELECT * FROM tasks WHERE id = $1 AND deleted_at IS NULL",
		"get_next_tasks":       "SELECT * FROM tasks WHERE status = 'next' AND deleted_at IS NULL ORDER BY urgency DESC, importance DESC LIMIT $1",
		"get_live_queue_entry": "SELECT * FROM execution_queue WHERE task_id = $1 AND status IN ('queued','claimed','dispatched')",
		"count_quarantine":     "SELECT COUNT(*) FROM dispatch_log WHERE task_id = $1 AND action = 'quarantined'",
		"get_blocked_tasks":    "SELECT * FROM tasks WHERE status = 'blocked' AND deleted_at IS NULL",
	}

	for name, query := range queries {
		stmt, err := d.db.PreparexContext(ctx, query)
		if err != nil {
			return err
		}
		d.statements[name] = stmt
	}

	return nil
}

// Transaction executes a function within a database transaction.
func (d *Database) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if d == nil || d.db == nil {
		panic("database.Transaction: Database or underlying *sqlx.DB is nil")
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("Failed to rollback transaction: %v (original error: %v)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// Close closes the database connection and any prepared statements.
func (d *Database) Close() error {
	for _, stmt := range d.statements {
		_ = stmt.Close()
	}
	d.statements = make(map[string]*sqlx.Stmt)
	return d.db.Close()
}

// Ping checks if the database connection is alive.
func (d *Database) Ping() error {
	return d.db.Ping()
}

// DB returns the underlying sqlx.DB instance.
func (d *Database) DB() *sqlx.DB {
	return d.db
}

// GetDB returns the underlying sqlx.DB instance.
func (d *Database) GetDB() *sqlx.DB {
	return d.db
}

// NewDatabaseWithConnection wraps an existing connection, used by tests that
// inject a sqlmock-backed *sqlx.DB.
func NewDatabaseWithConnection(db *sqlx.DB) *Database {
	return &Database{
		db:         db,
		statements: make(map[string]*sqlx.Stmt),
	}
}
