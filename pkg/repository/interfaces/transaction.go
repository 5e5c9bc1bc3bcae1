package interfaces

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// TransactionBeginner opens a database transaction that one or more
// repository calls can share via their optional tx argument. The Callback
// Reconciler uses it to commit a task's status change, its queue entry's
// terminal transition, and its DispatchLog row as one unit (spec §5's
// locking/transaction discipline).
type TransactionBeginner interface {
	Transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}
