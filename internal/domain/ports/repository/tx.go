package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined executor handle (pgx.Tx for Postgres). Repositories
// accept nil and then run against the pool.
type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside one database transaction and hands it the
// handle. Billing upserts deliberately run without it; each statement is
// idempotent on its own key. It is used where two rows must change together,
// such as a profile and its user's contact columns.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
