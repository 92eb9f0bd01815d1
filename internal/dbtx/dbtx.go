// Package dbtx defines the minimal querying surface the domain packages
// need, satisfied by both *pgxpool.Pool and pgx.Tx so repository code can
// run either directly against the pool or inside an explicit transaction.
package dbtx

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// DBTX is the subset of pgxpool.Pool / pgx.Tx used by the repository layer.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
