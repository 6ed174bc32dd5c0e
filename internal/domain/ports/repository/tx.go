package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside one database transaction and hands the
// infra-defined handle (pgx.Tx for Postgres) to repositories as tx.
// Repositories MUST accept a nil tx and fall back to the pool.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//		if err := questions.Save(ctx, tx, q); err != nil {
//			return err
//		}
//		return jobs.Create(ctx, tx, job)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
