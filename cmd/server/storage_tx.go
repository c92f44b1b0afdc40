package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "vcwallet/pkg/domain-errors"
	"vcwallet/pkg/platform/tx"
)

const defaultStorageTxTimeout = 5 * time.Second

// postgresTx runs storage writes in one transaction carried by the context.
type postgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newPostgresTx(db *sql.DB) *postgresTx {
	return &postgresTx{db: db, timeout: defaultStorageTxTimeout}
}

func (t *postgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return tx.Run(ctx, t.db, fn)
}

// inlineTx is the transactor of the in-memory stores, which have no
// rollback.
type inlineTx struct{}

func (inlineTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
