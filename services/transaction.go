package services

import (
	"context"

	"github.com/medicrypt/recordvault/repositories"
)

// WithRecordSection executes fn inside the exclusive section of recordID.
// Writes commit when fn succeeds and roll back on error or panic.
func WithRecordSection(ctx context.Context, txMgr repositories.TransactionManager, recordID string, fn func(ctx context.Context) error) error {
	return txMgr.InRecordSection(ctx, recordID, fn)
}

// WithRecordSectionResult executes fn inside the exclusive section of
// recordID and returns its result only once the section has committed.
func WithRecordSectionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, recordID string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T

	err := txMgr.InRecordSection(ctx, recordID, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}
