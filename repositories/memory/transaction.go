package memory

import (
	"context"

	"go.uber.org/zap"
)

type journalContextKey struct{}

type sectionContextKey struct{ recordID string }

// journal collects undo steps for writes made inside a section.
type journal struct {
	undo []func()
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// onRollback registers an undo step when ctx carries a section journal.
func onRollback(ctx context.Context, fn func()) {
	if j, ok := ctx.Value(journalContextKey{}).(*journal); ok {
		j.undo = append(j.undo, fn)
	}
}

// TransactionManager implements repositories.TransactionManager with a
// per-record mutex and an undo journal.
type TransactionManager struct {
	s *Store
}

// InRecordSection executes fn while holding the lock of recordID
func (tm *TransactionManager) InRecordSection(ctx context.Context, recordID string, fn func(ctx context.Context) error) error {
	if ctx.Value(sectionContextKey{recordID}) != nil {
		return fn(ctx)
	}

	unlock := tm.s.locks.Lock(recordID)
	defer unlock()

	j, ok := ctx.Value(journalContextKey{}).(*journal)
	owner := !ok
	if owner {
		j = &journal{}
		ctx = context.WithValue(ctx, journalContextKey{}, j)
	}
	ctx = context.WithValue(ctx, sectionContextKey{recordID}, true)

	defer func() {
		if p := recover(); p != nil {
			if owner {
				j.rollback()
			}
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		if owner {
			j.rollback()
			tm.s.logger.Debug("section rolled back", zap.String("record_id", recordID), zap.Error(err))
		}
		return err
	}
	return nil
}

// readLock holds recordID in shared mode for a read made outside its section,
// so the read waits for an open section to commit or roll back. Inside the
// record's own section it is a no-op.
func (s *Store) readLock(ctx context.Context, recordID string) func() {
	if ctx.Value(sectionContextKey{recordID}) != nil {
		return func() {}
	}
	return s.locks.RLock(recordID)
}
