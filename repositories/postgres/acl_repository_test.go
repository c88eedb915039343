package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/medicrypt/recordvault/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	selectEntryPattern  = regexp.QuoteMeta("SELECT record_id, owner, created_at")
	selectGrantsPattern = regexp.QuoteMeta("SELECT identity")
)

func expectEntry(mock sqlmock.Sqlmock, recordID, owner string, grants ...string) {
	mock.ExpectQuery(selectEntryPattern).WithArgs(recordID).
		WillReturnRows(sqlmock.NewRows([]string{"record_id", "owner", "created_at"}).AddRow(recordID, owner, time.Now()))
	rows := sqlmock.NewRows([]string{"identity"})
	for _, g := range grants {
		rows.AddRow(g)
	}
	mock.ExpectQuery(selectGrantsPattern).WithArgs(recordID).WillReturnRows(rows)
}

func TestACLRepository_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a new entry", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewACLRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO acl_entries")).
			WithArgs("P1", "W", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectEntry(mock, "P1", "W")

		entry, created, err := repo.CreateIfAbsent(ctx, "P1", "W", time.Now())
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "W", entry.Owner)
		assert.Empty(t, entry.AllowedWallets)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keeps the first owner", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewACLRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO acl_entries")).
			WithArgs("P1", "X", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		expectEntry(mock, "P1", "W", "D1")

		entry, created, err := repo.CreateIfAbsent(ctx, "P1", "X", time.Now())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "W", entry.Owner)
		assert.Equal(t, []string{"D1"}, entry.AllowedWallets)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestACLRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("missing entry", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewACLRepository(db, zap.NewNop())

		mock.ExpectQuery(selectEntryPattern).WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"record_id", "owner", "created_at"}))

		_, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("grants in grant order", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewACLRepository(db, zap.NewNop())

		mock.ExpectQuery(selectEntryPattern).WithArgs("P1").
			WillReturnRows(sqlmock.NewRows([]string{"record_id", "owner", "created_at"}).AddRow("P1", "W", time.Now()))
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY grant_seq")).WithArgs("P1").
			WillReturnRows(sqlmock.NewRows([]string{"identity"}).AddRow("Zed").AddRow("Amy").AddRow("Mid"))

		entry, err := repo.Get(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, []string{"Zed", "Amy", "Mid"}, entry.AllowedWallets)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestACLRepository_AddGrant(t *testing.T) {
	ctx := context.Background()
	insertPattern := regexp.QuoteMeta("INSERT INTO acl_grants")

	t.Run("existing grant is a no-op", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewACLRepository(db, zap.NewNop())

		mock.ExpectQuery(insertPattern).WithArgs("P1", "D1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"identity"}))
		expectEntry(mock, "P1", "W", "D1")

		added, err := repo.AddGrant(ctx, "P1", "D1", time.Now())
		require.NoError(t, err)
		assert.False(t, added)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing entry", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewACLRepository(db, zap.NewNop())

		mock.ExpectQuery(insertPattern).WithArgs("P9", "D1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"identity"}))
		mock.ExpectQuery(selectEntryPattern).WithArgs("P9").
			WillReturnRows(sqlmock.NewRows([]string{"record_id", "owner", "created_at"}))

		_, err := repo.AddGrant(ctx, "P9", "D1", time.Now())
		assert.ErrorIs(t, err, repositories.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestACLRepository_RemoveGrant(t *testing.T) {
	ctx := context.Background()
	deletePattern := regexp.QuoteMeta("DELETE FROM acl_grants WHERE record_id = $1 AND identity = $2")

	t.Run("removes a present grant", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewACLRepository(db, zap.NewNop())

		mock.ExpectExec(deletePattern).WithArgs("P1", "D1").WillReturnResult(sqlmock.NewResult(0, 1))

		removed, err := repo.RemoveGrant(ctx, "P1", "D1")
		require.NoError(t, err)
		assert.True(t, removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent grant is a no-op", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewACLRepository(db, zap.NewNop())

		mock.ExpectExec(deletePattern).WithArgs("P1", "D3").WillReturnResult(sqlmock.NewResult(0, 0))
		expectEntry(mock, "P1", "W")

		removed, err := repo.RemoveGrant(ctx, "P1", "D3")
		require.NoError(t, err)
		assert.False(t, removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
