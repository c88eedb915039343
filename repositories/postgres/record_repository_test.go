package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var artifactColumns = []string{"id", "record_id", "reference", "size", "uploaded_by", "uploaded_at"}

func TestRecordRepository_Get(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db, zap.NewNop())
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM records")).WithArgs("P1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner", "created_at"}).AddRow("P1", "W", now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM artifacts")).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(artifactColumns).
			AddRow(uuid.New().String(), "P1", "blake3:aa", int64(3), "W", now).
			AddRow(uuid.New().String(), "P1", "blake3:bb", int64(5), "W", now.Add(time.Second)))

	record, err := repo.Get(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "W", record.Owner)
	require.Len(t, record.Artifacts, 2)
	assert.Equal(t, "blake3:bb", record.Artifacts[1].Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_GetMissing(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("FROM records")).WithArgs("P9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner", "created_at"}))

	_, err := repo.Get(ctx, "P9")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestRecordRepository_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO records")).WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(ctx, models.NewRecord("P1", "W", time.Now()))
	assert.ErrorIs(t, err, repositories.ErrAlreadyExists)
}

func TestRecordRepository_CountArtifactsByDay(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY day")).
		WillReturnRows(sqlmock.NewRows([]string{"day", "count"}).
			AddRow("2026-01-02", 2).
			AddRow("2026-01-03", 1))

	counts, err := repo.CountArtifactsByDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"2026-01-02": 2, "2026-01-03": 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
