package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

var linkColumns = []string{
	"id", "short_code", "original_url", "is_active", "activate_at", "expires_at",
	"expiration_message", "click_count", "created_at", "updated_at",
}

func TestLinkRepository_GetByCode(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLinkRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "links" WHERE short_code = \$1`).
		WillReturnRows(sqlmock.NewRows(linkColumns).
			AddRow("link-1", "abc123", "https://example.com", true, nil, nil, nil, int64(7), now, now))

	link, err := repo.GetByCode(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "link-1", link.ID)
	assert.Equal(t, "https://example.com", link.OriginalURL)
	assert.True(t, link.IsActive)
	assert.Nil(t, link.ExpiresAt)
	assert.Equal(t, int64(7), link.ClickCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkRepository_GetByCode_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLinkRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "links" WHERE short_code = \$1`).
		WillReturnRows(sqlmock.NewRows(linkColumns))

	_, err := repo.GetByCode(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrLinkNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkRepository_GetByCode_DriverError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLinkRepository(db)

	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT \* FROM "links"`).WillReturnError(boom)

	_, err := repo.GetByCode(context.Background(), "abc123")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrLinkNotFound)
}

func TestLinkRepository_IncrementClicks(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLinkRepository(db)

	mock.ExpectExec(`UPDATE "links" SET "click_count"=click_count \+ \$1,"updated_at"=\$2 WHERE id = \$3`).
		WithArgs(int64(5), sqlmock.AnyArg(), "link-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementClicks(context.Background(), "link-1", 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkRepository_IncrementClicks_MissingLink(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLinkRepository(db)

	mock.ExpectExec(`UPDATE "links" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.IncrementClicks(context.Background(), "gone", 1)
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestLinkRepository_IncrementClicks_ZeroDelta(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLinkRepository(db)

	require.NoError(t, repo.IncrementClicks(context.Background(), "link-1", 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkRepository_ClickDrift(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLinkRepository(db)

	to := time.Now()
	from := to.Add(-time.Hour)
	mock.ExpectQuery(`SELECT l.id AS link_id, l.short_code, l.click_count, COUNT\(c.id\) AS event_count`).
		WithArgs(from, to, 10).
		WillReturnRows(sqlmock.NewRows([]string{"link_id", "short_code", "click_count", "event_count"}).
			AddRow("link-1", "abc123", int64(12), int64(10)))

	drift, err := repo.ClickDrift(context.Background(), from, to, 10)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, "abc123", drift[0].ShortCode)
	assert.Equal(t, int64(2), drift[0].Delta())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"missing link", fmt.Errorf("increment: %w", ErrLinkNotFound), true},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, false},
		{"network", errors.New("i/o timeout"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}
