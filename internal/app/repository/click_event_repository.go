package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sifan077/linkgate/internal/app/model"
)

var clickEventColumns = []string{
	"id", "link_id", "timestamp", "ip_address", "user_agent", "referer", "device_type",
}

// ClickEventRepository appends click events to the click log.
type ClickEventRepository interface {
	CreateBatch(ctx context.Context, events []model.ClickEvent) error
}

type clickEventRepository struct {
	pool *pgxpool.Pool
}

// NewClickEventRepository returns a ClickEventRepository that bulk-loads through COPY.
func NewClickEventRepository(pool *pgxpool.Pool) ClickEventRepository {
	return &clickEventRepository{pool: pool}
}

// CreateBatch inserts all events with a single COPY. The statement either
// succeeds or fails as a whole.
func (r *clickEventRepository) CreateBatch(ctx context.Context, events []model.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{model.ClickEvent{}.TableName()},
		clickEventColumns,
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			return []any{e.ID, e.LinkID, e.Timestamp, e.IPAddress, e.UserAgent, e.Referer, e.DeviceType}, nil
		}),
	)
	return err
}

// IsPermanent reports whether err will fail again on retry: missing links and
// integrity constraint violations (SQLSTATE class 23).
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrLinkNotFound) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "23"
	}
	return false
}
