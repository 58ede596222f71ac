package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sifan077/linkgate/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested short link does not exist.
	ErrLinkNotFound = errors.New("link not found")
)

// LinkRepository defines the directory operations the redirect engine consumes.
// Link creation and editing belong to the link-management service.
type LinkRepository interface {
	GetByCode(ctx context.Context, code string) (*model.Link, error)
	IncrementClicks(ctx context.Context, linkID string, delta int64) error
	ClickDrift(ctx context.Context, from, to time.Time, limit int) ([]model.ClickDrift, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("short_code = ?", code).Take(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

// IncrementClicks adds delta to the link counter in a single UPDATE so concurrent
// writers never lose increments.
func (r *linkRepository) IncrementClicks(ctx context.Context, linkID string, delta int64) error {
	if delta <= 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("id = ?", linkID).
		UpdateColumns(map[string]interface{}{
			"click_count": gorm.Expr("click_count + ?", delta),
			"updated_at":  time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

const clickDriftQuery = `
SELECT l.id AS link_id, l.short_code, l.click_count, COUNT(c.id) AS event_count
FROM links l
LEFT JOIN click_events c ON c.link_id = l.id
WHERE l.updated_at >= ? AND l.updated_at < ?
GROUP BY l.id, l.short_code, l.click_count
HAVING l.click_count <> COUNT(c.id)
ORDER BY l.updated_at DESC
LIMIT ?`

// ClickDrift lists links last touched within [from, to) whose counter disagrees
// with the number of logged click events.
func (r *linkRepository) ClickDrift(ctx context.Context, from, to time.Time, limit int) ([]model.ClickDrift, error) {
	if limit <= 0 {
		limit = 100
	}

	var result []model.ClickDrift
	if err := r.db.WithContext(ctx).Raw(clickDriftQuery, from, to, limit).Scan(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}
