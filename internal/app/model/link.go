package model

import (
	"regexp"
	"time"
)

// Link describes a short-link record owned by the link-management collaborator.
// The redirect engine only reads it and bumps ClickCount.
type Link struct {
	ID                string     `db:"id" gorm:"primaryKey;size:36"`
	ShortCode         string     `db:"short_code" gorm:"column:short_code;size:32;not null;uniqueIndex"`
	OriginalURL       string     `db:"original_url" gorm:"column:original_url;type:text;not null"`
	IsActive          bool       `db:"is_active" gorm:"column:is_active;not null;default:true"`
	ActivateAt        *time.Time `db:"activate_at" gorm:"column:activate_at"`
	ExpiresAt         *time.Time `db:"expires_at" gorm:"column:expires_at;index"`
	ExpirationMessage *string    `db:"expiration_message" gorm:"column:expiration_message;size:200"`
	ClickCount        int64      `db:"click_count" gorm:"column:click_count;not null;default:0;index"`
	CreatedAt         time.Time  `db:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt         time.Time  `db:"updated_at" gorm:"autoUpdateTime"`
}

// TableName pins the table name used by both GORM and raw queries.
func (Link) TableName() string { return "links" }

var shortCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,20}$`)

// ValidShortCode reports whether code is a syntactically valid short code.
func ValidShortCode(code string) bool {
	return shortCodePattern.MatchString(code)
}

// ClickDrift reports a link whose counter disagrees with its click log.
type ClickDrift struct {
	LinkID     string `gorm:"column:link_id"`
	ShortCode  string `gorm:"column:short_code"`
	ClickCount int64  `gorm:"column:click_count"`
	EventCount int64  `gorm:"column:event_count"`
}

// Delta is the counter surplus (positive) or deficit (negative) against the log.
func (d ClickDrift) Delta() int64 {
	return d.ClickCount - d.EventCount
}
