package model

import "time"

// Device classifications stored on click events.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceUnknown = "unknown"
)

// ClickEvent represents a single recorded redirect. Events are append-only.
type ClickEvent struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	LinkID     string    `json:"link_id" gorm:"column:link_id;size:36;not null;index:idx_click_events_link_time,priority:1"`
	ShortCode  string    `json:"short_code" gorm:"-"`
	Timestamp  time.Time `json:"timestamp" gorm:"column:timestamp;not null;index:idx_click_events_link_time,priority:2;index"`
	IPAddress  string    `json:"ip_address" gorm:"column:ip_address;size:64"`
	UserAgent  string    `json:"user_agent" gorm:"column:user_agent;type:text"`
	Referer    string    `json:"referer" gorm:"column:referer;type:text"`
	DeviceType string    `json:"device_type" gorm:"column:device_type;size:16"`

	Link *Link `json:"-" gorm:"foreignKey:LinkID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName pins the click log table name.
func (ClickEvent) TableName() string { return "click_events" }

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.events"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
