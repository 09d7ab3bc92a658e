package database

import "time"

// SessionRecord is the durable part of a terminal session. It outlives the
// process backing the session and server restarts.
type SessionRecord struct {
	ID           string    `gorm:"primaryKey;size:128" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	CreatedAt    time.Time `gorm:"not null" json:"createdAt"`
	LastActivity time.Time `gorm:"not null;index" json:"lastActivity"`
}

func (SessionRecord) TableName() string {
	return "sessions"
}
