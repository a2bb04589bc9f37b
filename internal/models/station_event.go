package models

import "time"

// StationEvent records one worker lifecycle transition: registered,
// offline (swept by the health monitor), or removed (explicit).
type StationEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	WorkerID  string    `gorm:"size:64;index"`
	Event     string    `gorm:"size:16"`
	Detail    string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"index"`
}
