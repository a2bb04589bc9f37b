// Package models defines the GORM models for Switchboard's observability
// store. Routing state never lives here; these tables only record what
// happened.
package models

import "time"

// CallRecord is one proxied tool call. Written best-effort after the call
// completes; a failed insert is logged and dropped, never surfaced to the
// caller.
type CallRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Tool       string    `gorm:"size:64;index"`
	InstanceID string    `gorm:"size:64;index"`
	WorkerID   string    `gorm:"size:64;index"`
	Kind       string    `gorm:"size:16"`
	Status     string    `gorm:"size:8;index"`
	Error      string    `gorm:"size:512"`
	DurationMs int
	CreatedAt  time.Time `gorm:"index"`
}
