package domain

import "time"

// DateSlot is the availability row for one (tenant, event date). It is created
// on the first reservation attempt and never removed, so there is always a row
// to lock even when no booking holds the date.
type DateSlot struct {
	TenantID  string `gorm:"primaryKey;size:64"`
	EventDate string `gorm:"primaryKey;size:10"`
	CreatedAt time.Time
}
