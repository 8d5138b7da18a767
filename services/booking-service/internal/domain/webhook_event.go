package domain

import "time"

type LedgerStatus string

const (
	LedgerReceived  LedgerStatus = "received"
	LedgerProcessed LedgerStatus = "processed"
	LedgerFailed    LedgerStatus = "failed"
)

// WebhookEvent is the append-only ledger row for one provider notification.
// It is never deleted: failed rows are the dead-letter queue.
type WebhookEvent struct {
	ID              string       `gorm:"primaryKey;size:36"`
	Provider        string       `gorm:"size:16;not null;uniqueIndex:idx_webhook_events_provider_event,priority:1"`
	ProviderEventID string       `gorm:"size:255;not null;uniqueIndex:idx_webhook_events_provider_event,priority:2"`
	EventType       string       `gorm:"size:100;not null;index"`
	Payload         []byte       `gorm:"not null"` // verified canonical body, see payment.Envelope
	Status          LedgerStatus `gorm:"size:16;not null;index"`
	Attempts        int          `gorm:"not null;default:0"` // failed attempts
	LastError       string       `gorm:"type:text"`
	ProcessedAt     *time.Time
	CreatedAt       time.Time `gorm:"index"`
	UpdatedAt       time.Time
}
