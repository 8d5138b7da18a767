package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
)

var ErrLedgerNotFound = errors.New("webhook_event_not_found")

// LedgerRepo stores every verified webhook notification, keyed by
// (provider, provider event id).
type LedgerRepo struct{ db *gorm.DB }

// Record inserts ev with status received unless the provider event is already
// on file. It always returns the stored row and whether this call created it.
func (r *LedgerRepo) Record(ctx context.Context, ev *domain.WebhookEvent) (*domain.WebhookEvent, bool, error) {
	db := r.db.WithContext(ctx)
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Status = domain.LedgerReceived
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(ev)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return ev, true, nil
	}
	existing, err := r.ByProviderEventID(ctx, ev.Provider, ev.ProviderEventID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// MarkProcessed is terminal; a row already processed stays untouched.
// Attempts counts failures only, so it is left alone here.
func (r *LedgerRepo) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.WebhookEvent{}).
		Where("id = ? AND status <> ?", id, domain.LedgerProcessed).
		Updates(map[string]any{
			"status":       domain.LedgerProcessed,
			"processed_at": at,
		}).Error
}

// MarkFailed keeps the row as a dead letter with the last error.
func (r *LedgerRepo) MarkFailed(ctx context.Context, id, reason string) error {
	return r.db.WithContext(ctx).Model(&domain.WebhookEvent{}).
		Where("id = ? AND status <> ?", id, domain.LedgerProcessed).
		Updates(map[string]any{
			"status":     domain.LedgerFailed,
			"last_error": reason,
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error
}

func (r *LedgerRepo) ByID(ctx context.Context, id string) (*domain.WebhookEvent, error) {
	var ev domain.WebhookEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLedgerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *LedgerRepo) ByProviderEventID(ctx context.Context, provider, eventID string) (*domain.WebhookEvent, error) {
	var ev domain.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLedgerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// List returns ledger rows newest first, optionally filtered by status. The
// payload column is left out.
func (r *LedgerRepo) List(ctx context.Context, status domain.LedgerStatus, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Omit("payload").Order("created_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.WebhookEvent
	return out, q.Find(&out).Error
}
