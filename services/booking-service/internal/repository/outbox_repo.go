package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
)

type OutboxRepo struct{ db *gorm.DB }

// Enqueue stores v as JSON under routingKey. Call it on the transaction that
// makes the change the message announces.
func (r *OutboxRepo) Enqueue(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&domain.OutboxMessage{
		ID:         uuid.NewString(),
		RoutingKey: routingKey,
		Payload:    body,
	}).Error
}

// Claim locks up to limit unpublished messages, oldest first. Rows claimed by
// another relay are skipped.
func (r *OutboxRepo) Claim(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *OutboxRepo) MarkPublished(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.OutboxMessage{}).
		Where("id = ?", id).
		Update("published_at", at).Error
}

func (r *OutboxRepo) MarkAttemptFailed(ctx context.Context, id, reason string) error {
	return r.db.WithContext(ctx).Model(&domain.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{"attempts": gorm.Expr("attempts + 1"), "last_error": reason}).Error
}

// Pending lists unpublished messages without locking them.
func (r *OutboxRepo) Pending(ctx context.Context) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	err := r.db.WithContext(ctx).Where("published_at IS NULL").Order("created_at ASC").Find(&out).Error
	return out, err
}
