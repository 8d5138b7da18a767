package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/you/wedding-booking/services/booking-service/internal/domain"
)

type TenantRepo struct{ db *gorm.DB }

func (r *TenantRepo) ByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CommissionProfile reads the tenant's current rate. Inside a transaction it
// sees the same snapshot as the confirmation that applies it.
func (r *TenantRepo) CommissionProfile(ctx context.Context, tenantID string) (domain.CommissionProfile, error) {
	var t domain.Tenant
	err := r.db.WithContext(ctx).Select("id", "commission_percent").Where("id = ?", tenantID).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.CommissionProfile{}, domain.ErrTenantNotFound
	}
	if err != nil {
		return domain.CommissionProfile{}, err
	}
	return domain.CommissionProfile{TenantID: t.ID, Percent: t.CommissionPercent}, nil
}

// Upsert is used by seeding and tests; tenant management owns writes in
// production.
func (r *TenantRepo) Upsert(ctx context.Context, t *domain.Tenant) error {
	return r.db.WithContext(ctx).Save(t).Error
}
