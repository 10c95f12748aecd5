package upload

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, intent *Intent) error
	GetByID(ctx context.Context, id string) (*Intent, error)
	// MarkExpired flips one open intent to expired; a no-op for any other status.
	MarkExpired(ctx context.Context, id string) error
	// ExpireOverdue marks every open intent whose deadline is at or before now.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, intent *Intent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) GetByID(ctx context.Context, id string) (*Intent, error) {
	var intent Intent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) MarkExpired(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Intent{}).
		Where("id = ? AND status = ?", id, StatusCreated).
		Update("status", StatusExpired).Error
}

func (r *repository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Intent{}).
		Where("status = ? AND expires_at <= ?", StatusCreated, now).
		Update("status", StatusExpired)
	return res.RowsAffected, res.Error
}
