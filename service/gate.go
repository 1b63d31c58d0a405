package service

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"notebase.evalgo.org/models"
)

// RateLimiter is the per-user processing gate. CheckProcessingLimit returns
// nil when the user may start another upload.
type RateLimiter interface {
	CheckProcessingLimit(ctx context.Context, ownerID string) error
}

// DBRateLimiter counts live processing documents in the database on every
// call. The gate is advisory: it is not a mutex and a brief overshoot by one
// concurrent request is acceptable.
type DBRateLimiter struct {
	db  *gorm.DB
	cap int
}

// NewDBRateLimiter builds the gate with the configured cap (default 5).
func NewDBRateLimiter(db *gorm.DB, cap int) *DBRateLimiter {
	if cap <= 0 {
		cap = 5
	}
	return &DBRateLimiter{db: db, cap: cap}
}

// CheckProcessingLimit permits the upload iff the user has fewer than cap
// documents currently in processing across all notebooks.
func (r *DBRateLimiter) CheckProcessingLimit(ctx context.Context, ownerID string) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Document{}).
		Where("owner_id = ? AND status = ?", ownerID, models.StatusProcessing).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to count processing documents: %w", err)
	}

	if count >= int64(r.cap) {
		return Wrap(ErrRateLimited, "you already have %d documents processing, the limit is %d", count, r.cap)
	}
	return nil
}
