// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Job model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/domain"
)

// CreateJob inserts a new sync target.
func CreateJob(ctx context.Context, db *gorm.DB, resourceRef, ownerKey, placeName string) (*domain.Job, error) {
	j := &domain.Job{
		ResourceRef: resourceRef,
		OwnerKey:    ownerKey,
		PlaceName:   placeName,
		Status:      domain.JobStatusCreated,
	}
	return j, db.WithContext(ctx).Create(j).Error
}

// GetJob fetches a job by ID.
func GetJob(ctx context.Context, db *gorm.DB, id uint) (*domain.Job, error) {
	var j domain.Job
	if err := db.WithContext(ctx).First(&j, id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// FindJobByOwnerKey returns the most recent job with the exact owner key,
// or nil when none exists. Jobs are never hard-deleted, so "most recent"
// (highest id) is the canonical one.
func FindJobByOwnerKey(ctx context.Context, db *gorm.DB, ownerKey string) (*domain.Job, error) {
	var j domain.Job
	err := db.WithContext(ctx).
		Where("owner_key = ?", ownerKey).
		Order("id DESC").
		First(&j).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// LatestJobByOwnerPrefix returns the most recent job whose owner key starts
// with the given prefix (the "user::<email>::" namespace), or nil when the
// owner has no jobs yet.
func LatestJobByOwnerPrefix(ctx context.Context, db *gorm.DB, prefix string) (*domain.Job, error) {
	var j domain.Job
	err := db.WithContext(ctx).
		Where("owner_key LIKE ?", prefix+"%").
		Order("id DESC").
		First(&j).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// UpdateJobStatus transitions a job's lifecycle status. lastErr replaces the
// stored error text; pass nil to clear it.
func UpdateJobStatus(ctx context.Context, db *gorm.DB, id uint, status string, lastErr *string) error {
	return db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"last_error": lastErr,
			"updated_at": time.Now().UTC(),
		}).Error
}
