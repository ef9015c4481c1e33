// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Review
// model, including the dataset-signature query used for cache invalidation.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/domain"
)

// RawReview is the minimal projection the sync engine needs to rebuild its
// dedup seen-set: the stored provider payload plus the row id.
type RawReview struct {
	ID  uint
	Raw string
}

// CreateReviews inserts one page of reviews in a single transaction, so a
// failure on a later page never loses rows from an earlier one.
func CreateReviews(ctx context.Context, db *gorm.DB, reviews []domain.Review) error {
	if len(reviews) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&reviews).Error
}

// ListRecentRawPayloads returns the raw payloads of the newest stored
// reviews for a job, newest first, capped at limit. These seed the sync
// engine's seen-set.
func ListRecentRawPayloads(ctx context.Context, db *gorm.DB, jobID uint, limit int) ([]RawReview, error) {
	var out []RawReview
	err := db.WithContext(ctx).
		Model(&domain.Review{}).
		Select("id", "raw").
		Where("job_id = ?", jobID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListReviewsPage returns a paginated slice of a job's reviews, newest first.
func ListReviewsPage(ctx context.Context, db *gorm.DB, jobID uint, offset, limit int) ([]domain.Review, error) {
	var out []domain.Review
	err := db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountReviews uses a raw COUNT so a missing table surfaces as an error.
func CountReviews(ctx context.Context, db *gorm.DB, jobID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM reviews WHERE job_id = ?", jobID).
		Scan(&total).Error
	return total, err
}

// EligibleSignature computes the dataset signature over a job's eligible
// reviews: those with non-empty body text, optionally restricted to rows
// created on or after since. The (count, max id) pair is a cheap change
// proxy that stays monotonic under the engine's append-only review model.
func EligibleSignature(ctx context.Context, db *gorm.DB, jobID uint, since *time.Time) (int, uint, error) {
	var sig struct {
		Cnt   int
		MaxID uint
	}
	q := db.WithContext(ctx).
		Model(&domain.Review{}).
		Select("COUNT(*) AS cnt, COALESCE(MAX(id), 0) AS max_id").
		Where("job_id = ? AND body IS NOT NULL AND body <> ''", jobID)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	if err := q.Scan(&sig).Error; err != nil {
		return 0, 0, err
	}
	return sig.Cnt, sig.MaxID, nil
}

// ListEligibleReviews returns the reviews an analysis computation reads:
// same eligibility filter as EligibleSignature, oldest first so prompts see
// a stable ordering.
func ListEligibleReviews(ctx context.Context, db *gorm.DB, jobID uint, since *time.Time) ([]domain.Review, error) {
	var out []domain.Review
	q := db.WithContext(ctx).
		Where("job_id = ? AND body IS NOT NULL AND body <> ''", jobID)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	err := q.Order("id ASC").Find(&out).Error
	return out, err
}

// GetReview fetches a review by ID.
func GetReview(ctx context.Context, db *gorm.DB, id uint) (*domain.Review, error) {
	var r domain.Review
	if err := db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}
