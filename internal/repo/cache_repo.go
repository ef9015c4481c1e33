// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the two
// memoization tables: per-job analysis results and per-review AI replies.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-review-backend/internal/domain"
)

// GetAnalysisCache fetches the cache row for (job, kind, params hash), or
// nil when no computation has been memoized yet.
func GetAnalysisCache(ctx context.Context, db *gorm.DB, jobID uint, kind, paramsHash string) (*domain.AnalysisCache, error) {
	var e domain.AnalysisCache
	err := db.WithContext(ctx).
		Where("job_id = ? AND kind = ? AND params_hash = ?", jobID, kind, paramsHash).
		First(&e).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpsertAnalysisCache writes a cache row, overwriting any previous payload
// and signature in place. Concurrent writers for the same key race
// last-write-wins, which is acceptable: both computed from the same
// signature.
func UpsertAnalysisCache(ctx context.Context, db *gorm.DB, e *domain.AnalysisCache) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "job_id"}, {Name: "kind"}, {Name: "params_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"source_count", "source_max_id", "payload", "computed_at",
			}),
		}).
		Create(e).Error
}

// GetReplyByReviewID fetches the memoized AI reply for a review, or nil.
func GetReplyByReviewID(ctx context.Context, db *gorm.DB, reviewID uint) (*domain.ReviewAIReply, error) {
	var r domain.ReviewAIReply
	err := db.WithContext(ctx).Where("review_id = ?", reviewID).First(&r).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertReply writes the memoized reply for a review, replacing the stored
// text, hash, and model tags when the review is regenerated.
func UpsertReply(ctx context.Context, db *gorm.DB, r *domain.ReviewAIReply) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "review_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"input_hash", "reply_text", "model", "tone", "updated_at",
			}),
		}).
		Create(r).Error
}
