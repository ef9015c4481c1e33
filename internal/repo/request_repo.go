// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for scheduled
// review requests, including the due-selection and terminal-state updates
// used by the outreach sweep.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/domain"
)

// maxErrorLen bounds the stored error text on failed requests.
const maxErrorLen = 4000

// CreateReviewRequest inserts a new scheduled request.
func CreateReviewRequest(ctx context.Context, db *gorm.DB, jobID uint, customerName, phoneE164 string, interactionAt, sendAt time.Time) (*domain.ReviewRequest, error) {
	rr := &domain.ReviewRequest{
		JobID:         jobID,
		CustomerName:  customerName,
		PhoneE164:     phoneE164,
		InteractionAt: interactionAt,
		SendAt:        sendAt,
		Status:        domain.RequestStatusScheduled,
	}
	return rr, db.WithContext(ctx).Create(rr).Error
}

// GetReviewRequest fetches a request by ID.
func GetReviewRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.ReviewRequest, error) {
	var rr domain.ReviewRequest
	if err := db.WithContext(ctx).First(&rr, id).Error; err != nil {
		return nil, err
	}
	return &rr, nil
}

// ListReviewRequests returns a job's requests, most recent interaction
// first, capped at limit.
func ListReviewRequests(ctx context.Context, db *gorm.DB, jobID uint, limit int) ([]domain.ReviewRequest, error) {
	var out []domain.ReviewRequest
	err := db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("interaction_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CancelReviewRequest transitions scheduled → cancelled. Cancelling a
// request in any other state is a no-op: the record is returned unchanged.
// Returns (nil, nil) when the request does not exist.
func CancelReviewRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.ReviewRequest, error) {
	var rr domain.ReviewRequest
	err := db.WithContext(ctx).First(&rr, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rr.Status != domain.RequestStatusScheduled {
		return &rr, nil
	}
	now := time.Now().UTC()
	rr.Status = domain.RequestStatusCancelled
	rr.CancelledAt = &now
	return &rr, db.WithContext(ctx).Save(&rr).Error
}

// DueScheduled selects the scheduled requests whose send time has passed,
// oldest due first, capped at batchSize. Failed requests are deliberately
// not re-selected.
func DueScheduled(ctx context.Context, db *gorm.DB, now time.Time, batchSize int) ([]domain.ReviewRequest, error) {
	var out []domain.ReviewRequest
	err := db.WithContext(ctx).
		Where("status = ? AND send_at <= ?", domain.RequestStatusScheduled, now).
		Order("send_at ASC").
		Limit(batchSize).
		Find(&out).Error
	return out, err
}

// MarkSent records a successful delivery and clears any prior error text.
func MarkSent(ctx context.Context, db *gorm.DB, rr *domain.ReviewRequest) error {
	now := time.Now().UTC()
	rr.Status = domain.RequestStatusSent
	rr.SentAt = &now
	rr.ErrorMessage = nil
	return db.WithContext(ctx).Save(rr).Error
}

// MarkFailed records a delivery failure with the truncated error text.
func MarkFailed(ctx context.Context, db *gorm.DB, rr *domain.ReviewRequest, errMsg string) error {
	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen]
	}
	rr.Status = domain.RequestStatusFailed
	rr.ErrorMessage = &errMsg
	return db.WithContext(ctx).Save(rr).Error
}

// RequestStats counts a job's requests per status.
type RequestStats struct {
	Scheduled int64 `json:"scheduled"`
	Sent      int64 `json:"sent"`
	Cancelled int64 `json:"cancelled"`
	Failed    int64 `json:"failed"`
}

// CountRequestsByStatus aggregates per-status counts for one job.
func CountRequestsByStatus(ctx context.Context, db *gorm.DB, jobID uint) (*RequestStats, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.ReviewRequest{}).
		Select("status, COUNT(*) AS n").
		Where("job_id = ?", jobID).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	stats := &RequestStats{}
	for _, r := range rows {
		switch r.Status {
		case domain.RequestStatusScheduled:
			stats.Scheduled = r.N
		case domain.RequestStatusSent:
			stats.Sent = r.N
		case domain.RequestStatusCancelled:
			stats.Cancelled = r.N
		case domain.RequestStatusFailed:
			stats.Failed = r.N
		}
	}
	return stats, nil
}
