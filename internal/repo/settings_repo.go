// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for per-job
// business settings.
package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/domain"
)

// GetBusinessSettings fetches the settings row for a job, or nil when the
// job has none yet.
func GetBusinessSettings(ctx context.Context, db *gorm.DB, jobID uint) (*domain.BusinessSettings, error) {
	var s domain.BusinessSettings
	err := db.WithContext(ctx).Where("job_id = ?", jobID).First(&s).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertBusinessSettings creates or updates a job's settings. Nil fields are
// left untouched; non-nil fields replace the stored value (an empty string
// clears it).
func UpsertBusinessSettings(ctx context.Context, db *gorm.DB, jobID uint, placeID, reviewURL, businessName *string) (*domain.BusinessSettings, error) {
	s, err := GetBusinessSettings(ctx, db, jobID)
	if err != nil {
		return nil, err
	}
	created := false
	if s == nil {
		s = &domain.BusinessSettings{JobID: jobID}
		created = true
	}

	apply := func(dst **string, src *string) {
		if src == nil {
			return
		}
		if t := strings.TrimSpace(*src); t != "" {
			*dst = &t
		} else {
			*dst = nil
		}
	}
	apply(&s.PlaceID, placeID)
	apply(&s.ReviewURL, reviewURL)
	apply(&s.BusinessName, businessName)

	if created {
		return s, db.WithContext(ctx).Create(s).Error
	}
	return s, db.WithContext(ctx).Save(s).Error
}

// SaveBusinessSettings persists in-place mutations made by the caller (the
// lazy review-URL backfill path).
func SaveBusinessSettings(ctx context.Context, db *gorm.DB, s *domain.BusinessSettings) error {
	return db.WithContext(ctx).Save(s).Error
}
