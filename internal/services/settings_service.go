// Business settings surface. Thin over the repo layer, plus the two
// derivation rules: an upserted place id fills a missing review URL, and a
// read lazily backfills the URL for rows stored before derivation existed.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/domain"
	"github.com/tbourn/go-review-backend/internal/repo"
	"github.com/tbourn/go-review-backend/internal/upstream"
)

// SettingsService manages per-job business settings.
type SettingsService struct {
	DB *gorm.DB
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{DB: db}
}

// Get returns a job's settings, creating nothing. A stored place id without
// a review URL gets the URL derived and persisted on the way out.
func (s *SettingsService) Get(ctx context.Context, jobID uint) (*domain.BusinessSettings, error) {
	if _, err := repo.GetJob(ctx, s.DB, jobID); errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	} else if err != nil {
		return nil, err
	}

	settings, err := repo.GetBusinessSettings(ctx, s.DB, jobID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return &domain.BusinessSettings{JobID: jobID}, nil
	}

	if (settings.ReviewURL == nil || *settings.ReviewURL == "") &&
		settings.PlaceID != nil && *settings.PlaceID != "" {
		u := upstream.ReviewURLFromPlaceID(*settings.PlaceID)
		settings.ReviewURL = &u
		if err := repo.SaveBusinessSettings(ctx, s.DB, settings); err != nil {
			return nil, err
		}
	}
	return settings, nil
}

// Upsert updates a job's settings. Nil fields are untouched; a non-empty
// place id with no explicit review URL derives one.
func (s *SettingsService) Upsert(ctx context.Context, jobID uint, placeID, reviewURL, businessName *string) (*domain.BusinessSettings, error) {
	if _, err := repo.GetJob(ctx, s.DB, jobID); errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	} else if err != nil {
		return nil, err
	}

	if placeID != nil && *placeID != "" && (reviewURL == nil || *reviewURL == "") {
		u := upstream.ReviewURLFromPlaceID(*placeID)
		reviewURL = &u
	}
	return repo.UpsertBusinessSettings(ctx, s.DB, jobID, placeID, reviewURL, businessName)
}
