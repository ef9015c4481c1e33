// Outreach scheduling and delivery engine.
//
// Holds scheduled follow-up messages tied to a completed customer
// interaction and runs the recurring sweep that delivers the due ones. The
// sweep resolves each job's review-submission link through a three-step
// chain (stored URL, URL derived from a stored place id, place lookup by
// business name) and persists whatever the chain discovers, so later sweeps
// skip the lookup.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/config"
	"github.com/tbourn/go-review-backend/internal/domain"
	"github.com/tbourn/go-review-backend/internal/repo"
	"github.com/tbourn/go-review-backend/internal/upstream"
)

// e164 matches the canonical international phone form the messaging provider
// accepts.
var e164 = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// PlaceResolver resolves a business name to a place id.
// Satisfied by *upstream.PlacesClient.
type PlaceResolver interface {
	FindPlaceID(ctx context.Context, businessName string) (string, error)
}

// SweepResult reports one sweep pass.
type SweepResult struct {
	Due    int `json:"due"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// OutreachService schedules review requests and delivers the due ones.
type OutreachService struct {
	DB        *gorm.DB
	Messenger upstream.Messenger
	Places    PlaceResolver

	batchSize    int
	sendDelayMin time.Duration
	sendDelayMax time.Duration
}

// NewOutreachService constructs an OutreachService with the configured sweep
// bounds.
func NewOutreachService(db *gorm.DB, messenger upstream.Messenger, places PlaceResolver, cfg config.OutreachConfig) *OutreachService {
	return &OutreachService{
		DB:           db,
		Messenger:    messenger,
		Places:       places,
		batchSize:    cfg.BatchSize,
		sendDelayMin: cfg.SendDelayMin,
		sendDelayMax: cfg.SendDelayMax,
	}
}

// Schedule inserts a scheduled request whose send time falls a randomized
// delay after the interaction. The jitter spreads deliveries so a busy
// afternoon of checkouts does not burst into one send window.
func (s *OutreachService) Schedule(ctx context.Context, jobID uint, customerName, phone string, interactionAt time.Time) (*domain.ReviewRequest, error) {
	phone = strings.TrimSpace(phone)
	if !e164.MatchString(phone) {
		return nil, ErrInvalidPhone
	}
	if _, err := repo.GetJob(ctx, s.DB, jobID); errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	} else if err != nil {
		return nil, err
	}

	sendAt := interactionAt.Add(s.randomDelay())
	return repo.CreateReviewRequest(ctx, s.DB, jobID, strings.TrimSpace(customerName), phone, interactionAt, sendAt)
}

func (s *OutreachService) randomDelay() time.Duration {
	if s.sendDelayMax <= s.sendDelayMin {
		return s.sendDelayMin
	}
	return s.sendDelayMin + rand.N(s.sendDelayMax-s.sendDelayMin)
}

// Cancel transitions a scheduled request to cancelled. Cancelling an already
// sent, cancelled, or failed request is a no-op and returns the record
// unchanged, so retried cancellations are safe.
func (s *OutreachService) Cancel(ctx context.Context, id uint) (*domain.ReviewRequest, error) {
	rr, err := repo.CancelReviewRequest(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if rr == nil {
		return nil, ErrRequestNotFound
	}
	return rr, nil
}

// List returns a job's requests, most recent interaction first.
func (s *OutreachService) List(ctx context.Context, jobID uint, limit int) ([]domain.ReviewRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return repo.ListReviewRequests(ctx, s.DB, jobID, limit)
}

// Stats aggregates a job's requests per status. Failed requests surface here
// rather than being silently retried.
func (s *OutreachService) Stats(ctx context.Context, jobID uint) (*repo.RequestStats, error) {
	return repo.CountRequestsByStatus(ctx, s.DB, jobID)
}

// Sweep delivers the requests that have come due. Each request fails or
// succeeds independently; one bad record never aborts the batch.
func (s *OutreachService) Sweep(ctx context.Context) (*SweepResult, error) {
	due, err := repo.DueScheduled(ctx, s.DB, time.Now().UTC(), s.batchSize)
	if err != nil {
		return nil, err
	}

	res := &SweepResult{Due: len(due)}
	for i := range due {
		rr := &due[i]
		if err := s.deliver(ctx, rr); err != nil {
			res.Failed++
			sweepDeliveries.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Uint("request_id", rr.ID).Uint("job_id", rr.JobID).
				Msg("outreach delivery failed")
			if merr := repo.MarkFailed(ctx, s.DB, rr, err.Error()); merr != nil {
				log.Error().Err(merr).Uint("request_id", rr.ID).Msg("failed to record delivery failure")
			}
			continue
		}
		res.Sent++
		sweepDeliveries.WithLabelValues("sent").Inc()
		if merr := repo.MarkSent(ctx, s.DB, rr); merr != nil {
			log.Error().Err(merr).Uint("request_id", rr.ID).Msg("failed to record delivery")
		}
	}
	return res, nil
}

func (s *OutreachService) deliver(ctx context.Context, rr *domain.ReviewRequest) error {
	job, err := repo.GetJob(ctx, s.DB, rr.JobID)
	if err != nil {
		return err
	}

	reviewURL, businessName, err := s.resolveReviewURL(ctx, job)
	if err != nil {
		return err
	}

	_, err = s.Messenger.Send(ctx, rr.PhoneE164, outreachMessage(rr.CustomerName, businessName, reviewURL))
	return err
}

// resolveReviewURL walks the resolution chain for a job and persists every
// value it discovers along the way.
func (s *OutreachService) resolveReviewURL(ctx context.Context, job *domain.Job) (reviewURL, businessName string, err error) {
	settings, err := repo.GetBusinessSettings(ctx, s.DB, job.ID)
	if err != nil {
		return "", "", err
	}

	businessName = job.PlaceName
	if settings != nil && settings.BusinessName != nil && *settings.BusinessName != "" {
		businessName = *settings.BusinessName
	}

	if settings != nil && settings.ReviewURL != nil && *settings.ReviewURL != "" {
		return *settings.ReviewURL, businessName, nil
	}

	if settings != nil && settings.PlaceID != nil && *settings.PlaceID != "" {
		u := upstream.ReviewURLFromPlaceID(*settings.PlaceID)
		settings.ReviewURL = &u
		if serr := repo.SaveBusinessSettings(ctx, s.DB, settings); serr != nil {
			log.Warn().Err(serr).Uint("job_id", job.ID).Msg("failed to backfill review url")
		}
		return u, businessName, nil
	}

	if businessName == "" {
		return "", "", ErrUnresolvedReviewLink
	}
	placeID, err := s.Places.FindPlaceID(ctx, businessName)
	if err != nil {
		return "", "", fmt.Errorf("place lookup: %w", err)
	}
	if placeID == "" {
		return "", "", ErrUnresolvedReviewLink
	}

	u := upstream.ReviewURLFromPlaceID(placeID)
	if _, serr := repo.UpsertBusinessSettings(ctx, s.DB, job.ID, &placeID, &u, nil); serr != nil {
		log.Warn().Err(serr).Uint("job_id", job.ID).Msg("failed to persist resolved place")
	}
	return u, businessName, nil
}

func outreachMessage(customerName, businessName, reviewURL string) string {
	greeting := "Hi"
	if customerName != "" {
		greeting = "Hi " + customerName
	}
	return fmt.Sprintf("%s, thanks for visiting %s! We'd love to hear how it went. Leaving a quick review takes a minute: %s",
		greeting, businessName, reviewURL)
}
