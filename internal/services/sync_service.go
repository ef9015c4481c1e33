// Review synchronization engine.
//
// Pulls the paginated upstream review feed for a job's location and persists
// the items that have not been seen before. Dedup is by external review
// identity recomputed from stored raw payloads, so repeated runs against a
// mutable feed neither duplicate nor lose data. Each page commits before the
// next is fetched; a mid-run failure keeps every committed page and marks
// the job failed with the causing error.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/config"
	"github.com/tbourn/go-review-backend/internal/domain"
	"github.com/tbourn/go-review-backend/internal/repo"
	"github.com/tbourn/go-review-backend/internal/upstream"
)

// resourceScheme prefixes every stored job resource reference.
const resourceScheme = "gbp://"

// FeedProvider is the upstream surface the engine consumes.
// Satisfied by *upstream.Client.
type FeedProvider interface {
	ListAccounts(ctx context.Context, accessToken string) ([]upstream.Account, error)
	ListLocations(ctx context.Context, accessToken, accountName string) ([]upstream.Location, error)
	ListReviews(ctx context.Context, accessToken, locationName string, pageSize int, pageToken string) (*upstream.ReviewPage, error)
}

// SyncResult reports one run: how many feed items were newly persisted, how
// many were already known, and the total examined.
type SyncResult struct {
	Saved   int `json:"saved"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// SyncService drives review synchronization and owns job bookkeeping.
//
// No mutual exclusion is taken per job: two concurrent runs for the same job
// can race on the seen-set and on status transitions. Accepted for the
// single-tenant-per-job usage pattern this serves; callers needing stricter
// guarantees must serialize externally.
type SyncService struct {
	DB   *gorm.DB
	Feed FeedProvider

	pageSize   int
	seenWindow int
	maxPerRun  int
}

// NewSyncService constructs a SyncService with the configured bounds.
func NewSyncService(db *gorm.DB, feed FeedProvider, cfg config.SyncConfig) *SyncService {
	return &SyncService{
		DB:         db,
		Feed:       feed,
		pageSize:   cfg.PageSize,
		seenWindow: cfg.SeenWindow,
		maxPerRun:  cfg.MaxPerRun,
	}
}

// OwnerKey builds the composite identity key binding a job to its owner and
// location.
func OwnerKey(email, locationName string) string {
	return "user::" + strings.ToLower(email) + "::gbp::" + strings.ToLower(locationName)
}

// EnsureJob resolves the canonical job for an owner's first business
// location, creating it when the owner has none. Location discovery walks
// accounts → locations and picks the first; small businesses have exactly
// one.
func (s *SyncService) EnsureJob(ctx context.Context, accessToken, ownerEmail string) (*domain.Job, error) {
	accounts, err := s.Feed.ListAccounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var chosen *upstream.Location
	var account string
	for _, acc := range accounts {
		if acc.Name == "" {
			continue
		}
		locs, err := s.Feed.ListLocations(ctx, accessToken, acc.Name)
		if err != nil {
			return nil, err
		}
		if len(locs) > 0 {
			chosen, account = &locs[0], acc.Name
			break
		}
	}
	if chosen == nil {
		return nil, ErrNoLocations
	}

	locationName := chosen.Name
	if strings.HasPrefix(locationName, "locations/") {
		locationName = account + "/" + locationName
	}

	key := OwnerKey(ownerEmail, locationName)
	if existing, err := repo.FindJobByOwnerKey(ctx, s.DB, key); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	title := chosen.Title
	if title == "" {
		title = "Your business"
	}
	return repo.CreateJob(ctx, s.DB, resourceScheme+locationName, key, title)
}

// LastJob returns the most recent job belonging to an owner, or nil.
func (s *SyncService) LastJob(ctx context.Context, ownerEmail string) (*domain.Job, error) {
	prefix := "user::" + strings.ToLower(strings.TrimSpace(ownerEmail)) + "::"
	return repo.LatestJobByOwnerPrefix(ctx, s.DB, prefix)
}

// Sync runs one synchronization pass for the job using the given access
// token. See the package comment for the failure and commit semantics.
func (s *SyncService) Sync(ctx context.Context, job *domain.Job, accessToken string) (*SyncResult, error) {
	location, ok := strings.CutPrefix(job.ResourceRef, resourceScheme)
	if !ok || strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("%w: resource ref %q", ErrInvalidJobState, job.ResourceRef)
	}

	if err := repo.UpdateJobStatus(ctx, s.DB, job.ID, domain.JobStatusRunning, nil); err != nil {
		return nil, err
	}

	res, err := s.run(ctx, job.ID, location, accessToken)
	if err != nil {
		msg := err.Error()
		syncRuns.WithLabelValues(domain.JobStatusFailed).Inc()
		if uerr := repo.UpdateJobStatus(ctx, s.DB, job.ID, domain.JobStatusFailed, &msg); uerr != nil {
			log.Error().Err(uerr).Uint("job_id", job.ID).Msg("failed to record job failure")
		}
		return nil, err
	}

	syncRuns.WithLabelValues(domain.JobStatusDone).Inc()
	if err := repo.UpdateJobStatus(ctx, s.DB, job.ID, domain.JobStatusDone, nil); err != nil {
		return nil, err
	}
	return res, nil
}

// run executes the paging loop. Any error aborts the loop; pages committed
// before the error stay persisted.
func (s *SyncService) run(ctx context.Context, jobID uint, location, accessToken string) (*SyncResult, error) {
	seen, err := s.seedSeenSet(ctx, jobID)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{}
	pageToken := ""
	for {
		page, err := s.Feed.ListReviews(ctx, accessToken, location, s.pageSize, pageToken)
		if err != nil {
			return nil, err
		}

		batch := make([]domain.Review, 0, len(page.Items))
		for _, item := range page.Items {
			id := item.Identity()
			if _, dup := seen[id]; dup {
				res.Skipped++
				continue
			}
			rev, err := projectReview(jobID, item)
			if err != nil {
				return nil, err
			}
			batch = append(batch, *rev)
			seen[id] = struct{}{}
			res.Saved++
		}

		// One commit per page bounds the blast radius of a later failure.
		if err := repo.CreateReviews(ctx, s.DB, batch); err != nil {
			res.Saved -= len(batch)
			return nil, err
		}
		syncReviews.WithLabelValues("saved").Add(float64(len(batch)))
		syncReviews.WithLabelValues("skipped").Add(float64(len(page.Items) - len(batch)))

		if page.NextPageToken == "" {
			break
		}
		if res.Saved+res.Skipped > s.maxPerRun {
			// Runaway ceiling against an upstream that never stops paginating.
			log.Warn().Uint("job_id", jobID).Int("examined", res.Saved+res.Skipped).
				Msg("sync stopped at safety ceiling")
			break
		}
		pageToken = page.NextPageToken
	}

	res.Total = res.Saved + res.Skipped
	return res, nil
}

// seedSeenSet recomputes the external identity of the most recently stored
// reviews (bounded by the seen window) so the paging loop can dedup against
// prior runs.
func (s *SyncService) seedSeenSet(ctx context.Context, jobID uint) (map[string]struct{}, error) {
	rows, err := repo.ListRecentRawPayloads(ctx, s.DB, jobID, s.seenWindow)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		var item upstream.ReviewItem
		if err := json.Unmarshal([]byte(row.Raw), &item); err != nil {
			// A corrupt stored payload must not block future syncs.
			log.Warn().Uint("review_id", row.ID).Msg("skipping unparsable stored payload")
			continue
		}
		seen[item.Identity()] = struct{}{}
	}
	return seen, nil
}

// projectReview normalizes a feed item into a Review row, keeping the raw
// payload verbatim. A missing rating is stored as 0 and an empty body as ""
// (not NULL): downstream aggregation stays total and "no text" remains an
// observable fact for reply eligibility.
func projectReview(jobID uint, item upstream.ReviewItem) (*domain.Review, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}

	body := item.Body()
	rev := &domain.Review{
		JobID:  jobID,
		Rating: item.Rating(),
		Body:   &body,
		Raw:    string(raw),
	}
	if v := item.Author(); v != "" {
		rev.AuthorName = &v
	}
	if v := item.PublishedAt(); v != "" {
		rev.PublishedAt = &v
	}
	if v := item.Permalink(); v != "" {
		rev.Permalink = &v
	}
	return rev, nil
}
