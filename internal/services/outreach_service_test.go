package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/config"
	"github.com/tbourn/go-review-backend/internal/domain"
	"github.com/tbourn/go-review-backend/internal/repo"
	"github.com/tbourn/go-review-backend/internal/upstream"
)

type sentMsg struct {
	to   string
	body string
}

// fakeMessenger records sends and can fail selectively per destination.
type fakeMessenger struct {
	sent   []sentMsg
	err    error
	failTo map[string]error
}

func (f *fakeMessenger) Send(ctx context.Context, to, body string) (string, error) {
	if err := f.failTo[to]; err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMsg{to: to, body: body})
	return fmt.Sprintf("SM%d", len(f.sent)), nil
}

type fakePlaces struct {
	id    string
	err   error
	calls int
}

func (f *fakePlaces) FindPlaceID(ctx context.Context, businessName string) (string, error) {
	f.calls++
	return f.id, f.err
}

func testOutreachConfig() config.OutreachConfig {
	return config.OutreachConfig{
		BatchSize:    25,
		SendDelayMin: 15 * time.Minute,
		SendDelayMax: 30 * time.Minute,
	}
}

func newOutreach(db *gorm.DB, m upstream.Messenger, p PlaceResolver) *OutreachService {
	return NewOutreachService(db, m, p, testOutreachConfig())
}

// dueRequest inserts a scheduled request whose send time already passed.
func dueRequest(t *testing.T, db *gorm.DB, jobID uint, phone string) *domain.ReviewRequest {
	t.Helper()
	past := time.Now().UTC().Add(-time.Minute)
	rr, err := repo.CreateReviewRequest(context.Background(), db, jobID, "Pat", phone, past.Add(-20*time.Minute), past)
	if err != nil {
		t.Fatalf("CreateReviewRequest: %v", err)
	}
	return rr
}

func storeSettings(t *testing.T, db *gorm.DB, jobID uint, placeID, reviewURL, businessName *string) {
	t.Helper()
	if _, err := repo.UpsertBusinessSettings(context.Background(), db, jobID, placeID, reviewURL, businessName); err != nil {
		t.Fatalf("UpsertBusinessSettings: %v", err)
	}
}

func TestScheduleDelayWindow(t *testing.T) {
	db := newTestDB(t)
	job := mkSyncJob(t, db)
	svc := newOutreach(db, &fakeMessenger{}, &fakePlaces{})

	interactionAt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		rr, err := svc.Schedule(context.Background(), job.ID, "Pat", "+15557654321", interactionAt)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		delay := rr.SendAt.Sub(interactionAt)
		if delay < 15*time.Minute || delay > 30*time.Minute {
			t.Fatalf("delay = %v; want within [15m, 30m]", delay)
		}
		if rr.Status != domain.RequestStatusScheduled {
			t.Fatalf("status = %q; want scheduled", rr.Status)
		}
	}
}

func TestScheduleValidation(t *testing.T) {
	db := newTestDB(t)
	job := mkSyncJob(t, db)
	svc := newOutreach(db, &fakeMessenger{}, &fakePlaces{})
	ctx := context.Background()
	now := time.Now().UTC()

	for _, phone := range []string{"", "5551234567", "+0123456789", "+1555CALLME", "+12345"} {
		if _, err := svc.Schedule(ctx, job.ID, "Pat", phone, now); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("Schedule(%q) error = %v; want ErrInvalidPhone", phone, err)
		}
	}

	if _, err := svc.Schedule(ctx, job.ID+99, "Pat", "+15557654321", now); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Schedule(unknown job) error = %v; want ErrJobNotFound", err)
	}
}

func TestCancelLifecycle(t *testing.T) {
	db := newTestDB(t)
	job := mkSyncJob(t, db)
	svc := newOutreach(db, &fakeMessenger{}, &fakePlaces{})
	ctx := context.Background()

	rr := dueRequest(t, db, job.ID, "+15557654321")

	got, err := svc.Cancel(ctx, rr.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != domain.RequestStatusCancelled || got.CancelledAt == nil {
		t.Fatalf("cancelled request = %+v", got)
	}

	// Retried cancellation is a no-op.
	again, err := svc.Cancel(ctx, rr.ID)
	if err != nil {
		t.Fatalf("Cancel(again): %v", err)
	}
	if again.Status != domain.RequestStatusCancelled {
		t.Fatalf("status after retry = %q", again.Status)
	}

	if _, err := svc.Cancel(ctx, rr.ID+99); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("Cancel(unknown) error = %v; want ErrRequestNotFound", err)
	}

	// A cancelled request never comes due.
	res, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Due != 0 {
		t.Fatalf("sweep picked up a cancelled request: %+v", res)
	}
}

func TestSweepSendsDueWithStoredURL(t *testing.T) {
	db := newTestDB(t)
	job := mkSyncJob(t, db)
	url := "https://example.com/review-here"
	storeSettings(t, db, job.ID, nil, &url, nil)

	due := dueRequest(t, db, job.ID, "+15557654321")
	// Not yet due; must stay scheduled.
	future := time.Now().UTC().Add(time.Hour)
	if _, err := repo.CreateReviewRequest(context.Background(), db, job.ID, "Sam", "+15550009999", future.Add(-20*time.Minute), future); err != nil {
		t.Fatalf("CreateReviewRequest: %v", err)
	}

	messenger := &fakeMessenger{}
	places := &fakePlaces{}
	svc := newOutreach(db, messenger, places)

	res, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Due != 1 || res.Sent != 1 || res.Failed != 0 {
		t.Fatalf("sweep = %+v; want one delivery", res)
	}
	if len(messenger.sent) != 1 || messenger.sent[0].to != "+15557654321" {
		t.Fatalf("messenger.sent = %+v", messenger.sent)
	}
	body := messenger.sent[0].body
	if !strings.Contains(body, url) || !strings.Contains(body, "Pat") {
		t.Errorf("message body = %q; want the stored link and the customer name", body)
	}
	if places.calls != 0 {
		t.Errorf("place lookups = %d; the stored URL must short-circuit the chain", places.calls)
	}

	got, _ := repo.GetReviewRequest(context.Background(), db, due.ID)
	if got.Status != domain.RequestStatusSent || got.SentAt == nil {
		t.Fatalf("delivered request = %+v", got)
	}
}

func TestSweepDerivesURLFromStoredPlaceID(t *testing.T) {
	db := newTestDB(t)
	job := mkSyncJob(t, db)
	placeID := "ChIJcorner"
	storeSettings(t, db, job.ID, &placeID, nil, nil)
	dueRequest(t, db, job.ID, "+15557654321")

	messenger := &fakeMessenger{}
	svc := newOutreach(db, messenger, &fakePlaces{})

	res, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Sent != 1 {
		t.Fatalf("sweep = %+v", res)
	}

	wantURL := upstream.ReviewURLFromPlaceID(placeID)
	if !strings.Contains(messenger.sent[0].body, wantURL) {
		t.Errorf("message body = %q; want derived url %q", messenger.sent[0].body, wantURL)
	}

	// The derived URL is backfilled so later sweeps skip the derivation.
	settings, err := repo.GetBusinessSettings(context.Background(), db, job.ID)
	if err != nil {
		t.Fatalf("GetBusinessSettings: %v", err)
	}
	if settings.ReviewURL == nil || *settings.ReviewURL != wantURL {
		t.Errorf("persisted ReviewURL = %v; want %q", settings.ReviewURL, wantURL)
	}
}

func TestSweepResolvesPlaceByNameOnce(t *testing.T) {
	db := newTestDB(t)
	job := mkSyncJob(t, db)
	dueRequest(t, db, job.ID, "+15557654321")

	messenger := &fakeMessenger{}
	places := &fakePlaces{id: "ChIJfound"}
	svc := newOutreach(db, messenger, places)
	ctx := context.Background()

	res, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Sent != 1 || places.calls != 1 {
		t.Fatalf("sweep = %+v, lookups = %d", res, places.calls)
	}

	// Both discoveries persisted.
	settings, err := repo.GetBusinessSettings(ctx, db, job.ID)
	if err != nil {
		t.Fatalf("GetBusinessSettings: %v", err)
	}
	if settings.PlaceID == nil || *settings.PlaceID != "ChIJfound" {
		t.Errorf("persisted PlaceID = %v; want ChIJfound", settings.PlaceID)
	}
	if settings.ReviewURL == nil || *settings.ReviewURL == "" {
		t.Errorf("persisted ReviewURL = %v; want the derived link", settings.ReviewURL)
	}

	// A later due request reuses the stored URL instead of a second lookup.
	dueRequest(t, db, job.ID, "+15550001122")
	if _, err := svc.Sweep(ctx); err != nil {
		t.Fatalf("Sweep(second): %v", err)
	}
	if places.calls != 1 {
		t.Errorf("place lookups = %d; want 1", places.calls)
	}
}

func TestSweepFailureDoesNotAbortBatch(t *testing.T) {
	db := newTestDB(t)
	job := mkSyncJob(t, db)
	url := "https://example.com/review-here"
	storeSettings(t, db, job.ID, nil, &url, nil)

	bad := dueRequest(t, db, job.ID, "+15550000000")
	good := dueRequest(t, db, job.ID, "+15557654321")

	messenger := &fakeMessenger{failTo: map[string]error{
		"+15550000000": errors.New("carrier rejected the message"),
	}}
	svc := newOutreach(db, messenger, &fakePlaces{})
	ctx := context.Background()

	res, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Due != 2 || res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("sweep = %+v; want one sent, one failed", res)
	}

	gotBad, _ := repo.GetReviewRequest(ctx, db, bad.ID)
	if gotBad.Status != domain.RequestStatusFailed || gotBad.ErrorMessage == nil ||
		!strings.Contains(*gotBad.ErrorMessage, "carrier rejected") {
		t.Fatalf("failed request = %+v", gotBad)
	}
	gotGood, _ := repo.GetReviewRequest(ctx, db, good.ID)
	if gotGood.Status != domain.RequestStatusSent {
		t.Fatalf("good request = %+v", gotGood)
	}

	// Failed requests are terminal: the next sweep leaves them alone.
	res, err = svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep(second): %v", err)
	}
	if res.Due != 0 {
		t.Fatalf("second sweep = %+v; want nothing due", res)
	}

	stats, err := svc.Stats(ctx, job.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Sent != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestSweepUnresolvedReviewLink(t *testing.T) {
	db := newTestDB(t)
	job := mkSyncJob(t, db)
	rr := dueRequest(t, db, job.ID, "+15557654321")

	messenger := &fakeMessenger{}
	svc := newOutreach(db, messenger, &fakePlaces{id: ""})

	res, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Failed != 1 || len(messenger.sent) != 0 {
		t.Fatalf("sweep = %+v, sent = %d; want a failure before any send", res, len(messenger.sent))
	}

	got, _ := repo.GetReviewRequest(context.Background(), db, rr.ID)
	if got.Status != domain.RequestStatusFailed || got.ErrorMessage == nil {
		t.Fatalf("request = %+v; want failed with error text", got)
	}
}
