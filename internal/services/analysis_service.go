// Derived analysis cache.
//
// Wraps the expensive AI computations (topic breakdown, action plan) behind a
// memoization table keyed by (job, kind, params hash) and invalidated by a
// dataset signature instead of content hashing. The signature is the
// (eligible count, max review id) pair, monotonic under the append-only
// review model, so equality with the stored pair proves the source data is
// unchanged and the stored payload can be returned verbatim.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/ai"
	"github.com/tbourn/go-review-backend/internal/config"
	"github.com/tbourn/go-review-backend/internal/domain"
	"github.com/tbourn/go-review-backend/internal/repo"
)

// Analysis kinds memoized by the cache.
const (
	KindTopics     = "topics"
	KindActionPlan = "action_plan"
)

// Topic is one entry of a topic breakdown.
type Topic struct {
	Name      string `json:"name"`
	Sentiment string `json:"sentiment"`
	Mentions  int    `json:"mentions"`
}

// TopicsResult is the payload shape of a topics analysis.
type TopicsResult struct {
	OverallSentiment string  `json:"overall_sentiment"`
	Topics           []Topic `json:"topics"`
}

// ActionPlanResult is the payload shape of an action-plan analysis.
type ActionPlanResult struct {
	Summary string   `json:"summary"`
	Actions []string `json:"actions"`
}

// AnalysisService computes and memoizes derived analyses over a job's
// reviews.
type AnalysisService struct {
	DB *gorm.DB
	AI ai.Completer

	eligibleDays int
}

// NewAnalysisService constructs an AnalysisService. eligibleDays > 0
// restricts analyses to reviews stored within that many days; 0 means all.
func NewAnalysisService(db *gorm.DB, completer ai.Completer, cfg config.SyncConfig) *AnalysisService {
	return &AnalysisService{DB: db, AI: completer, eligibleDays: cfg.EligibleDays}
}

// Topics returns the topic breakdown for a job, from cache when the dataset
// signature is unchanged.
func (s *AnalysisService) Topics(ctx context.Context, jobID uint, params map[string]any) (json.RawMessage, error) {
	return s.getOrCompute(ctx, jobID, KindTopics, params, s.computeTopics, emptyTopicsPayload)
}

// ActionPlan returns the improvement action plan for a job, from cache when
// the dataset signature is unchanged.
func (s *AnalysisService) ActionPlan(ctx context.Context, jobID uint, params map[string]any) (json.RawMessage, error) {
	return s.getOrCompute(ctx, jobID, KindActionPlan, params, s.computeActionPlan, emptyActionPlanPayload)
}

type computeFn func(ctx context.Context, reviews []domain.Review, params map[string]any) ([]byte, error)

// getOrCompute is the cache engine: hash params, take the dataset signature,
// short-circuit an empty dataset, serve a signature-matching row verbatim,
// otherwise recompute and upsert. A failed computation degrades to the
// deterministic fallback and never writes a cache row.
func (s *AnalysisService) getOrCompute(ctx context.Context, jobID uint, kind string, params map[string]any, compute computeFn, empty func() []byte) (json.RawMessage, error) {
	paramsHash, err := hashParams(params)
	if err != nil {
		return nil, err
	}

	since := s.sinceCutoff()
	count, maxID, err := repo.EligibleSignature(ctx, s.DB, jobID, since)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		// Nothing to analyze and nothing worth memoizing.
		return empty(), nil
	}

	cached, err := repo.GetAnalysisCache(ctx, s.DB, jobID, kind, paramsHash)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.SourceCount == count && cached.SourceMaxID == maxID {
		cacheLookups.WithLabelValues(kind, "hit").Inc()
		return json.RawMessage(cached.Payload), nil
	}
	if cached != nil {
		cacheLookups.WithLabelValues(kind, "stale").Inc()
	} else {
		cacheLookups.WithLabelValues(kind, "miss").Inc()
	}

	reviews, err := repo.ListEligibleReviews(ctx, s.DB, jobID, since)
	if err != nil {
		return nil, err
	}

	payload, err := compute(ctx, reviews, params)
	if err != nil {
		log.Warn().Err(err).Uint("job_id", jobID).Str("kind", kind).
			Msg("analysis computation failed, serving fallback")
		return s.fallback(kind, reviews), nil
	}

	entry := &domain.AnalysisCache{
		JobID:       jobID,
		Kind:        kind,
		ParamsHash:  paramsHash,
		SourceCount: count,
		SourceMaxID: maxID,
		Payload:     string(payload),
		ComputedAt:  time.Now().UTC(),
	}
	if err := repo.UpsertAnalysisCache(ctx, s.DB, entry); err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *AnalysisService) sinceCutoff() *time.Time {
	if s.eligibleDays <= 0 {
		return nil
	}
	t := time.Now().UTC().AddDate(0, 0, -s.eligibleDays)
	return &t
}

// hashParams produces a stable hash of the parameter object. Marshaling a
// map sorts keys, so semantically identical requests collide on the same
// cache row regardless of how the caller ordered them.
func hashParams(params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	canonical, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func (s *AnalysisService) computeTopics(ctx context.Context, reviews []domain.Review, params map[string]any) ([]byte, error) {
	system := "You analyze customer reviews for a small business. " +
		"Respond with JSON only, shaped {\"overall_sentiment\": \"positive|mixed|negative\", " +
		"\"topics\": [{\"name\": string, \"sentiment\": \"positive|mixed|negative\", \"mentions\": int}]}. " +
		"At most 8 topics, ordered by mentions."
	raw, err := s.AI.Complete(ctx, system, reviewsPrompt(reviews, params))
	if err != nil {
		return nil, err
	}

	var out TopicsResult
	if err := json.Unmarshal(stripFences(raw), &out); err != nil {
		return nil, fmt.Errorf("topics payload malformed: %w", err)
	}
	if out.Topics == nil {
		out.Topics = []Topic{}
	}
	return json.Marshal(out)
}

func (s *AnalysisService) computeActionPlan(ctx context.Context, reviews []domain.Review, params map[string]any) ([]byte, error) {
	system := "You turn customer review feedback into a short improvement plan for a small business owner. " +
		"Respond with JSON only, shaped {\"summary\": string, \"actions\": [string]}. " +
		"At most 5 actions, each concrete and doable within a week."
	raw, err := s.AI.Complete(ctx, system, reviewsPrompt(reviews, params))
	if err != nil {
		return nil, err
	}

	var out ActionPlanResult
	if err := json.Unmarshal(stripFences(raw), &out); err != nil {
		return nil, fmt.Errorf("action plan payload malformed: %w", err)
	}
	if out.Actions == nil {
		out.Actions = []string{}
	}
	return json.Marshal(out)
}

// fallback produces a deterministic approximation from the average rating.
// Same schema as the computed payloads; callers cannot tell the two apart.
func (s *AnalysisService) fallback(kind string, reviews []domain.Review) []byte {
	bucket := sentimentBucket(reviews)
	switch kind {
	case KindActionPlan:
		res := ActionPlanResult{
			Summary: "Automatic summary based on average rating (" + bucket + " overall).",
			Actions: fallbackActions(bucket),
		}
		b, _ := json.Marshal(res)
		return b
	default:
		res := TopicsResult{
			OverallSentiment: bucket,
			Topics: []Topic{
				{Name: "overall experience", Sentiment: bucket, Mentions: len(reviews)},
			},
		}
		b, _ := json.Marshal(res)
		return b
	}
}

// sentimentBucket maps the average rating onto a coarse sentiment label.
func sentimentBucket(reviews []domain.Review) string {
	if len(reviews) == 0 {
		return "mixed"
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	avg := float64(sum) / float64(len(reviews))
	switch {
	case avg >= 4:
		return "positive"
	case avg >= 2.5:
		return "mixed"
	default:
		return "negative"
	}
}

func fallbackActions(bucket string) []string {
	switch bucket {
	case "positive":
		return []string{
			"Thank recent reviewers and ask happy customers for referrals.",
			"Keep doing what customers praise most often.",
		}
	case "negative":
		return []string{
			"Reply to every negative review within 24 hours.",
			"Identify the most repeated complaint and fix it first.",
			"Follow up privately with unhappy customers.",
		}
	default:
		return []string{
			"Reply to recent reviews, starting with the critical ones.",
			"Ask satisfied customers to share their experience.",
		}
	}
}

func emptyTopicsPayload() []byte {
	b, _ := json.Marshal(TopicsResult{OverallSentiment: "", Topics: []Topic{}})
	return b
}

func emptyActionPlanPayload() []byte {
	b, _ := json.Marshal(ActionPlanResult{Summary: "", Actions: []string{}})
	return b
}

// reviewsPrompt renders the eligible reviews into the user prompt. Bodies
// are truncated so one verbose review cannot crowd out the rest of the
// context window.
func reviewsPrompt(reviews []domain.Review, params map[string]any) string {
	var b strings.Builder
	if v, ok := params["focus"].(string); ok && v != "" {
		b.WriteString("Focus area: " + v + "\n\n")
	}
	b.WriteString("Customer reviews:\n")
	for _, r := range reviews {
		body := ""
		if r.Body != nil {
			body = strings.TrimSpace(*r.Body)
		}
		if len(body) > 500 {
			body = body[:500]
		}
		fmt.Fprintf(&b, "- [%d/5] %s\n", r.Rating, body)
	}
	return b.String()
}

// stripFences removes a surrounding markdown code fence, which chat models
// add even when told not to.
func stripFences(raw string) []byte {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	return []byte(s)
}
