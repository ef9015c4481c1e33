// Per-review AI reply drafts.
//
// One memoized draft per review, keyed by the review id and guarded by a
// hash of the (rating, body) input pair. The draft is regenerated exactly
// when that hash differs from the stored one, which happens when an upstream
// edit re-syncs into a new body for the same row.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/ai"
	"github.com/tbourn/go-review-backend/internal/domain"
	"github.com/tbourn/go-review-backend/internal/repo"
)

// ReplyDraft is the reply surface returned to callers.
type ReplyDraft struct {
	ReviewID  uint      `json:"review_id"`
	ReplyText string    `json:"reply_text"`
	Model     string    `json:"model"`
	Tone      string    `json:"tone"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReplyService generates and memoizes one reply draft per review.
type ReplyService struct {
	DB *gorm.DB
	AI ai.Completer

	model string
}

// NewReplyService constructs a ReplyService. model tags memoized drafts with
// the generator that produced them.
func NewReplyService(db *gorm.DB, completer ai.Completer, model string) *ReplyService {
	return &ReplyService{DB: db, AI: completer, model: model}
}

// GetOrGenerate returns the reply draft for a review, generating one when
// none is memoized or the review's (rating, body) pair changed since the
// stored draft. A failed generation degrades to a rating-keyed template and
// is not memoized, so the next request retries the AI path.
func (s *ReplyService) GetOrGenerate(ctx context.Context, reviewID uint, tone string) (*ReplyDraft, error) {
	review, err := repo.GetReview(ctx, s.DB, reviewID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReviewNotFound
	}
	if err != nil {
		return nil, err
	}

	tone = normalizeTone(tone)
	hash := replyInputHash(review, tone)

	stored, err := repo.GetReplyByReviewID(ctx, s.DB, reviewID)
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.InputHash == hash {
		return draftFrom(stored), nil
	}

	text, err := s.generate(ctx, review, tone)
	if err != nil {
		log.Warn().Err(err).Uint("review_id", reviewID).
			Msg("reply generation failed, serving template")
		return &ReplyDraft{
			ReviewID:  reviewID,
			ReplyText: templateReply(review),
			Model:     "template",
			Tone:      tone,
			UpdatedAt: time.Now().UTC(),
		}, nil
	}

	entry := &domain.ReviewAIReply{
		ReviewID:  reviewID,
		JobID:     review.JobID,
		InputHash: hash,
		ReplyText: text,
		Model:     s.model,
		Tone:      tone,
	}
	if err := repo.UpsertReply(ctx, s.DB, entry); err != nil {
		return nil, err
	}
	return draftFrom(entry), nil
}

func draftFrom(e *domain.ReviewAIReply) *ReplyDraft {
	return &ReplyDraft{
		ReviewID:  e.ReviewID,
		ReplyText: e.ReplyText,
		Model:     e.Model,
		Tone:      e.Tone,
		UpdatedAt: e.UpdatedAt,
	}
}

func (s *ReplyService) generate(ctx context.Context, review *domain.Review, tone string) (string, error) {
	system := "You draft owner replies to customer reviews for a small business. " +
		"Tone: " + tone + ". Two or three sentences, no hashtags, no emoji, " +
		"never promise compensation. Respond with the reply text only."

	body := ""
	if review.Body != nil {
		body = strings.TrimSpace(*review.Body)
	}
	author := "a customer"
	if review.AuthorName != nil && *review.AuthorName != "" {
		author = *review.AuthorName
	}
	user := fmt.Sprintf("Review by %s, rated %d/5:\n%s", author, review.Rating, body)

	out, err := s.AI.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(out), `"`)), nil
}

// replyInputHash hashes what the draft depends on. Tone participates so a
// tone switch regenerates rather than serving the old register.
func replyInputHash(review *domain.Review, tone string) string {
	body := ""
	if review.Body != nil {
		body = *review.Body
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", review.Rating, body, tone)))
	return hex.EncodeToString(sum[:])
}

func normalizeTone(tone string) string {
	switch strings.ToLower(strings.TrimSpace(tone)) {
	case "formal":
		return "formal"
	case "apologetic":
		return "apologetic"
	default:
		return "friendly"
	}
}

// templateReply is the deterministic degradation when generation fails.
func templateReply(review *domain.Review) string {
	if review.Rating >= 4 {
		return "Thank you so much for the kind words! We're thrilled you had a great experience and hope to see you again soon."
	}
	if review.Rating >= 3 {
		return "Thank you for your feedback. We're glad for what went well and we're working on the rest; we hope to do better on your next visit."
	}
	return "We're sorry your experience fell short. Your feedback matters to us and we'd welcome the chance to make it right."
}
