// Derived analysis endpoints.
//
//   - POST /jobs/:id/analysis/topics       (topic breakdown)
//   - POST /jobs/:id/analysis/action-plan  (improvement plan)
//   - POST /reviews/:id/reply              (per-review reply draft)
//
// Analysis responses come back verbatim from the cache when the job's
// review set has not changed since the last computation; callers cannot
// distinguish a cached, freshly computed, or fallback payload.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/repo"
)

// AnalysisRequest carries the optional free-form parameters of an analysis.
// Semantically identical parameter objects hit the same cache row regardless
// of key ordering.
type AnalysisRequest struct {
	Params map[string]any `json:"params"`
}

// ReplyRequest selects the register of a generated review reply.
type ReplyRequest struct {
	Tone string `json:"tone"`
}

// Topics returns the topic breakdown for a job's reviews.
func (h *Handlers) Topics(c *gin.Context) {
	h.runAnalysis(c, h.Analysis.Topics)
}

// ActionPlan returns the improvement action plan for a job's reviews.
func (h *Handlers) ActionPlan(c *gin.Context) {
	h.runAnalysis(c, h.Analysis.ActionPlan)
}

type analysisFn func(ctx context.Context, jobID uint, params map[string]any) (json.RawMessage, error)

func (h *Handlers) runAnalysis(c *gin.Context, run analysisFn) {
	owner, okAuth := h.ownerIdentity(c)
	if !okAuth {
		return
	}
	jobID, okID := pathID(c, "id")
	if !okID {
		return
	}
	if _, okJob := h.ownedJob(c, owner, jobID); !okJob {
		return
	}

	var req AnalysisRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "params must be a JSON object")
			return
		}
	}

	payload, err := run(c.Request.Context(), jobID, req.Params)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeAnalysisFailed, err.Error())
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

// Reply returns the memoized reply draft for a review, generating one when
// needed.
func (h *Handlers) Reply(c *gin.Context) {
	owner, okAuth := h.ownerIdentity(c)
	if !okAuth {
		return
	}
	reviewID, okID := pathID(c, "id")
	if !okID {
		return
	}
	review, err := repo.GetReview(c.Request.Context(), h.DB, reviewID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "review not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if _, okJob := h.ownedJob(c, owner, review.JobID); !okJob {
		return
	}

	var req ReplyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid payload")
			return
		}
	}

	draft, err := h.Replies.GetOrGenerate(c.Request.Context(), reviewID, req.Tone)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, draft)
}
