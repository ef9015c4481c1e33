// Outreach endpoints.
//
//   - POST /jobs/:id/review-requests          (schedule a follow-up)
//   - GET  /jobs/:id/review-requests          (list a job's requests)
//   - GET  /jobs/:id/review-requests/stats    (per-status counts)
//   - POST /review-requests/:id/cancel        (cancel a scheduled request)
//   - POST /admin/review-requests/send-due    (run one sweep pass on demand)
//
// Cancellation is idempotent: cancelling a request that is already sent,
// cancelled, or failed returns the record unchanged.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/http/middleware"
	"github.com/tbourn/go-review-backend/internal/repo"
	"github.com/tbourn/go-review-backend/internal/utils"
)

// ScheduleRequest is the payload for scheduling a review follow-up.
// InteractionAt defaults to now when omitted.
type ScheduleRequest struct {
	CustomerName  string     `json:"customer_name"`
	Phone         string     `json:"phone" binding:"required"`
	InteractionAt *time.Time `json:"interaction_at"`
}

// ScheduleReviewRequest schedules a follow-up message for a completed
// customer interaction.
func (h *Handlers) ScheduleReviewRequest(c *gin.Context) {
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

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone required")
		return
	}
	interactionAt := time.Now().UTC()
	if req.InteractionAt != nil {
		interactionAt = req.InteractionAt.UTC()
	}

	rr, err := h.Outreach.Schedule(c.Request.Context(), jobID, req.CustomerName, req.Phone, interactionAt)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	ok(c, http.StatusCreated, rr)
}

// ListReviewRequests returns a job's requests, most recent interaction first.
func (h *Handlers) ListReviewRequests(c *gin.Context) {
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

	items, err := h.Outreach.List(c.Request.Context(), jobID, utilsLimit(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"requests": items})
}

// ReviewRequestStats returns per-status counts for a job's requests. Failed
// deliveries are never retried automatically; this is where they surface.
func (h *Handlers) ReviewRequestStats(c *gin.Context) {
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

	stats, err := h.Outreach.Stats(c.Request.Context(), jobID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}

// CancelReviewRequest cancels a scheduled request.
func (h *Handlers) CancelReviewRequest(c *gin.Context) {
	owner, okAuth := h.ownerIdentity(c)
	if !okAuth {
		return
	}
	id, okID := pathID(c, "id")
	if !okID {
		return
	}

	existing, err := repo.GetReviewRequest(c.Request.Context(), h.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "review request not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if _, okJob := h.ownedJob(c, owner, existing.JobID); !okJob {
		return
	}

	rr, err := h.Outreach.Cancel(c.Request.Context(), id)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, rr)
}

// SendDueNow runs one sweep pass immediately, outside the worker schedule.
func (h *Handlers) SendDueNow(c *gin.Context) {
	if _, okAuth := h.ownerIdentity(c); !okAuth {
		return
	}

	res, err := h.Outreach.Sweep(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	middleware.LoggerFrom(c).Info().
		Int("due", res.Due).Int("sent", res.Sent).Int("failed", res.Failed).
		Msg("manual sweep")
	ok(c, http.StatusOK, res)
}

// utilsLimit parses the limit query parameter, 0 meaning service default.
func utilsLimit(c *gin.Context) int {
	return utils.AtoiDefault(c.Query("limit"), 0)
}
