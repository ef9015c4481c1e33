// Job and review endpoints.
//
//   - POST /jobs/auto            (resolve-or-create the owner's job)
//   - POST /jobs/:id/sync        (run one synchronization pass)
//   - GET  /jobs/last            (most recent job for the owner)
//   - GET  /jobs/:id             (job status)
//   - GET  /jobs/:id/reviews     (paginated stored reviews)
//
// Jobs are owner-scoped: a job whose owner key does not match the caller is
// reported as not found rather than forbidden, so job ids do not leak.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/domain"
	"github.com/tbourn/go-review-backend/internal/http/middleware"
	"github.com/tbourn/go-review-backend/internal/repo"
	"github.com/tbourn/go-review-backend/internal/utils"
)

// JobResponse is the JSON surface of a job.
type JobResponse struct {
	ID        uint   `json:"id"`
	PlaceName string `json:"place_name"`
	Status    string `json:"status"`
	LastError string `json:"last_error,omitempty"`
}

// SyncResponse pairs the run result with the job's terminal state.
type SyncResponse struct {
	Job     JobResponse `json:"job"`
	Saved   int         `json:"saved"`
	Skipped int         `json:"skipped"`
	Total   int         `json:"total"`
}

// ListReviewsResponse contains a page of reviews and pagination metadata.
type ListReviewsResponse struct {
	Reviews    []domain.Review `json:"reviews"`
	Pagination Pagination      `json:"pagination"`
}

// Pagination is the standard page envelope.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func jobResponse(j *domain.Job) JobResponse {
	resp := JobResponse{ID: j.ID, PlaceName: j.PlaceName, Status: j.Status}
	if j.LastError != nil {
		resp.LastError = *j.LastError
	}
	return resp
}

// AutoJob resolves the caller's canonical job, creating one from location
// discovery when none exists yet.
func (h *Handlers) AutoJob(c *gin.Context) {
	token, owner, okAuth := h.resolveAccess(c)
	if !okAuth {
		return
	}

	job, err := h.Sync.EnsureJob(c.Request.Context(), token, owner)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, jobResponse(job))
}

// RunSync executes one synchronization pass for the caller's job. A failed
// run reports the job's terminal status and error text alongside the code.
func (h *Handlers) RunSync(c *gin.Context) {
	token, owner, okAuth := h.resolveAccess(c)
	if !okAuth {
		return
	}
	jobID, okID := pathID(c, "id")
	if !okID {
		return
	}
	job, okJob := h.ownedJob(c, owner, jobID)
	if !okJob {
		return
	}

	res, err := h.Sync.Sync(c.Request.Context(), job, token)
	if err != nil {
		if refreshed, gerr := repo.GetJob(c.Request.Context(), h.DB, jobID); gerr == nil {
			job = refreshed
		}
		middleware.LoggerFrom(c).Error().Err(err).Uint("job_id", jobID).Msg("sync failed")
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       ErrCodeSyncFailed,
			"message":    err.Error(),
			"job":        jobResponse(job),
		})
		return
	}

	job, err = repo.GetJob(c.Request.Context(), h.DB, jobID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, SyncResponse{
		Job:     jobResponse(job),
		Saved:   res.Saved,
		Skipped: res.Skipped,
		Total:   res.Total,
	})
}

// LastJob returns the caller's most recent job.
func (h *Handlers) LastJob(c *gin.Context) {
	owner, okAuth := h.ownerIdentity(c)
	if !okAuth {
		return
	}

	job, err := h.Sync.LastJob(c.Request.Context(), owner)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if job == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no job yet")
		return
	}
	ok(c, http.StatusOK, jobResponse(job))
}

// GetJob returns a job's status.
func (h *Handlers) GetJob(c *gin.Context) {
	owner, okAuth := h.ownerIdentity(c)
	if !okAuth {
		return
	}
	jobID, okID := pathID(c, "id")
	if !okID {
		return
	}
	job, okJob := h.ownedJob(c, owner, jobID)
	if !okJob {
		return
	}
	ok(c, http.StatusOK, jobResponse(job))
}

// ListReviews returns a page of a job's stored reviews, newest first.
func (h *Handlers) ListReviews(c *gin.Context) {
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

	page, pageSize := clampPagination(c)
	ctx := c.Request.Context()

	total, err := repo.CountReviews(ctx, h.DB, jobID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	items, err := repo.ListReviewsPage(ctx, h.DB, jobID, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListReviewsResponse{
		Reviews: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ownerIdentity resolves the caller identity without touching the upstream
// token endpoint: the X-Owner-Email header is taken as-is for read paths,
// and an inline bearer token is introspected. Writes the error response
// itself and returns ok=false on failure.
func (h *Handlers) ownerIdentity(c *gin.Context) (string, bool) {
	if email := strings.TrimSpace(c.GetHeader(OwnerEmailHeader)); email != "" {
		owner := strings.ToLower(email)
		c.Set("ownerEmail", owner)
		return owner, true
	}
	if tok := bearerToken(c); tok != "" {
		_, owner, err := h.Tokens.ResolveAccess(c.Request.Context(), "", tok)
		if err != nil {
			mapServiceError(c, err)
			return "", false
		}
		c.Set("ownerEmail", owner)
		return owner, true
	}
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "provide a bearer token or "+OwnerEmailHeader)
	return "", false
}

// ownedJob loads a job and enforces the owner scope. Writes the error
// response itself and returns ok=false on failure.
func (h *Handlers) ownedJob(c *gin.Context, owner string, jobID uint) (*domain.Job, bool) {
	job, err := repo.GetJob(c.Request.Context(), h.DB, jobID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return nil, false
	}
	if !strings.HasPrefix(job.OwnerKey, "user::"+strings.ToLower(owner)+"::") {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "job not found")
		return nil, false
	}
	return job, true
}

// clampPagination parses page/page_size query parameters with defaults and
// caps.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}
