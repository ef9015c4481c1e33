// Business settings endpoints.
//
//   - GET /jobs/:id/settings   (read settings, lazily backfilling the URL)
//   - PUT /jobs/:id/settings   (partial update; omitted fields untouched)
//
// A place id supplied without a review URL derives one; setting a field to
// an empty string clears it.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SettingsRequest is the partial-update payload. Nil pointers leave the
// stored value untouched.
type SettingsRequest struct {
	PlaceID      *string `json:"place_id"`
	ReviewURL    *string `json:"review_url"`
	BusinessName *string `json:"business_name"`
}

// GetSettings returns a job's business settings.
func (h *Handlers) GetSettings(c *gin.Context) {
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

	settings, err := h.Settings.Get(c.Request.Context(), jobID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, settings)
}

// UpdateSettings applies a partial update to a job's business settings.
func (h *Handlers) UpdateSettings(c *gin.Context) {
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

	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid payload")
		return
	}

	settings, err := h.Settings.Upsert(c.Request.Context(), jobID, req.PlaceID, req.ReviewURL, req.BusinessName)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, settings)
}
