// Handler wiring and shared request plumbing: the Handlers aggregate, the
// credential resolution helper every authenticated endpoint goes through,
// and the translation from service sentinel errors to HTTP responses.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/http/middleware"
	"github.com/tbourn/go-review-backend/internal/services"
)

// OwnerEmailHeader carries the connected owner's email on requests that use
// a stored credential instead of an inline bearer token. The rate limiter
// keys buckets off the same header, so the name lives in middleware.
const OwnerEmailHeader = middleware.OwnerEmailHeader

// Handlers aggregates the API endpoints and their service dependencies.
// PostLoginURL, when non-empty, is where the OAuth callback redirects the
// browser after a successful connect; empty means a JSON response.
type Handlers struct {
	DB *gorm.DB

	PostLoginURL string

	Tokens   *services.TokenService
	Sync     *services.SyncService
	Analysis *services.AnalysisService
	Replies  *services.ReplyService
	Outreach *services.OutreachService
	Settings *services.SettingsService
}

// New constructs the Handlers aggregate.
func New(db *gorm.DB, tokens *services.TokenService, sync *services.SyncService, analysis *services.AnalysisService, replies *services.ReplyService, outreach *services.OutreachService, settings *services.SettingsService) *Handlers {
	return &Handlers{
		DB:       db,
		Tokens:   tokens,
		Sync:     sync,
		Analysis: analysis,
		Replies:  replies,
		Outreach: outreach,
		Settings: settings,
	}
}

// resolveAccess produces an upstream access token and the owner email for
// the request: an Authorization bearer token is used inline, otherwise the
// X-Owner-Email header selects the stored credential. Writes the error
// response itself and returns ok=false on failure.
func (h *Handlers) resolveAccess(c *gin.Context) (accessToken, owner string, okAuth bool) {
	inline := bearerToken(c)
	email := strings.TrimSpace(c.GetHeader(OwnerEmailHeader))
	if inline == "" && email == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "provide a bearer token or "+OwnerEmailHeader)
		return "", "", false
	}

	token, owner, err := h.Tokens.ResolveAccess(c.Request.Context(), email, inline)
	if err != nil {
		mapServiceError(c, err)
		return "", "", false
	}
	c.Set("ownerEmail", owner)
	return token, owner, true
}

// bearerToken extracts the Authorization bearer credential, or "".
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// pathID parses a numeric path parameter. Writes the error response itself
// and returns ok=false on failure.
func pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

// mapServiceError translates service sentinel errors into the HTTP error
// taxonomy. Unknown errors become opaque 500s.
func mapServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAuthentication):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "credential could not be verified")
	case errors.Is(err, services.ErrNotConnected):
		fail(c, http.StatusUnauthorized, ErrCodeNotConnected, "owner is not connected")
	case errors.Is(err, services.ErrCredentialExchange):
		fail(c, http.StatusUnauthorized, ErrCodeTokenExchange, err.Error())
	case errors.Is(err, services.ErrJobNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "job not found")
	case errors.Is(err, services.ErrReviewNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "review not found")
	case errors.Is(err, services.ErrRequestNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "review request not found")
	case errors.Is(err, services.ErrNoLocations):
		fail(c, http.StatusNotFound, ErrCodeNoLocations, "no business locations found for this account")
	case errors.Is(err, services.ErrInvalidJobState):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidPhone):
		fail(c, http.StatusBadRequest, ErrCodeInvalidPhone, err.Error())
	case errors.Is(err, services.ErrUnresolvedReviewLink):
		fail(c, http.StatusBadRequest, ErrCodeUnresolvedLink, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
