// OAuth connect flow endpoints.
//
//   - GET  /auth/google/login      (redirect to the provider consent screen)
//   - GET  /auth/google/callback   (code exchange, credential storage)
//   - POST /auth/google/disconnect (soft-revoke the stored credential)
//
// The login redirect carries a random state value pinned in a short-lived
// cookie; the callback rejects a mismatch.
package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-review-backend/internal/http/middleware"
)

const stateCookie = "oauth_state"

// Login redirects the browser to the provider authorization URL.
func (h *Handlers) Login(c *gin.Context) {
	state := uuid.NewString()
	c.SetCookie(stateCookie, state, 600, "/", "", isSecure(c), true)
	c.Redirect(http.StatusFound, h.Tokens.AuthCodeURL(state))
}

// Callback completes the connect flow and hands the browser back to the
// application.
func (h *Handlers) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "provider returned: "+errParam)
		return
	}

	state := c.Query("state")
	want, err := c.Cookie(stateCookie)
	if err != nil || state == "" || state != want {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "state mismatch")
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", "", isSecure(c), true)

	code := c.Query("code")
	if code == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code required")
		return
	}

	email, err := h.Tokens.HandleCallback(c.Request.Context(), code)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	middleware.LoggerFrom(c).Info().Str("owner", email).Msg("owner connected")

	if h.PostLoginURL != "" {
		c.Redirect(http.StatusFound, h.PostLoginURL+"?connected="+url.QueryEscape(email))
		return
	}
	ok(c, http.StatusOK, gin.H{"connected": true, "email": email})
}

// Disconnect soft-revokes the stored credential for the owner named by the
// X-Owner-Email header.
func (h *Handlers) Disconnect(c *gin.Context) {
	email := strings.TrimSpace(c.GetHeader(OwnerEmailHeader))
	if email == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, OwnerEmailHeader+" required")
		return
	}
	if err := h.Tokens.Disconnect(c.Request.Context(), email); err != nil {
		mapServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"disconnected": true})
}

func isSecure(c *gin.Context) bool {
	return c.Request.TLS != nil ||
		strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}
