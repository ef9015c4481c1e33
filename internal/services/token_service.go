// Token lifecycle manager.
//
// Produces short-lived access credentials on demand: either by accepting a
// caller-supplied bearer token (and resolving its owner via introspection),
// or by exchanging the owner's stored refresh credential against the
// provider's token endpoint. Access tokens are deliberately not cached or
// stored; every resolution re-exchanges. That costs one round trip per call
// and keeps revocation immediate and the credential table tiny.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/config"
	"github.com/tbourn/go-review-backend/internal/repo"
	"github.com/tbourn/go-review-backend/internal/upstream"
)

// IdentityProvider resolves an access token to its owner identity.
// Satisfied by *upstream.Client.
type IdentityProvider interface {
	Introspect(ctx context.Context, accessToken string) (*upstream.Userinfo, error)
}

// TokenService implements the token lifecycle manager and the OAuth
// connect/callback flow that feeds it.
type TokenService struct {
	DB       *gorm.DB
	Identity IdentityProvider

	oauth *oauth2.Config
}

// NewTokenService constructs a TokenService bound to the configured
// provider endpoints.
func NewTokenService(db *gorm.DB, cfg config.Config, identity IdentityProvider) *TokenService {
	return &TokenService{
		DB:       db,
		Identity: identity,
		oauth: &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURI,
			Scopes:       strings.Fields(cfg.Google.Scopes),
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.Google.AuthURL,
				TokenURL: cfg.Google.TokenURL,
			},
		},
	}
}

// AuthCodeURL builds the provider authorization URL for the connect flow.
// access_type=offline and prompt=consent force the provider to return a
// refresh credential.
func (s *TokenService) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// HandleCallback completes the connect flow: exchanges the authorization
// code, introspects the resulting access token for the canonical owner
// email, and upserts the stored credential. The provider omits the refresh
// token on re-consent; an empty one never clobbers a stored credential.
// Returns the owner email.
func (s *TokenService) HandleCallback(ctx context.Context, code string) (string, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialExchange, err)
	}

	info, err := s.Identity.Introspect(ctx, tok.AccessToken)
	if err != nil || info.Email == "" {
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	email := strings.ToLower(strings.TrimSpace(info.Email))

	var subject *string
	if info.Sub != "" {
		subject = &info.Sub
	}

	existing, err := repo.GetCredentialByEmail(ctx, s.DB, email)
	if err != nil {
		return "", err
	}
	if existing == nil && tok.RefreshToken == "" {
		// First consent without a refresh credential: nothing usable to store.
		return "", ErrNotConnected
	}
	if _, err := repo.UpsertCredential(ctx, s.DB, email, tok.RefreshToken, subject, strings.Join(s.oauth.Scopes, " ")); err != nil {
		return "", err
	}
	return email, nil
}

// Disconnect soft-revokes the owner's stored credential.
func (s *TokenService) Disconnect(ctx context.Context, email string) error {
	err := repo.DisconnectCredential(ctx, s.DB, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotConnected
	}
	return err
}

// ResolveAccess produces a short-lived access token and the canonical owner
// identity behind it.
//
// With an inline bearer token the token is used as-is and the owner is
// resolved by introspection (ErrAuthentication when that yields no
// identity). Without one, ownerEmail selects the stored credential
// (ErrNotConnected when absent or soft-revoked) and the refresh credential
// is exchanged for a fresh access token (ErrCredentialExchange carrying the
// provider response when rejected, the usual symptom of an externally
// revoked grant).
func (s *TokenService) ResolveAccess(ctx context.Context, ownerEmail, inlineToken string) (accessToken, owner string, err error) {
	if inlineToken != "" {
		info, ierr := s.Identity.Introspect(ctx, inlineToken)
		if ierr != nil || info.Email == "" {
			return "", "", fmt.Errorf("%w: %v", ErrAuthentication, ierr)
		}
		return inlineToken, strings.ToLower(strings.TrimSpace(info.Email)), nil
	}

	email := strings.ToLower(strings.TrimSpace(ownerEmail))
	if email == "" {
		return "", "", ErrNotConnected
	}
	cred, err := repo.GetCredentialByEmail(ctx, s.DB, email)
	if err != nil {
		return "", "", err
	}
	if cred == nil || !cred.Connected {
		return "", "", ErrNotConnected
	}

	ts := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := ts.Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			return "", "", fmt.Errorf("%w: %s: %s", ErrCredentialExchange, rErr.Response.Status, rErr.Body)
		}
		return "", "", fmt.Errorf("%w: %v", ErrCredentialExchange, err)
	}
	return tok.AccessToken, email, nil
}
