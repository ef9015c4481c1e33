package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-review-backend/internal/config"
	"github.com/tbourn/go-review-backend/internal/repo"
	"github.com/tbourn/go-review-backend/internal/upstream"
)

// fakeIdentity resolves any token to a scripted identity.
type fakeIdentity struct {
	email string
	sub   string
	err   error
}

func (f *fakeIdentity) Introspect(ctx context.Context, accessToken string) (*upstream.Userinfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &upstream.Userinfo{Email: f.email, Sub: f.sub}, nil
}

func newTokenService(db *gorm.DB, tokenURL string, id IdentityProvider) *TokenService {
	cfg := config.Config{Google: config.GoogleConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     tokenURL,
		Scopes:       "email profile",
	}}
	return NewTokenService(db, cfg, id)
}

func seedCredential(t *testing.T, db *gorm.DB, email, refresh string) {
	t.Helper()
	if _, err := repo.UpsertCredential(context.Background(), db, email, refresh, nil, "email"); err != nil {
		t.Fatalf("UpsertCredential: %v", err)
	}
}

func TestResolveAccessInlineToken(t *testing.T) {
	db := newTestDB(t)
	svc := newTokenService(db, "http://invalid.test/token", &fakeIdentity{email: "Owner@Example.com"})

	tok, owner, err := svc.ResolveAccess(context.Background(), "", "inline-tok")
	if err != nil {
		t.Fatalf("ResolveAccess: %v", err)
	}
	if tok != "inline-tok" {
		t.Errorf("token = %q; want the inline token passed through", tok)
	}
	if owner != "owner@example.com" {
		t.Errorf("owner = %q; want the lowercased introspected email", owner)
	}
}

func TestResolveAccessInlineTokenRejected(t *testing.T) {
	db := newTestDB(t)
	svc := newTokenService(db, "http://invalid.test/token", &fakeIdentity{err: errors.New("bad token")})

	if _, _, err := svc.ResolveAccess(context.Background(), "", "bad"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("error = %v; want ErrAuthentication", err)
	}
}

func TestResolveAccessExchangesStoredCredential(t *testing.T) {
	var gotRefresh string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotRefresh = r.PostForm.Get("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	db := newTestDB(t)
	seedCredential(t, db, "owner@example.com", "rt-1")
	svc := newTokenService(db, srv.URL, &fakeIdentity{})

	tok, owner, err := svc.ResolveAccess(context.Background(), " Owner@Example.com ", "")
	if err != nil {
		t.Fatalf("ResolveAccess: %v", err)
	}
	if tok != "fresh-access" || owner != "owner@example.com" {
		t.Fatalf("ResolveAccess = %q, %q", tok, owner)
	}
	if gotRefresh != "rt-1" {
		t.Errorf("exchanged refresh token = %q; want rt-1", gotRefresh)
	}
}

func TestResolveAccessNotConnected(t *testing.T) {
	db := newTestDB(t)
	svc := newTokenService(db, "http://invalid.test/token", &fakeIdentity{})
	ctx := context.Background()

	if _, _, err := svc.ResolveAccess(ctx, "", ""); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("no identity at all: error = %v; want ErrNotConnected", err)
	}
	if _, _, err := svc.ResolveAccess(ctx, "nobody@example.com", ""); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("unknown owner: error = %v; want ErrNotConnected", err)
	}

	// A soft-revoked credential behaves like a missing one.
	seedCredential(t, db, "gone@example.com", "rt-x")
	if err := svc.Disconnect(ctx, "gone@example.com"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, _, err := svc.ResolveAccess(ctx, "gone@example.com", ""); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("disconnected owner: error = %v; want ErrNotConnected", err)
	}
}

func TestResolveAccessExchangeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	db := newTestDB(t)
	seedCredential(t, db, "owner@example.com", "revoked-rt")
	svc := newTokenService(db, srv.URL, &fakeIdentity{})

	_, _, err := svc.ResolveAccess(context.Background(), "owner@example.com", "")
	if !errors.Is(err, ErrCredentialExchange) {
		t.Fatalf("error = %v; want ErrCredentialExchange", err)
	}
}

func TestHandleCallbackFirstConsentWithoutRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No refresh_token in the response.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	db := newTestDB(t)
	svc := newTokenService(db, srv.URL, &fakeIdentity{email: "owner@example.com"})

	if _, err := svc.HandleCallback(context.Background(), "code-1"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("error = %v; want ErrNotConnected", err)
	}
}

func TestHandleCallbackStoresCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-new",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	db := newTestDB(t)
	svc := newTokenService(db, srv.URL, &fakeIdentity{email: "Owner@Example.com", sub: "s-1"})

	email, err := svc.HandleCallback(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if email != "owner@example.com" {
		t.Errorf("email = %q; want lowercased", email)
	}

	cred, err := repo.GetCredentialByEmail(context.Background(), db, "owner@example.com")
	if err != nil || cred == nil {
		t.Fatalf("GetCredentialByEmail = %+v, %v", cred, err)
	}
	if cred.RefreshToken != "rt-new" || !cred.Connected {
		t.Fatalf("stored credential = %+v", cred)
	}
}
