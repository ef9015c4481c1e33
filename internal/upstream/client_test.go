package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tbourn/go-review-backend/internal/config"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func testConfig(base string) config.Config {
	return config.Config{
		UpstreamTimeout: 5 * time.Second,
		Google: config.GoogleConfig{
			UserinfoURL: base + "/userinfo",
			AccountsURL: base + "/acctmgmt",
			BusinessURL: base + "/bizinfo",
			ReviewsURL:  base + "/v4",
			PlacesURL:   base + "/place",
			PlacesKey:   "test-key",
		},
		Outreach: config.OutreachConfig{
			From:       "+15550001111",
			AccountSID: "AC123",
			AuthToken:  "secret",
		},
	}
}

func TestIntrospect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q; want Bearer tok-1", got)
		}
		writeJSON(w, map[string]string{"email": "owner@example.com", "sub": "s-1"})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	info, err := c.Introspect(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("Introspect() error: %v", err)
	}
	if info.Email != "owner@example.com" || info.Sub != "s-1" {
		t.Fatalf("Introspect() = %+v", info)
	}
}

func TestIntrospectUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.Introspect(context.Background(), "bad")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Introspect() error = %v; want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("APIError.Status = %d; want 401", apiErr.Status)
	}
}

func TestListReviewsPaging(t *testing.T) {
	var gotQueries []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQueries = append(gotQueries, map[string]string{
			"pageSize":  q.Get("pageSize"),
			"orderBy":   q.Get("orderBy"),
			"pageToken": q.Get("pageToken"),
		})
		if q.Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"reviews":       []map[string]any{{"reviewId": "r1"}},
				"nextPageToken": "tok-2",
			})
			return
		}
		writeJSON(w, map[string]any{
			"reviews": []map[string]any{{"reviewId": "r2"}},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	ctx := context.Background()

	page1, err := c.ListReviews(ctx, "tok", "accounts/1/locations/2", 50, "")
	if err != nil {
		t.Fatalf("ListReviews(page 1) error: %v", err)
	}
	if len(page1.Items) != 1 || page1.NextPageToken != "tok-2" {
		t.Fatalf("page1 = %+v", page1)
	}

	page2, err := c.ListReviews(ctx, "tok", "accounts/1/locations/2", 50, page1.NextPageToken)
	if err != nil {
		t.Fatalf("ListReviews(page 2) error: %v", err)
	}
	if page2.NextPageToken != "" {
		t.Fatalf("page2.NextPageToken = %q; want empty", page2.NextPageToken)
	}

	if gotQueries[0]["pageSize"] != "50" || gotQueries[0]["orderBy"] != "updateTime desc" {
		t.Errorf("first request query = %v", gotQueries[0])
	}
	if gotQueries[1]["pageToken"] != "tok-2" {
		t.Errorf("second request pageToken = %q; want tok-2", gotQueries[1]["pageToken"])
	}
}

func TestFindPlaceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("inputtype") != "textquery" || q.Get("key") != "test-key" {
			t.Errorf("unexpected query: %v", q)
		}
		writeJSON(w, map[string]any{
			"candidates": []map[string]string{{"place_id": "ChIJtest"}},
			"status":     "OK",
		})
	}))
	defer srv.Close()

	c := NewPlacesClient(testConfig(srv.URL))
	id, err := c.FindPlaceID(context.Background(), "Corner Cafe")
	if err != nil {
		t.Fatalf("FindPlaceID() error: %v", err)
	}
	if id != "ChIJtest" {
		t.Fatalf("FindPlaceID() = %q; want ChIJtest", id)
	}
}

func TestFindPlaceIDNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"candidates": []any{}, "status": "ZERO_RESULTS"})
	}))
	defer srv.Close()

	c := NewPlacesClient(testConfig(srv.URL))
	id, err := c.FindPlaceID(context.Background(), "Nowhere")
	if err != nil {
		t.Fatalf("FindPlaceID() error: %v", err)
	}
	if id != "" {
		t.Fatalf("FindPlaceID() = %q; want empty", id)
	}
}

func TestReviewURLFromPlaceID(t *testing.T) {
	got := ReviewURLFromPlaceID("ChIJ abc+x")
	want := "https://search.google.com/local/writereview?placeid=ChIJ+abc%2Bx"
	if got != want {
		t.Fatalf("ReviewURLFromPlaceID() = %q; want %q", got, want)
	}
}

func TestMessagingSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		if user != "AC123" || pass != "secret" {
			t.Errorf("basic auth = %q/%q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("To") != "+15557654321" || r.PostForm.Get("From") != "+15550001111" {
			t.Errorf("form = %v", r.PostForm)
		}
		writeJSON(w, map[string]string{"sid": "SM999"})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Outreach.APIBaseURL = srv.URL
	c := NewMessagingClient(cfg)

	sid, err := c.Send(context.Background(), "+15557654321", "hello")
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if sid != "SM999" {
		t.Fatalf("Send() sid = %q; want SM999", sid)
	}
}
