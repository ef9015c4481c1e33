package upstream

import (
	"strings"
	"testing"
)

func TestIdentityPrefersReviewID(t *testing.T) {
	// All three tiers have material; the id-derived form must win.
	it := ReviewItem{
		"reviewId": "abc-123",
		"name":     "accounts/1/locations/2/reviews/abc-123",
		"reviewer": map[string]any{"displayName": "Alice"},
		"comment":  "Great service",
	}
	if got := it.Identity(); got != "id::abc-123" {
		t.Fatalf("Identity() = %q; want id::abc-123", got)
	}
}

func TestIdentityFallsBackToResourceName(t *testing.T) {
	it := ReviewItem{
		"name":    "accounts/1/locations/2/reviews/xyz",
		"comment": "Fine",
	}
	if got := it.Identity(); got != "name::accounts/1/locations/2/reviews/xyz" {
		t.Fatalf("Identity() = %q; want name:: form", got)
	}
}

func TestIdentityFingerprintIsLastResortAndStable(t *testing.T) {
	a := ReviewItem{"starRating": "FIVE", "comment": "Loved it", "reviewer": map[string]any{"displayName": "Bo"}}
	b := ReviewItem{"starRating": "FIVE", "comment": "Loved it", "reviewer": map[string]any{"displayName": "Bo"}}

	got := a.Identity()
	if !strings.HasPrefix(got, "sha1::") {
		t.Fatalf("Identity() = %q; want sha1:: form", got)
	}
	if got != b.Identity() {
		t.Fatal("fingerprint identity differs for identical content")
	}

	c := ReviewItem{"starRating": "FOUR", "comment": "Loved it", "reviewer": map[string]any{"displayName": "Bo"}}
	if got == c.Identity() {
		t.Fatal("fingerprint identity identical for different ratings")
	}
}

func TestIdentityNeverEmpty(t *testing.T) {
	if (ReviewItem{}).Identity() == "" {
		t.Fatal("Identity() returned empty for empty item")
	}
}

func TestRating(t *testing.T) {
	cases := []struct {
		name string
		it   ReviewItem
		want int
	}{
		{"enum", ReviewItem{"starRating": "THREE"}, 3},
		{"enum lowercase", ReviewItem{"starRating": "five"}, 5},
		{"numeric float", ReviewItem{"rating": float64(4)}, 4},
		{"numeric string", ReviewItem{"stars": "2"}, 2},
		{"enum under rating key", ReviewItem{"rating": "ONE"}, 1},
		{"unknown enum", ReviewItem{"starRating": "SIX"}, 0},
		{"absent", ReviewItem{}, 0},
	}
	for _, tc := range cases {
		if got := tc.it.Rating(); got != tc.want {
			t.Errorf("%s: Rating() = %d; want %d", tc.name, got, tc.want)
		}
	}
}

func TestBodyNestedComment(t *testing.T) {
	it := ReviewItem{"comment": map[string]any{"text": "  nested text  "}}
	if got := it.Body(); got != "nested text" {
		t.Fatalf("Body() = %q; want nested text", got)
	}
}

func TestBodyEmptyIsValid(t *testing.T) {
	it := ReviewItem{"starRating": "FIVE"}
	if got := it.Body(); got != "" {
		t.Fatalf("Body() = %q; want empty", got)
	}
}

func TestAuthorSkipsResourceLocator(t *testing.T) {
	// "name" is the v4 resource locator here, not an author.
	it := ReviewItem{"name": "accounts/1/locations/2/reviews/xyz"}
	if got := it.Author(); got != "" {
		t.Fatalf("Author() = %q; want empty", got)
	}

	it2 := ReviewItem{"reviewer": map[string]any{"displayName": "Dana"}}
	if got := it2.Author(); got != "Dana" {
		t.Fatalf("Author() = %q; want Dana", got)
	}
}
