// Package upstream implements the clients and payload handling for the
// external review platform: the paginated review feed, account/location
// discovery, access-token introspection, and place lookup.
//
// Review items are kept in their provider-native shape (a generic JSON
// object) end to end; this file provides the projection into typed fields
// and the external-identity derivation used by the sync engine's dedup pass.
package upstream

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ReviewItem is one provider-native review payload. It is stored verbatim
// (as JSON text) alongside the typed projection so identity and fields can
// be recomputed later without a schema migration.
type ReviewItem map[string]any

// identityExtractor returns a stable identity for an item, or "" when the
// item lacks the fields this tier needs.
type identityExtractor func(ReviewItem) string

// identityChain is the ordered fallback chain for external review identity:
// provider review id, then provider resource name, then a structural
// fingerprint. The first non-empty result wins.
var identityChain = []identityExtractor{
	identityFromReviewID,
	identityFromResourceName,
	identityFromFingerprint,
}

// Identity derives the external review identity used to deduplicate items
// across repeated syncs. It never returns "": the last tier always produces
// a value, even for an empty item.
func (it ReviewItem) Identity() string {
	for _, extract := range identityChain {
		if id := extract(it); id != "" {
			return id
		}
	}
	return identityFromFingerprint(it) // unreachable, fingerprint never empty
}

func identityFromReviewID(it ReviewItem) string {
	for _, k := range []string{"reviewId", "review_id", "id"} {
		if s := it.str(k); s != "" {
			return "id::" + s
		}
	}
	return ""
}

func identityFromResourceName(it ReviewItem) string {
	if s := it.str("name"); s != "" {
		return "name::" + s
	}
	return ""
}

// identityFromFingerprint hashes (rating, author, body). It is the
// last-resort tier for feeds whose items carry neither an id nor a resource
// name.
func identityFromFingerprint(it ReviewItem) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%d|%s|%s", it.Rating(), it.Author(), it.Body())))
	return "sha1::" + hex.EncodeToString(h[:])
}

// Rating returns the item's numeric rating, 0 when absent or unparsable.
// The provider encodes ratings either as the enum words ONE..FIVE or as a
// plain number.
func (it ReviewItem) Rating() int {
	if s := it.str("starRating"); s != "" {
		return starToInt(s)
	}
	for _, k := range []string{"rating", "stars", "star_rating"} {
		switch v := it[k].(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
			return starToInt(v)
		}
	}
	return 0
}

// Body returns the review text. An empty string is a valid value: absence of
// text matters to reply-generation eligibility downstream.
func (it ReviewItem) Body() string {
	for _, k := range []string{"comment", "text", "reviewText", "body"} {
		if s, ok := it[k].(string); ok {
			return strings.TrimSpace(s)
		}
		// v4 sometimes nests the text: {"comment": {"text": "..."}}
		if m, ok := it[k].(map[string]any); ok {
			if s, ok := m["text"].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// Author returns the reviewer display name, "" when absent.
func (it ReviewItem) Author() string {
	if m, ok := it["reviewer"].(map[string]any); ok {
		if s, ok := m["displayName"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	for _, k := range []string{"reviewerName", "authorName", "author_name", "name"} {
		// "name" is the resource locator on v4 items, never an author there.
		if k == "name" && identityFromResourceName(it) != "" {
			continue
		}
		if s := it.str(k); s != "" {
			return s
		}
	}
	return ""
}

// PublishedAt returns the upstream publish timestamp as an opaque string in
// whatever format the provider used.
func (it ReviewItem) PublishedAt() string {
	for _, k := range []string{"createTime", "create_time", "publishedAt", "publishedAtDate", "updateTime", "date"} {
		if s := it.str(k); s != "" {
			return s
		}
	}
	return ""
}

// Permalink returns the public review URL, "" when absent.
func (it ReviewItem) Permalink() string {
	for _, k := range []string{"reviewUrl", "review_url", "url"} {
		if s := it.str(k); s != "" {
			return s
		}
	}
	return ""
}

// str reads a trimmed string field, "" for missing or non-string values.
func (it ReviewItem) str(k string) string {
	if s, ok := it[k].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// starToInt maps the provider's star enum to a number, 0 when unknown.
func starToInt(star string) int {
	switch strings.ToUpper(strings.TrimSpace(star)) {
	case "ONE":
		return 1
	case "TWO":
		return 2
	case "THREE":
		return 3
	case "FOUR":
		return 4
	case "FIVE":
		return 5
	}
	return 0
}
