// Place lookup client. Resolves a business name to a place id via the
// provider's text-search endpoint, and derives the public review-submission
// URL from a place id.
package upstream

import (
	"context"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/go-review-backend/internal/config"
)

// PlacesClient resolves business names to place ids using a server API key.
type PlacesClient struct {
	http *resty.Client
	cfg  config.GoogleConfig
}

// NewPlacesClient builds a PlacesClient from the configured endpoint and key.
func NewPlacesClient(cfg config.Config) *PlacesClient {
	r := resty.New().
		SetTimeout(cfg.UpstreamTimeout).
		SetRetryCount(2)
	return &PlacesClient{http: r, cfg: cfg.Google}
}

// FindPlaceID looks up the first place id matching businessName, or "" when
// the search yields no candidate.
func (c *PlacesClient) FindPlaceID(ctx context.Context, businessName string) (string, error) {
	var out struct {
		Candidates []struct {
			PlaceID string `json:"place_id"`
		} `json:"candidates"`
		Status string `json:"status"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"input":     businessName,
			"inputtype": "textquery",
			"fields":    "place_id",
			"key":       c.cfg.PlacesKey,
		}).
		SetResult(&out).
		Get(c.cfg.PlacesURL + "/findplacefromtext/json")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	if len(out.Candidates) == 0 {
		return "", nil
	}
	return out.Candidates[0].PlaceID, nil
}

// ReviewURLFromPlaceID derives the public review-submission URL for a place.
// The mapping is deterministic, so a stored place id alone is enough to
// backfill a missing URL.
func ReviewURLFromPlaceID(placeID string) string {
	return "https://search.google.com/local/writereview?placeid=" + url.QueryEscape(placeID)
}
