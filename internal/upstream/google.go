// Review platform client (accounts, locations, review feed, introspection),
// backed by resty with bounded timeouts and limited retry on transport
// failures. All calls carry the caller-supplied bearer token; this client
// never mints credentials itself.
package upstream

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/go-review-backend/internal/config"
)

// APIError preserves an upstream HTTP failure verbatim (status and body) so
// credential and feed problems stay diagnosable at the call site.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// Userinfo is the introspection result for an access token.
type Userinfo struct {
	Email string `json:"email"`
	Sub   string `json:"sub"`
}

// Account is one provider account ("accounts/123").
type Account struct {
	Name string `json:"name"`
}

// Location is one business location under an account.
type Location struct {
	Name  string `json:"name"` // "locations/456" or "accounts/123/locations/456"
	Title string `json:"title"`
}

// ReviewPage is one page of the review feed.
type ReviewPage struct {
	Items         []ReviewItem
	NextPageToken string
}

// Client talks to the review platform's REST APIs.
type Client struct {
	http *resty.Client
	cfg  config.GoogleConfig
}

// NewClient builds a Client from the given endpoints and timeout settings.
func NewClient(cfg config.Config) *Client {
	r := resty.New().
		SetTimeout(cfg.UpstreamTimeout).
		SetRetryCount(2)
	return &Client{http: r, cfg: cfg.Google}
}

// Introspect resolves the canonical owner identity behind an access token by
// calling the provider's userinfo endpoint. The returned email is lowercased.
func (c *Client) Introspect(ctx context.Context, accessToken string) (*Userinfo, error) {
	var out Userinfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&out).
		Get(c.cfg.UserinfoURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return &out, nil
}

// ListAccounts returns the provider accounts visible to the token.
func (c *Client) ListAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&out).
		Get(c.cfg.AccountsURL + "/accounts")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return out.Accounts, nil
}

// ListLocations returns the locations under one account. The readMask keeps
// the response down to the fields this backend projects.
func (c *Client) ListLocations(ctx context.Context, accessToken, accountName string) ([]Location, error) {
	var out struct {
		Locations []Location `json:"locations"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetQueryParam("readMask", "name,title").
		SetResult(&out).
		Get(c.cfg.BusinessURL + "/" + accountName + "/locations")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return out.Locations, nil
}

// ListReviews fetches one page of the review feed for a location, newest
// first. pageToken is "" for the first page; the returned NextPageToken is
// "" on the last page.
func (c *Client) ListReviews(ctx context.Context, accessToken, locationName string, pageSize int, pageToken string) (*ReviewPage, error) {
	var out struct {
		Reviews       []ReviewItem `json:"reviews"`
		NextPageToken string       `json:"nextPageToken"`
	}
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetQueryParam("pageSize", strconv.Itoa(pageSize)).
		SetQueryParam("orderBy", "updateTime desc").
		SetResult(&out)
	if pageToken != "" {
		req.SetQueryParam("pageToken", pageToken)
	}
	resp, err := req.Get(c.cfg.ReviewsURL + "/" + locationName + "/reviews")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return &ReviewPage{Items: out.Reviews, NextPageToken: out.NextPageToken}, nil
}
