// Messaging provider client for outbound review-request messages. The wire
// format follows the Twilio-style messages endpoint (form-encoded create,
// basic auth, JSON response carrying the delivery sid).
package upstream

import (
	"context"

	"github.com/go-resty/resty/v2"

	"github.com/tbourn/go-review-backend/internal/config"
)

// Messenger delivers one message and returns the provider's delivery id.
// Satisfied by *MessagingClient; the sweep engine takes the interface so
// tests can substitute a recorder.
type Messenger interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// MessagingClient sends messages through the configured provider account.
type MessagingClient struct {
	http *resty.Client
	cfg  config.OutreachConfig
}

// NewMessagingClient builds a MessagingClient from the account settings.
func NewMessagingClient(cfg config.Config) *MessagingClient {
	r := resty.New().
		SetTimeout(cfg.UpstreamTimeout).
		SetBasicAuth(cfg.Outreach.AccountSID, cfg.Outreach.AuthToken)
	return &MessagingClient{http: r, cfg: cfg.Outreach}
}

// Send delivers body to the given E.164 number and returns the delivery id.
func (c *MessagingClient) Send(ctx context.Context, to, body string) (string, error) {
	var out struct {
		SID string `json:"sid"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"From": c.cfg.From,
			"To":   to,
			"Body": body,
		}).
		SetResult(&out).
		Post(c.cfg.APIBaseURL + "/Accounts/" + c.cfg.AccountSID + "/Messages.json")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return out.SID, nil
}
