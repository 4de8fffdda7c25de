package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

const twilioBaseURL = "https://api.twilio.com"

// TwilioProvider sends SMS through the Twilio Messages API.
type TwilioProvider struct {
	accountSID string
	authToken  string
	from       string
	to         string
	baseURL    string
	client     *resty.Client
	logger     *slog.Logger
}

// NewTwilioProvider creates a new Twilio SMS provider.
func NewTwilioProvider(accountSID, authToken, from, to string, logger *slog.Logger) *TwilioProvider {
	return &TwilioProvider{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		to:         to,
		baseURL:    twilioBaseURL,
		client:     newRestyClient(),
		logger:     logger,
	}
}

func (t *TwilioProvider) Name() string { return ProviderTwilio }

type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// Send posts one message to the Twilio API.
func (t *TwilioProvider) Send(ctx context.Context, msg Message) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, url.PathEscape(t.accountSID))

	t.logger.Info("Twilio API request starting",
		"method", "POST",
		"endpoint", "Messages.json",
		"to", t.to)

	var result twilioMessage
	startTime := time.Now()
	resp, err := t.client.R().
		SetContext(ctx).
		SetBasicAuth(t.accountSID, t.authToken).
		SetFormData(map[string]string{
			"From": t.from,
			"To":   t.to,
			"Body": msg.Text,
		}).
		SetResult(&result).
		Post(endpoint)
	duration := time.Since(startTime)

	if err != nil {
		t.logger.Warn("Twilio API request failed",
			"to", t.to,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return err
	}
	if err := checkResponse(resp); err != nil {
		return err
	}

	t.logger.Info("Twilio API request completed",
		"to", t.to,
		"sid", result.SID,
		"duration_ms", duration.Milliseconds())
	return nil
}
