package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-resty/resty/v2"
)

const textbeltEndpoint = "https://textbelt.com/text"

// TextbeltProvider sends SMS through textbelt.com.
type TextbeltProvider struct {
	key      string
	to       string
	endpoint string
	client   *resty.Client
	logger   *slog.Logger
}

// NewTextbeltProvider creates a new Textbelt SMS provider.
func NewTextbeltProvider(key, to string, logger *slog.Logger) *TextbeltProvider {
	return &TextbeltProvider{
		key:      key,
		to:       to,
		endpoint: textbeltEndpoint,
		client:   newRestyClient(),
		logger:   logger,
	}
}

func (t *TextbeltProvider) Name() string { return ProviderTextbelt }

type textbeltResponse struct {
	Success        bool   `json:"success"`
	TextID         string `json:"textId"`
	QuotaRemaining int    `json:"quotaRemaining"`
	Error          string `json:"error"`
}

// Send posts one message. Textbelt reports failures in the body with HTTP 200.
func (t *TextbeltProvider) Send(ctx context.Context, msg Message) error {
	var result textbeltResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"phone":   t.to,
			"message": msg.Text,
			"key":     t.key,
		}).
		SetResult(&result).
		Post(t.endpoint)
	if err != nil {
		return err
	}
	if err := checkResponse(resp); err != nil {
		return err
	}
	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = "unknown error"
		}
		return errors.New("textbelt rejected message: " + reason)
	}

	t.logger.Info("Textbelt message accepted",
		"to", t.to,
		"text_id", result.TextID,
		"quota_remaining", result.QuotaRemaining)
	return nil
}
