package notify

import (
	"context"
	"log/slog"

	"github.com/go-resty/resty/v2"
)

// WebhookProvider posts alerts to a generic SMS HTTP API.
type WebhookProvider struct {
	url    string
	token  string
	to     string
	client *resty.Client
	logger *slog.Logger
}

// NewWebhookProvider creates a provider for a bearer-token protected endpoint.
func NewWebhookProvider(apiURL, token, to string, logger *slog.Logger) *WebhookProvider {
	return &WebhookProvider{
		url:    apiURL,
		token:  token,
		to:     to,
		client: newRestyClient(),
		logger: logger,
	}
}

func (w *WebhookProvider) Name() string { return ProviderHTTP }

type webhookPayload struct {
	To      string `json:"to"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// Send posts {to, token, message} as JSON. The token is also sent as a bearer
// header for gateways that authenticate at the edge.
func (w *WebhookProvider) Send(ctx context.Context, msg Message) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetAuthToken(w.token).
		SetBody(webhookPayload{
			To:      w.to,
			Token:   w.token,
			Message: msg.Text,
		}).
		Post(w.url)
	if err != nil {
		return err
	}
	if err := checkResponse(resp); err != nil {
		return err
	}

	w.logger.Info("Webhook delivered", "to", w.to, "status_code", resp.StatusCode())
	return nil
}
