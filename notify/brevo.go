package notify

import (
	"context"
	"html"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// BrevoProvider sends alert emails via Brevo (formerly Sendinblue) API.
type BrevoProvider struct {
	apiKey   string
	fromAddr string
	toAddr   string
	endpoint string
	client   *resty.Client
	logger   *slog.Logger
}

// NewBrevoProvider creates a new Brevo email provider.
func NewBrevoProvider(apiKey, fromAddr, toAddr string, logger *slog.Logger) *BrevoProvider {
	return &BrevoProvider{
		apiKey:   apiKey,
		fromAddr: fromAddr,
		toAddr:   toAddr,
		endpoint: brevoEndpoint,
		client:   newRestyClient(),
		logger:   logger,
	}
}

func (b *BrevoProvider) Name() string { return ProviderBrevo }

// brevoSendRequest represents the Brevo API send email request.
type brevoSendRequest struct {
	Sender  brevoContact   `json:"sender"`
	To      []brevoContact `json:"to"`
	Subject string         `json:"subject"`
	HTML    string         `json:"htmlContent"`
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Send sends an email via Brevo API.
func (b *BrevoProvider) Send(ctx context.Context, msg Message) error {
	reqBody := brevoSendRequest{
		Sender:  brevoContact{Email: b.fromAddr, Name: "Patreon Tier Alerter"},
		To:      []brevoContact{{Email: b.toAddr}},
		Subject: alertSubject(msg.Alert),
		HTML:    alertHTML(msg),
	}

	b.logger.Info("Brevo API request starting",
		"method", "POST",
		"endpoint", "smtp/email",
		"to", b.toAddr)

	startTime := time.Now()
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("api-key", b.apiKey).
		SetBody(reqBody).
		Post(b.endpoint)
	duration := time.Since(startTime)

	if err != nil {
		b.logger.Warn("Brevo API request failed",
			"to", b.toAddr,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return err
	}
	if err := checkResponse(resp); err != nil {
		return err
	}

	b.logger.Info("Brevo API request completed",
		"endpoint", "smtp/email",
		"to", b.toAddr,
		"duration_ms", duration.Milliseconds(),
		"status", "success")
	return nil
}

func alertHTML(msg Message) string {
	return "<p>" + html.EscapeString(msg.Text) + "</p>\n" +
		`<p><a href="` + html.EscapeString(msg.Alert.URL) + `">Open the membership page</a></p>`
}
