package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"patreon-tier-notifier/pkg/notifier"
)

// GmailProvider sends alert emails via Gmail API.
type GmailProvider struct {
	service *gmail.Service
	to      string
	logger  *slog.Logger
}

// NewGmailProvider creates a Gmail provider. credsJSON may be empty, in which
// case Application Default Credentials are used.
func NewGmailProvider(ctx context.Context, credsJSON, to string, logger *slog.Logger, opts ...option.ClientOption) (*GmailProvider, error) {
	if credsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credsJSON)))
	}
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &GmailProvider{
		service: service,
		to:      to,
		logger:  logger,
	}, nil
}

func (g *GmailProvider) Name() string { return ProviderGmail }

// sanitizeEmailHeader removes newlines and control characters to prevent header injection.
// Creator and tier names come from scraped pages and config, so they are untrusted here.
func sanitizeEmailHeader(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func alertSubject(a notifier.Alert) string {
	return fmt.Sprintf("%s: %s is available", a.CreatorName, a.TierName)
}

// createMIMEMessage builds a minimal HTML email. The From address is set by
// Gmail based on the authenticated account.
func createMIMEMessage(to, subject, htmlBody string) string {
	var msg strings.Builder
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("To: %s\r\n", sanitizeEmailHeader(to)))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", sanitizeEmailHeader(subject)))
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	msg.WriteString(htmlBody)
	return msg.String()
}

// Send sends an email via Gmail API.
func (g *GmailProvider) Send(ctx context.Context, msg Message) error {
	subject := alertSubject(msg.Alert)
	raw := createMIMEMessage(g.to, subject, alertHTML(msg))
	encoded := base64.URLEncoding.EncodeToString([]byte(raw))

	g.logger.Info("Gmail API request starting",
		"method", "POST",
		"endpoint", "users.messages.send",
		"to", g.to,
		"subject", subject)

	startTime := time.Now()
	sent, err := g.service.Users.Messages.Send("me", &gmail.Message{
		Raw: encoded,
	}).Context(ctx).Do()
	duration := time.Since(startTime)

	if err != nil {
		g.logger.Warn("Gmail API send failed",
			"to", g.to,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return err
	}

	g.logger.Info("Gmail API request completed",
		"endpoint", "users.messages.send",
		"to", g.to,
		"message_id", sent.Id,
		"duration_ms", duration.Milliseconds(),
		"status", "success")
	return nil
}
