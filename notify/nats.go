package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultNATSSubject is used when nats_subject is empty.
const DefaultNATSSubject = "patreon.tiers.available"

type natsConn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSProvider publishes each alert as JSON on a subject.
type NATSProvider struct {
	conn    natsConn
	subject string
	logger  *slog.Logger
}

// NewNATSProvider connects to the server at url.
func NewNATSProvider(url, subject string, logger *slog.Logger) (*NATSProvider, error) {
	nc, err := nats.Connect(url,
		nats.Name("patreon-tier-notifier"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATSProvider{conn: nc, subject: subject, logger: logger}, nil
}

func (p *NATSProvider) Name() string { return ProviderNATS }

type natsEvent struct {
	CreatorName string `json:"creator_name"`
	TierName    string `json:"tier_name"`
	URL         string `json:"url"`
	Message     string `json:"message"`
	SentAt      string `json:"sent_at"`
}

// Send publishes and flushes so a failed delivery surfaces here.
func (p *NATSProvider) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(natsEvent{
		CreatorName: msg.Alert.CreatorName,
		TierName:    msg.Alert.TierName,
		URL:         msg.Alert.URL,
		Message:     msg.Text,
		SentAt:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	p.logger.Info("Alert published", "subject", p.subject, "tier", msg.Alert.TierName)
	return nil
}

// Close closes the connection.
func (p *NATSProvider) Close() error {
	p.conn.Close()
	return nil
}
