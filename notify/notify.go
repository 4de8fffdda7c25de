// Package notify delivers tier availability alerts via pluggable providers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
	"unicode/utf8"

	"github.com/codeGROOVE-dev/retry"

	"patreon-tier-notifier/metrics"
	"patreon-tier-notifier/pkg/notifier"
)

// maxMessageLen keeps SMS bodies within two segments.
const maxMessageLen = 320

// Message is one rendered alert.
type Message struct {
	Alert notifier.Alert
	Text  string
}

// Provider defines the interface for notification transports.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Send delivers a single message. A failed send is only repeated when
	// the request never left the host.
	Send(ctx context.Context, msg Message) error
}

// Sender logs every alert and forwards it to an optional provider.
// Delivery is at most once: failures are logged and counted, never returned.
type Sender struct {
	provider Provider // nil means console only
	recorder metrics.Recorder
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
	jitter   time.Duration
}

// NewSender creates a sender. provider may be nil.
func NewSender(provider Provider, recorder metrics.Recorder, logger *slog.Logger) *Sender {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Sender{
		provider: provider,
		recorder: recorder,
		logger:   logger,
		attempts: 3,
		delay:    time.Second,
		jitter:   5 * time.Second,
	}
}

// ProviderName returns the configured provider, or "console".
func (s *Sender) ProviderName() string {
	if s.provider == nil {
		return "console"
	}
	return s.provider.Name()
}

// FormatMessage renders the alert text sent to subscribers.
func FormatMessage(a notifier.Alert) string {
	msg := fmt.Sprintf("Patreon Alert: Tier '%s' for creator '%s' is now available! Check at: %s",
		a.TierName, a.CreatorName, a.URL)
	if utf8.RuneCountInString(msg) > maxMessageLen {
		runes := []rune(msg)
		msg = string(runes[:maxMessageLen-3]) + "..."
	}
	return msg
}

// Deliver logs and sends each alert.
func (s *Sender) Deliver(ctx context.Context, alerts []notifier.Alert) {
	if len(alerts) == 0 {
		s.logger.Debug("No new tier availabilities to report")
		return
	}

	for _, a := range alerts {
		s.logger.Info("ALERT: tier is now available",
			"creator", a.CreatorName,
			"tier", a.TierName,
			"url", a.URL)
	}

	if s.provider == nil {
		return
	}

	name := s.provider.Name()
	for _, a := range alerts {
		msg := Message{Alert: a, Text: FormatMessage(a)}

		err := retry.Do(
			func() error {
				return s.provider.Send(ctx, msg)
			},
			retry.Attempts(s.attempts),
			retry.Delay(s.delay),
			retry.MaxDelay(time.Minute),
			retry.MaxJitter(s.jitter),
			retry.Context(ctx),
			retry.RetryIf(undelivered),
			retry.OnRetry(func(n uint, err error) {
				s.logger.Info("Retrying notification send after connection error",
					"provider", name,
					"attempt", n,
					"error", err)
			}),
		)
		if err != nil {
			s.recorder.NotifyFailed(name)
			s.logger.Warn("Notification send failed",
				"provider", name,
				"creator", a.CreatorName,
				"tier", a.TierName,
				"error", err)
			continue
		}

		s.logger.Info("Notification sent",
			"provider", name,
			"creator", a.CreatorName,
			"tier", a.TierName)
	}
}

// undelivered reports whether err shows the request never reached the
// gateway. Anything else may have been accepted and is not sent again.
func undelivered(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Close releases provider resources such as open connections.
func (s *Sender) Close() error {
	if c, ok := s.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
