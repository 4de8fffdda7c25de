// Package scraper fetches creator membership pages and extracts tier availability.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"

	"patreon-tier-notifier/pkg/notifier"
)

const (
	tierButtonSelector = `a[data-tag="patron-checkout-continue-button"]`
	buttonTextSelector = "div.cm-oHFIQB"

	joinText    = "Join"
	soldOutText = "Sold Out"
)

// HTTPStatusError is returned for any non-200 page response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// Retryable reports whether another attempt could plausibly succeed.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsHTTPStatus checks if err wraps an HTTPStatusError with the given code.
func IsHTTPStatus(err error, code int) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

// Scraper fetches and parses creator pages.
type Scraper struct {
	client   *http.Client
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
	jitter   time.Duration
}

// New creates a new scraper.
func New(client *http.Client, logger *slog.Logger) *Scraper {
	return &Scraper{
		client:   client,
		logger:   logger,
		attempts: 3,
		delay:    time.Second,
		jitter:   5 * time.Second,
	}
}

// Tiers fetches a creator page and returns the tiers found on it, in page order.
func (s *Scraper) Tiers(ctx context.Context, pageURL, userAgent string) ([]notifier.Tier, error) {
	var tiers []notifier.Tier

	err := retry.Do(
		func() error {
			body, err := s.fetch(ctx, pageURL, userAgent)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			tiers, err = Parse(body)
			if err != nil {
				s.logger.Error("Failed to parse HTML", "url", pageURL, "error", err)
				return retry.Unrecoverable(fmt.Errorf("parse page: %w", err))
			}

			s.logger.Info("Creator page parsed successfully",
				"url", pageURL,
				"tiers_found", len(tiers))
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(s.jitter),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying fetch after error", "url", pageURL, "attempt", n, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			var statusErr *HTTPStatusError
			if errors.As(err, &statusErr) {
				return statusErr.Retryable()
			}
			return true
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("after retries: %w", err)
	}

	return tiers, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL, userAgent string) (io.ReadCloser, error) {
	s.logger.Info("HTTP request starting",
		"method", "GET",
		"url", pageURL,
		"purpose", "fetch_creator_page")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	// Note: Don't set Accept-Encoding - let Go's http.Client handle compression automatically

	startTime := time.Now()
	resp, err := s.client.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Warn("HTTP request failed",
			"url", pageURL,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, err
	}

	s.logger.Info("HTTP request completed",
		"url", pageURL,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
		"content_length", resp.ContentLength)

	if resp.StatusCode != http.StatusOK {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn("Failed to close response body", "error", closeErr)
		}
		s.logger.Warn("HTTP request returned non-OK status", "url", pageURL, "status_code", resp.StatusCode)
		return nil, &HTTPStatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	return resp.Body, nil
}

// Parse extracts tiers from checkout buttons. Each button carries an
// aria-label of the form "<tier name> <action>" and a text label of
// "Join" or "Sold Out". Pages without buttons yield an empty slice.
func Parse(r io.Reader) ([]notifier.Tier, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	tiers := []notifier.Tier{}
	doc.Find(tierButtonSelector).Each(func(_ int, sel *goquery.Selection) {
		label, _ := sel.Attr("aria-label")
		name := tierName(label)
		if name == "" {
			return
		}

		tiers = append(tiers, notifier.Tier{
			Name:   name,
			Status: buttonStatus(sel),
		})
	})

	return tiers, nil
}

// tierName strips the trailing action from an aria-label. Known actions are
// removed whole; anything else loses its last word.
func tierName(label string) string {
	label = strings.Join(strings.Fields(label), " ")
	for _, action := range []string{soldOutText, joinText} {
		if name, ok := strings.CutSuffix(label, " "+action); ok {
			return strings.TrimSpace(name)
		}
	}
	words := strings.Fields(label)
	if len(words) < 2 {
		return ""
	}
	return strings.Join(words[:len(words)-1], " ")
}

func buttonStatus(sel *goquery.Selection) notifier.Status {
	disabled, _ := sel.Attr("aria-disabled")

	textSel := sel.Find(buttonTextSelector).First()
	if textSel.Length() == 0 {
		textSel = sel
	}
	text := strings.TrimSpace(textSel.Text())

	switch {
	case disabled == "true" || text == soldOutText:
		return notifier.StatusSoldOut
	case text == joinText:
		return notifier.StatusAvailable
	default:
		return notifier.StatusUnknown
	}
}
