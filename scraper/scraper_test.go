package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"patreon-tier-notifier/pkg/notifier"
)

const creatorPage = `<!DOCTYPE html>
<html><body>
<div class="tiers">
  <a data-tag="patron-checkout-continue-button" aria-label="Cool Tier Join" href="/join/1">
    <div class="cm-oHFIQB">Join</div>
  </a>
  <a data-tag="patron-checkout-continue-button" aria-label="Gold Sold Out" aria-disabled="true">
    <div class="cm-oHFIQB">Sold Out</div>
  </a>
  <a data-tag="patron-checkout-continue-button" aria-label="Silver Join" aria-disabled="true">
    <div class="cm-oHFIQB">Join</div>
  </a>
  <a data-tag="patron-checkout-continue-button" aria-label="Mystery Tier Waitlist">
    <div class="cm-oHFIQB">Waitlist</div>
  </a>
  <a data-tag="patron-checkout-continue-button" aria-label="Plain Join">Join</a>
  <a data-tag="patron-checkout-continue-button">
    <div class="cm-oHFIQB">Join</div>
  </a>
  <a data-tag="something-else" aria-label="Ignored Join"><div class="cm-oHFIQB">Join</div></a>
</div>
</body></html>`

func testScraper() *Scraper {
	s := New(&http.Client{Timeout: 5 * time.Second}, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})))
	s.delay = time.Millisecond
	s.jitter = time.Millisecond
	return s
}

func TestParse(t *testing.T) {
	got, err := Parse(strings.NewReader(creatorPage))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []notifier.Tier{
		{Name: "Cool Tier", Status: notifier.StatusAvailable},
		{Name: "Gold", Status: notifier.StatusSoldOut},
		{Name: "Silver", Status: notifier.StatusSoldOut},
		{Name: "Mystery Tier", Status: notifier.StatusUnknown},
		{Name: "Plain", Status: notifier.StatusAvailable},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNoButtons(t *testing.T) {
	got, err := Parse(strings.NewReader("<html><body><p>nothing here</p></body></html>"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Parse() = %#v, want empty non-nil slice", got)
	}
}

func TestTierName(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Cool Tier Join", "Cool Tier"},
		{"Gold Sold Out", "Gold"},
		{"  Spaced   Out   Join ", "Spaced Out"},
		{"Mystery Tier Waitlist", "Mystery Tier"},
		{"Join", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := tierName(tt.label); got != tt.want {
				t.Errorf("tierName(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestTiersFetchesWithUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, creatorPage)
	}))
	defer srv.Close()

	tiers, err := testScraper().Tiers(context.Background(), srv.URL, "UA-Test/1.0")
	if err != nil {
		t.Fatalf("Tiers() error = %v", err)
	}
	if gotUA != "UA-Test/1.0" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "UA-Test/1.0")
	}
	if len(tiers) != 5 {
		t.Errorf("Tiers() returned %d tiers, want 5", len(tiers))
	}
}

func TestTiersDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testScraper().Tiers(context.Background(), srv.URL, "UA")
	if err == nil {
		t.Fatal("Tiers() expected error for 404")
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
}

func TestTiersRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, creatorPage)
	}))
	defer srv.Close()

	tiers, err := testScraper().Tiers(context.Background(), srv.URL, "UA")
	if err != nil {
		t.Fatalf("Tiers() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hit %d times, want 3", hits.Load())
	}
	if len(tiers) == 0 {
		t.Error("Tiers() returned no tiers after recovery")
	}
}

func TestHTTPStatusError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &HTTPStatusError{URL: "https://example.com", StatusCode: http.StatusForbidden})
	if !IsHTTPStatus(err, http.StatusForbidden) {
		t.Error("IsHTTPStatus() = false for wrapped 403")
	}
	if IsHTTPStatus(err, http.StatusNotFound) {
		t.Error("IsHTTPStatus() = true for mismatched code")
	}

	for code, want := range map[int]bool{403: false, 404: false, 429: true, 500: true, 503: true} {
		if got := (&HTTPStatusError{StatusCode: code}).Retryable(); got != want {
			t.Errorf("Retryable() for %d = %v, want %v", code, got, want)
		}
	}
}

// TestLiveCreatorPage fetches a real membership page to catch markup drift.
func TestLiveCreatorPage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pageURL := os.Getenv("LIVE_CREATOR_URL")
	if pageURL == "" {
		t.Skip("LIVE_CREATOR_URL not set")
	}

	tiers, err := testScraper().Tiers(context.Background(), pageURL, "Mozilla/5.0")
	if err != nil {
		t.Fatalf("Failed to fetch creator page: %v", err)
	}
	for _, tier := range tiers {
		t.Logf("tier %q status %s", tier.Name, tier.Status)
	}
}
