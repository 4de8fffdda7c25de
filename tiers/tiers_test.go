package tiers

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"patreon-tier-notifier/pkg/notifier"
)

var creatorX = notifier.Creator{
	Name:         "CreatorX",
	URL:          "http://example.com",
	TiersToWatch: []string{"Cool Tier"},
}

func tier(name string, status notifier.Status) notifier.Tier {
	return notifier.Tier{Name: name, Status: status}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		scraped []notifier.Tier
		want    Snapshot
	}{
		{
			name:    "empty input",
			scraped: nil,
			want:    Snapshot{},
		},
		{
			name:    "lower-cases and trims names",
			scraped: []notifier.Tier{tier("  Cool Tier ", notifier.StatusAvailable)},
			want:    Snapshot{"cool tier": tier("  Cool Tier ", notifier.StatusAvailable)},
		},
		{
			name: "drops blank names",
			scraped: []notifier.Tier{
				tier("", notifier.StatusAvailable),
				tier("   ", notifier.StatusSoldOut),
				tier("Gold", notifier.StatusSoldOut),
			},
			want: Snapshot{"gold": tier("Gold", notifier.StatusSoldOut)},
		},
		{
			name: "last duplicate wins",
			scraped: []notifier.Tier{
				tier("Gold", notifier.StatusSoldOut),
				tier("GOLD", notifier.StatusAvailable),
			},
			want: Snapshot{"gold": tier("GOLD", notifier.StatusAvailable)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.scraped)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluateScenarios(t *testing.T) {
	tests := []struct {
		name       string
		creator    notifier.Creator
		scraped    []notifier.Tier
		cache      Cache
		wantAlerts []notifier.Alert
		wantCache  Cache
	}{
		{
			name:    "available first time alerts and caches",
			creator: creatorX,
			scraped: []notifier.Tier{tier("Cool Tier", notifier.StatusAvailable)},
			cache:   Cache{},
			wantAlerts: []notifier.Alert{
				{CreatorName: "CreatorX", TierName: "Cool Tier", URL: "http://example.com"},
			},
			wantCache: Cache{"CreatorX_Cool Tier": true},
		},
		{
			name:      "sold out resets cache",
			creator:   creatorX,
			scraped:   []notifier.Tier{tier("Cool Tier", notifier.StatusSoldOut)},
			cache:     Cache{"CreatorX_Cool Tier": true},
			wantCache: Cache{"CreatorX_Cool Tier": false},
		},
		{
			name: "missing tier leaves empty cache untouched",
			creator: notifier.Creator{
				Name:         "CreatorX",
				URL:          "http://example.com",
				TiersToWatch: []string{"Missing Tier"},
			},
			scraped:   nil,
			cache:     Cache{},
			wantCache: Cache{},
		},
		{
			name:      "unknown status with absent cache does nothing",
			creator:   creatorX,
			scraped:   []notifier.Tier{tier("Cool Tier", notifier.StatusUnknown)},
			cache:     Cache{},
			wantCache: Cache{},
		},
		{
			name:      "sold out with false cache does not write",
			creator:   creatorX,
			scraped:   []notifier.Tier{tier("Cool Tier", notifier.StatusSoldOut)},
			cache:     Cache{"CreatorX_Cool Tier": false},
			wantCache: Cache{"CreatorX_Cool Tier": false},
		},
		{
			name:      "already alerted stays quiet",
			creator:   creatorX,
			scraped:   []notifier.Tier{tier("Cool Tier", notifier.StatusAvailable)},
			cache:     Cache{"CreatorX_Cool Tier": true},
			wantCache: Cache{"CreatorX_Cool Tier": true},
		},
		{
			name:      "missing tier resets alerted cache",
			creator:   creatorX,
			scraped:   []notifier.Tier{tier("Other", notifier.StatusAvailable)},
			cache:     Cache{"CreatorX_Cool Tier": true},
			wantCache: Cache{"CreatorX_Cool Tier": false},
		},
		{
			name:    "false cache entry alerts again",
			creator: creatorX,
			scraped: []notifier.Tier{tier("Cool Tier", notifier.StatusAvailable)},
			cache:   Cache{"CreatorX_Cool Tier": false},
			wantAlerts: []notifier.Alert{
				{CreatorName: "CreatorX", TierName: "Cool Tier", URL: "http://example.com"},
			},
			wantCache: Cache{"CreatorX_Cool Tier": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(Normalize(tt.scraped), tt.creator, tt.cache)
			if diff := cmp.Diff(tt.wantAlerts, got); diff != "" {
				t.Errorf("Evaluate() alerts mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantCache, tt.cache); diff != "" {
				t.Errorf("Evaluate() cache mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluateCaseInsensitive(t *testing.T) {
	for _, scraped := range []string{"Cool Tier", "cool tier", "COOL TIER", " cool TIER "} {
		t.Run(scraped, func(t *testing.T) {
			cache := Cache{}
			got := Evaluate(Normalize([]notifier.Tier{tier(scraped, notifier.StatusAvailable)}), creatorX, cache)
			if len(got) != 1 {
				t.Fatalf("Evaluate() returned %d alerts, want 1", len(got))
			}
			if got[0].TierName != "Cool Tier" {
				t.Errorf("alert tier name = %q, want watched casing %q", got[0].TierName, "Cool Tier")
			}
			if !cache["CreatorX_Cool Tier"] {
				t.Errorf("cache key not set with watched casing: %v", cache)
			}
		})
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	cache := Cache{}
	snap := Normalize([]notifier.Tier{tier("Cool Tier", notifier.StatusAvailable)})

	if got := Evaluate(snap, creatorX, cache); len(got) != 1 {
		t.Fatalf("first Evaluate() returned %d alerts, want 1", len(got))
	}
	if got := Evaluate(snap, creatorX, cache); len(got) != 0 {
		t.Fatalf("second Evaluate() returned %d alerts, want 0", len(got))
	}
}

func TestEvaluateRoundTrip(t *testing.T) {
	cache := Cache{}
	sequence := []notifier.Status{
		notifier.StatusAvailable,
		notifier.StatusAvailable,
		notifier.StatusSoldOut,
		notifier.StatusSoldOut,
		notifier.StatusAvailable,
		notifier.StatusAvailable,
	}

	total := 0
	for i, status := range sequence {
		alerts := Evaluate(Normalize([]notifier.Tier{tier("Cool Tier", status)}), creatorX, cache)
		total += len(alerts)
		t.Logf("cycle %d status=%s alerts=%d cache=%v", i, status, len(alerts), cache)
	}

	if total != 2 {
		t.Errorf("available -> sold_out -> available emitted %d alerts, want 2", total)
	}
}

func TestEvaluateResetLaw(t *testing.T) {
	cases := map[string][]notifier.Tier{
		"sold out": {tier("Cool Tier", notifier.StatusSoldOut)},
		"unknown":  {tier("Cool Tier", notifier.StatusUnknown)},
		"absent":   nil,
	}

	for name, scraped := range cases {
		t.Run(name, func(t *testing.T) {
			cache := Cache{"CreatorX_Cool Tier": true}
			if got := Evaluate(Normalize(scraped), creatorX, cache); len(got) != 0 {
				t.Errorf("Evaluate() emitted %d alerts on reset, want 0", len(got))
			}
			if v, ok := cache["CreatorX_Cool Tier"]; !ok || v {
				t.Errorf("cache entry = %v (present=%v), want false", v, ok)
			}
		})
	}
}

func TestEvaluateOrderAndIndependence(t *testing.T) {
	creator := notifier.Creator{
		Name:         "Artist",
		URL:          "https://www.patreon.com/artist",
		TiersToWatch: []string{"Gold", "Silver", "Bronze"},
	}
	scraped := []notifier.Tier{
		tier("Bronze", notifier.StatusAvailable),
		tier("Silver", notifier.StatusSoldOut),
		tier("Gold", notifier.StatusAvailable),
	}
	cache := Cache{"Artist_Silver": true, "Other_Gold": true}

	got := Evaluate(Normalize(scraped), creator, cache)

	want := []notifier.Alert{
		{CreatorName: "Artist", TierName: "Gold", URL: creator.URL},
		{CreatorName: "Artist", TierName: "Bronze", URL: creator.URL},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Evaluate() alerts mismatch (-want +got):\n%s", diff)
	}

	wantCache := Cache{
		"Artist_Gold":   true,
		"Artist_Silver": false,
		"Artist_Bronze": true,
		"Other_Gold":    true,
	}
	if diff := cmp.Diff(wantCache, cache); diff != "" {
		t.Errorf("Evaluate() cache mismatch (-want +got):\n%s", diff)
	}
}
