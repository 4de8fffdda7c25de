// Package tiers decides which watched tiers deserve a new availability alert.
package tiers

import (
	"strings"

	"patreon-tier-notifier/pkg/notifier"
)

// KeySeparator joins creator and tier names in cache keys.
// Changing it invalidates every persisted cache.
const KeySeparator = "_"

// Snapshot maps a lower-cased, trimmed tier name to the scraped tier.
type Snapshot map[string]notifier.Tier

// Cache records whether an alert has already fired for a creator tier.
// A missing key means false. Entries are flipped, never deleted.
type Cache map[string]bool

// CacheKey returns the cache slot for a watched tier of a creator.
func CacheKey(creatorName, tierName string) string {
	return creatorName + KeySeparator + tierName
}

// Normalize indexes scraped tiers by lower-cased, trimmed name.
// Blank names are dropped and later duplicates win.
func Normalize(scraped []notifier.Tier) Snapshot {
	snap := make(Snapshot, len(scraped))
	for _, t := range scraped {
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if key == "" {
			continue
		}
		snap[key] = t
	}
	return snap
}

// Evaluate walks the creator's watched tiers in order and returns an alert for
// every tier that is available now and was not alerted before. The cache is
// updated in place: alerted tiers are set to true, and tiers that are sold out,
// unknown or missing from the snapshot are reset to false if they were true.
//
// Evaluate performs no I/O. cache must be non-nil, and callers sharing a cache
// between goroutines must serialize calls that touch the same creator.
func Evaluate(snap Snapshot, creator notifier.Creator, cache Cache) []notifier.Alert {
	var alerts []notifier.Alert

	for _, tierName := range creator.TiersToWatch {
		key := CacheKey(creator.Name, tierName)
		alerted := cache[key]

		tier, found := snap[strings.ToLower(strings.TrimSpace(tierName))]
		if found && tier.Status == notifier.StatusAvailable {
			if alerted {
				continue
			}
			alerts = append(alerts, notifier.Alert{
				CreatorName: creator.Name,
				TierName:    tierName,
				URL:         creator.URL,
			})
			cache[key] = true
			continue
		}

		// Sold out, unknown or gone: rearm so the next opening alerts again.
		if alerted {
			cache[key] = false
		}
	}

	return alerts
}
