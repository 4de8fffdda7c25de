// Package notifier contains the core domain types for the Patreon tier notification service.
package notifier

// Status is the availability of a tier as rendered on a creator page.
type Status string

// Tier statuses produced by the extractor.
const (
	StatusAvailable Status = "available"
	StatusSoldOut   Status = "sold_out"
	StatusUnknown   Status = "unknown" // button text matched neither convention
)

// Tier is one (name, status) pair scraped from a creator page.
type Tier struct {
	Name   string `json:"name"`   // Display name, case preserved
	Status Status `json:"status"` // available, sold_out or unknown
}

// Creator is a configured membership page and the tiers worth alerting on.
type Creator struct {
	Name         string   `json:"name" mapstructure:"name" validate:"required"`
	URL          string   `json:"url" mapstructure:"url" validate:"required,url"`
	TiersToWatch []string `json:"tiers_to_watch" mapstructure:"tiers_to_watch" validate:"dive,required"`
}

// Alert is emitted once when a watched tier becomes available.
type Alert struct {
	CreatorName string `json:"creator_name"`
	TierName    string `json:"tier_name"` // Watched-name casing, not the scraped casing
	URL         string `json:"url"`
}
