package access

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Feature kinds gated by the platform. Callers resolve human-readable
// aliases (e.g. a playlist name) to canonical feature ids before
// touching this package.
const (
	FeatureVideo    = "video"
	FeaturePodcast  = "podcast"
	FeaturePDF      = "pdf"
	FeatureNotebook = "notebook"
)

var FeatureKinds = []string{FeatureVideo, FeaturePodcast, FeaturePDF, FeatureNotebook}

// Plan tiers
const (
	PlanWeekly  = "weekly"
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

var (
	// DefaultPlanDurations maps tiers to grant durations; rows in the
	// plan_tier table override these.
	DefaultPlanDurations = map[string]time.Duration{
		PlanWeekly:  7 * 24 * time.Hour,
		PlanMonthly: 30 * 24 * time.Hour,
		PlanYearly:  365 * 24 * time.Hour,
	}

	// DefaultPlanDuration applies to unknown tiers.
	DefaultPlanDuration = 24 * time.Hour
)

// TierDuration returns the built-in duration for a plan tier.
func TierDuration(tier string) time.Duration {
	if d, ok := DefaultPlanDurations[tier]; ok {
		return d
	}
	return DefaultPlanDuration
}

// Key identifies the (subject, feature, feature instance) triple a
// Grant is issued against. At most one active Grant exists per Key.
type Key struct {
	Subject   string `json:"subject"`
	Feature   string `json:"feature"`
	FeatureID string `json:"feature_id"`
}

func (k Key) String() string {
	return k.Subject + "/" + k.Feature + "/" + k.FeatureID
}

// Grant is a durable, expiring permission record. The store is the
// source of truth; events derived from it are notifications only.
type Grant struct {
	ID        string      `json:"id"`
	Subject   string      `json:"subject"`
	Feature   string      `json:"feature"`
	FeatureID string      `json:"feature_id"`
	Expiry    time.Time   `json:"expiry"` // UTC
	Message   null.String `json:"message,omitempty"`
	Revoked   bool        `json:"revoked,omitempty"`
	CreatedAt time.Time   `json:"created_at"` // UTC
	UpdatedAt time.Time   `json:"updated_at"` // UTC
}

func (g Grant) Key() Key {
	return Key{Subject: g.Subject, Feature: g.Feature, FeatureID: g.FeatureID}
}

// Active reports whether the grant still holds at the given instant.
// A grant is active strictly before its expiry, never at or after it.
func (g Grant) Active(now time.Time) bool {
	return !g.Revoked && now.Before(g.Expiry)
}

// PlanTier is an admin-editable named duration bucket.
type PlanTier struct {
	Tier     string        `json:"tier"`
	Duration time.Duration `json:"duration"`
}
