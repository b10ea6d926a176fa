/*
Package game
File: tiers.go
Description:
    Operating tiers derived from the energy fill ratio, and the upgrade
    categories each tier lets run. Nothing here holds state.
*/

package game

import "fmt"

// Tier is the artifact's operating mode for the current step.
type Tier int

const (
	TierNormal Tier = iota
	TierPowerSaving
	TierEmergency
	TierCritical
)

var tierNames = [...]string{"NORMAL", "POWER_SAVING", "EMERGENCY", "CRITICAL"}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// MarshalText encodes the tier by name for JSON payloads.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Category groups upgrades by how essential they are.
type Category string

const (
	CategoryLifeCritical Category = "LIFE_CRITICAL" // e.g. regeneration, fire suppression
	CategoryDefensive    Category = "DEFENSIVE"     // core defensive systems
	CategoryUtility      Category = "UTILITY"       // everything else
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryLifeCritical, CategoryDefensive, CategoryUtility:
		return true
	}
	return false
}

// Permits reports whether upgrades of category c may run at tier t.
func (t Tier) Permits(c Category) bool {
	switch t {
	case TierCritical:
		return c == CategoryLifeCritical
	case TierEmergency:
		return c == CategoryLifeCritical || c == CategoryDefensive
	default:
		return true
	}
}

// Classify maps a fill ratio to a tier. A ratio at or below a threshold falls
// into that tier; a non-positive capacity is always critical.
func (th Thresholds) Classify(stored, capacity int) Tier {
	if capacity <= 0 {
		return TierCritical
	}
	ratio := float64(max(stored, 0)) / float64(capacity)
	switch {
	case ratio <= th.Critical:
		return TierCritical
	case ratio <= th.Emergency:
		return TierEmergency
	case ratio <= th.PowerSaving:
		return TierPowerSaving
	default:
		return TierNormal
	}
}

// Classify uses DefaultThresholds.
func Classify(stored, capacity int) Tier {
	return DefaultThresholds.Classify(stored, capacity)
}
