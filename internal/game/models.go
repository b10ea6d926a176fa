/*
Package game
File: models.go
Description:
    Defines the static configuration structures for the artifact engine.
    These map directly onto 'catalog.yaml' and onto the JSON served by the
    read-only catalog endpoint.

    No logic is performed here beyond small lookups on the loaded Catalog.
*/

package game

// Balance stores the tuning constants that the energy and repair formulas read.
type Balance struct {
	BaseCapacity        int `yaml:"base_capacity" json:"base_capacity"`                   // Capacity with no capacity upgrade installed
	CapacityPerLevel    int `yaml:"capacity_per_level" json:"capacity_per_level"`         // Bonus capacity per active capacity upgrade level
	MaxTransferRate     int `yaml:"max_transfer_rate" json:"max_transfer_rate"`           // Cap on a single receive/extract call
	StartingEnergy      int `yaml:"starting_energy" json:"starting_energy"`               // Energy given to a freshly created artifact
	LevelRaiseCost      int `yaml:"level_raise_cost" json:"level_raise_cost"`             // Energy per level when a client raises a level (0 = free)
	RepairCostPerLevel  int `yaml:"repair_cost_per_level" json:"repair_cost_per_level"`   // Energy per restored level
	RepairCostPerDamage int `yaml:"repair_cost_per_damage" json:"repair_cost_per_damage"` // Energy per outstanding damage unit
}

// Thresholds are the fill ratios at or below which a tier begins.
type Thresholds struct {
	Critical    float64 `yaml:"critical" json:"critical"`
	Emergency   float64 `yaml:"emergency" json:"emergency"`
	PowerSaving float64 `yaml:"power_saving" json:"power_saving"`
}

// UpgradeDef describes one kind of upgrade an artifact can carry.
type UpgradeDef struct {
	Key         string   `yaml:"key" json:"key"`                 // Canonical ID (e.g., "SHIELD")
	Name        string   `yaml:"name" json:"name"`               // Display name
	Description string   `yaml:"description" json:"description"` // Flavor text
	Category    Category `yaml:"category" json:"category"`       // Gating class used by the operating tier
	MaxLevel    int      `yaml:"max_level" json:"max_level"`     // Highest level a loadout may grant
	Upkeep      int      `yaml:"upkeep" json:"upkeep"`           // Energy per effective level per simulation step
}

// Catalog is the root configuration, mapping to the entire 'catalog.yaml' file.
// It is built once at startup and treated as read-only afterwards; every
// component that needs it receives the same pointer.
type Catalog struct {
	BalanceConfig   Balance           `yaml:"balance" json:"balance"`
	Tiers           Thresholds        `yaml:"tiers" json:"tiers"`
	CapacityUpgrade string            `yaml:"capacity_upgrade" json:"capacity_upgrade"`
	Upgrades        []UpgradeDef      `yaml:"upgrades" json:"upgrades"`
	Aliases         map[string]string `yaml:"aliases" json:"aliases"`
	StartingLoadout map[string]int    `yaml:"starting_loadout" json:"starting_loadout"`

	resolver *Resolver
	byKey    map[string]int
}

// Resolver returns the canonical ID resolver built from the alias table.
func (c *Catalog) Resolver() *Resolver {
	if c == nil {
		return nil
	}
	return c.resolver
}

// Upgrade looks up an upgrade definition by any spelling of its ID.
// Returns nil if the catalog does not define it.
func (c *Catalog) Upgrade(id string) *UpgradeDef {
	if c == nil {
		return nil
	}
	idx, ok := c.byKey[c.resolver.Normalize(id)]
	if !ok {
		return nil
	}
	def := c.Upgrades[idx]
	return &def
}
