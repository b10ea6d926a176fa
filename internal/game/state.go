/*
Package game
File: state.go
Description:
    Handles loading of the static catalog.
    It reads 'catalog.yaml', applies fallback defaults for missing tuning values,
    normalizes every upgrade key and alias, and builds the resolver.

    The resulting Catalog is immutable; there is no hot reload.
*/

package game

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultBalance holds the fallback tuning values used when the YAML omits them.
var DefaultBalance = Balance{
	BaseCapacity:        10000,
	CapacityPerLevel:    5000,
	MaxTransferRate:     50000,
	StartingEnergy:      10000,
	LevelRaiseCost:      100,
	RepairCostPerLevel:  500,
	RepairCostPerDamage: 100,
}

// DefaultThresholds are the tier boundaries used when the YAML omits them.
var DefaultThresholds = Thresholds{
	Critical:    0.05,
	Emergency:   0.15,
	PowerSaving: 0.30,
}

// DefaultCapacityUpgrade is the upgrade whose level scales the energy capacity.
const DefaultCapacityUpgrade = "BATTERY"

// LoadCatalog reads the catalog file at path and builds the immutable Catalog.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(f)
}

// ParseCatalog builds a Catalog from raw YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

// NewCatalog builds a Catalog from already-populated values. Used by tests and
// tools that do not read a file.
func NewCatalog(balance Balance, upgrades []UpgradeDef, aliases map[string]string) (*Catalog, error) {
	c := Catalog{
		BalanceConfig: balance,
		Upgrades:      upgrades,
		Aliases:       aliases,
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) init() error {
	// 1. Fallback defaults for missing tuning values
	b := &c.BalanceConfig
	if b.BaseCapacity <= 0 {
		b.BaseCapacity = DefaultBalance.BaseCapacity
	}
	if b.CapacityPerLevel < 0 {
		b.CapacityPerLevel = 0
	}
	if b.MaxTransferRate <= 0 {
		b.MaxTransferRate = DefaultBalance.MaxTransferRate
	}
	if b.StartingEnergy < 0 {
		b.StartingEnergy = 0
	}
	if b.LevelRaiseCost < 0 || b.RepairCostPerLevel < 0 || b.RepairCostPerDamage < 0 {
		return fmt.Errorf("catalog balance: costs must not be negative")
	}
	if c.Tiers == (Thresholds{}) {
		c.Tiers = DefaultThresholds
	}
	if !(c.Tiers.Critical <= c.Tiers.Emergency && c.Tiers.Emergency <= c.Tiers.PowerSaving) {
		return fmt.Errorf("catalog tiers: thresholds must be ascending (critical <= emergency <= power_saving)")
	}

	// 2. Resolver over the alias table
	c.resolver = NewResolver(c.Aliases)
	if c.CapacityUpgrade == "" {
		c.CapacityUpgrade = DefaultCapacityUpgrade
	}
	c.CapacityUpgrade = c.resolver.Normalize(c.CapacityUpgrade)

	// 3. Index upgrade definitions by canonical key
	c.byKey = make(map[string]int, len(c.Upgrades))
	for i := range c.Upgrades {
		def := &c.Upgrades[i]
		def.Key = c.resolver.Normalize(def.Key)
		if def.Key == "" {
			return fmt.Errorf("catalog upgrade %d: key is required", i)
		}
		if _, dup := c.byKey[def.Key]; dup {
			return fmt.Errorf("catalog upgrade %s: duplicate key", def.Key)
		}
		if def.Category == "" {
			def.Category = CategoryUtility
		}
		if !def.Category.Valid() {
			return fmt.Errorf("catalog upgrade %s: unknown category %q", def.Key, def.Category)
		}
		if def.MaxLevel <= 0 {
			def.MaxLevel = 1
		}
		c.byKey[def.Key] = i
	}

	// 4. Starting loadout uses canonical keys too
	if len(c.StartingLoadout) > 0 {
		loadout := make(map[string]int, len(c.StartingLoadout))
		for id, level := range c.StartingLoadout {
			key := c.resolver.Normalize(id)
			if key == "" || level <= 0 {
				continue
			}
			loadout[key] = level
		}
		c.StartingLoadout = loadout
	}
	return nil
}
