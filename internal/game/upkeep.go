/*
Package game
File: upkeep.go
Description:
    The per-step energy upkeep for running upgrades.

    Each step, every upgrade whose category the current tier permits pays
    Upkeep * EffectiveLevel energy. An upgrade that cannot pay does not run
    this step. Only the read surface and ConsumeEnergyForUpgrade are used.
*/

package game

// System is an effect system stepped by the owner loop once per tick.
type System interface {
	Step(a *Artifact) StepReport
}

// StepReport summarizes one system step on one artifact.
type StepReport struct {
	Ran     []string       // Upgrades that paid upkeep and ran
	Starved []string       // Upgrades that were permitted but could not pay
	Gated   []string       // Upgrades held back by the operating tier
	Spent   map[string]int // Energy charged per upgrade
}

// UpkeepSystem charges running upgrades their catalog upkeep.
type UpkeepSystem struct {
	catalog *Catalog
}

// NewUpkeepSystem creates the upkeep system for catalog.
func NewUpkeepSystem(catalog *Catalog) *UpkeepSystem {
	return &UpkeepSystem{catalog: catalog}
}

// Step charges one tick of upkeep. The tier is sampled once, before any
// charge, so every upgrade in a step is gated by the same tier.
func (u *UpkeepSystem) Step(a *Artifact) StepReport {
	report := StepReport{Spent: make(map[string]int)}
	tier := a.OperatingTier()

	for _, id := range a.Upgrades().IDs() {
		level := a.EffectiveLevel(id)
		if level <= 0 {
			continue
		}
		def := u.catalog.Upgrade(id)
		if def == nil {
			continue
		}
		if !tier.Permits(def.Category) {
			report.Gated = append(report.Gated, id)
			continue
		}
		cost := def.Upkeep * level
		if !a.ConsumeEnergyForUpgrade(id, cost) {
			report.Starved = append(report.Starved, id)
			continue
		}
		if cost > 0 {
			report.Spent[id] = cost
		}
		report.Ran = append(report.Ran, id)
	}
	return report
}
