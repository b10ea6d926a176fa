/*
Package game
File: artifact.go
Description:
    An Artifact is one equippable ship core: the exclusive owner of one
    UpgradeStore and one EnergyLedger.

    Effect systems use the query surface (EffectiveLevel, IsInstalled,
    IsUpgradeActive, OperatingTier) and the two energy-spend calls.
    Everything else mutates through Apply, which the mutation gateway calls
    from the owner loop.
*/

package game

// LevelModifier lets an effect system adjust the level an upgrade contributes.
// It runs on every EffectiveLevel call, including the capacity read.
type LevelModifier func(a *Artifact, id string, level int) int

// Artifact bundles the upgrade store and energy ledger for one item instance.
type Artifact struct {
	ID string

	catalog  *Catalog
	upgrades *UpgradeStore
	energy   *EnergyLedger
	modifier LevelModifier

	// spent attributes energy to upgrades for telemetry and UI.
	spent map[string]int
	dirty bool
}

// NewArtifact creates an artifact with an empty store and ledger.
func NewArtifact(id string, catalog *Catalog) *Artifact {
	return newArtifact(id, catalog, NewUpgradeStore(catalog.Resolver()))
}

// NewArtifactWithLoadout creates an artifact carrying the catalog's starting
// loadout and starting energy.
func NewArtifactWithLoadout(id string, catalog *Catalog) *Artifact {
	a := NewArtifact(id, catalog)
	for _, def := range catalog.Upgrades {
		if level, ok := catalog.StartingLoadout[def.Key]; ok {
			a.upgrades.SetLevel(def.Key, min(level, def.MaxLevel))
		}
	}
	a.energy.SetStored(catalog.BalanceConfig.StartingEnergy)
	a.dirty = true
	return a
}

func newArtifact(id string, catalog *Catalog, store *UpgradeStore) *Artifact {
	a := &Artifact{
		ID:       id,
		catalog:  catalog,
		upgrades: store,
		spent:    make(map[string]int),
	}
	a.energy = NewEnergyLedger(catalog.BalanceConfig, a.capacityLevel)
	return a
}

// capacityLevel is the level the designated capacity upgrade contributes.
// Paused or disabled counts as zero.
func (a *Artifact) capacityLevel() int {
	id := a.catalog.CapacityUpgrade
	e, ok := a.upgrades.Get(id)
	if !ok || e.Paused || e.Disabled {
		return 0
	}
	level := e.Level
	if a.modifier != nil {
		level = a.modifier(a, id, level)
	}
	return level
}

// SetLevelModifier installs (or clears, with nil) the level modifier.
func (a *Artifact) SetLevelModifier(m LevelModifier) { a.modifier = m }

// Catalog returns the catalog the artifact was built with.
func (a *Artifact) Catalog() *Catalog { return a.catalog }

// Upgrades exposes the store for read access. Mutate through Apply.
func (a *Artifact) Upgrades() *UpgradeStore { return a.upgrades }

// Energy exposes the ledger for read access and simulated transfers.
func (a *Artifact) Energy() *EnergyLedger { return a.energy }

// Entry returns a copy of the upgrade entry for id.
func (a *Artifact) Entry(id string) (UpgradeEntry, bool) { return a.upgrades.Get(id) }

// Apply runs fn against the store and ledger, then re-clamps stored energy
// to the (possibly changed) capacity and marks the artifact dirty.
func (a *Artifact) Apply(fn func(s *UpgradeStore, l *EnergyLedger)) {
	fn(a.upgrades, a.energy)
	a.energy.ClampToCapacity()
	a.dirty = true
}

// Dirty reports whether the artifact changed since the last MarkClean.
func (a *Artifact) Dirty() bool { return a.dirty }

// MarkClean clears the dirty flag after a successful save.
func (a *Artifact) MarkClean() { a.dirty = false }

// EffectiveLevel is the level id contributes to effects right now.
func (a *Artifact) EffectiveLevel(id string) int {
	e, ok := a.upgrades.Get(id)
	if !ok {
		return 0
	}
	level := e.EffectiveLevel()
	if level > 0 && a.modifier != nil {
		level = max(a.modifier(a, a.upgrades.resolver.Normalize(id), level), 0)
	}
	return level
}

// IsInstalled reports whether the holder has any level of id.
func (a *Artifact) IsInstalled(id string) bool {
	e, ok := a.upgrades.Get(id)
	return ok && e.IsInstalled()
}

// IsUpgradeActive reports whether id is installed, not paused and not disabled.
func (a *Artifact) IsUpgradeActive(id string) bool {
	e, ok := a.upgrades.Get(id)
	return ok && e.IsActive()
}

// Stored returns current energy.
func (a *Artifact) Stored() int { return a.energy.Stored() }

// Capacity returns current energy capacity.
func (a *Artifact) Capacity() int { return a.energy.Capacity() }

// OperatingTier classifies the current fill ratio.
func (a *Artifact) OperatingTier() Tier {
	return a.catalog.Tiers.Classify(a.energy.Stored(), a.energy.Capacity())
}

// ConsumeEnergy spends exactly amount, or nothing if that much cannot be
// extracted in one transfer.
func (a *Artifact) ConsumeEnergy(amount int) bool {
	if amount <= 0 {
		return true
	}
	if a.energy.Extract(amount, true) < amount {
		return false
	}
	a.energy.Extract(amount, false)
	a.dirty = true
	return true
}

// ConsumeEnergyForUpgrade is ConsumeEnergy attributed to id.
func (a *Artifact) ConsumeEnergyForUpgrade(id string, amount int) bool {
	if !a.ConsumeEnergy(amount) {
		return false
	}
	if key := a.upgrades.resolver.Normalize(id); key != "" && amount > 0 {
		a.spent[key] += amount
	}
	return true
}

// RecordDamage degrades id by amount on behalf of an effect system.
func (a *Artifact) RecordDamage(id string, amount int) bool {
	var changed bool
	a.Apply(func(s *UpgradeStore, _ *EnergyLedger) {
		changed = s.Degrade(id, amount)
	})
	return changed
}

// DrainSpent returns and resets the per-upgrade energy attribution.
func (a *Artifact) DrainSpent() map[string]int {
	if len(a.spent) == 0 {
		return nil
	}
	out := a.spent
	a.spent = make(map[string]int)
	return out
}

// EntrySnapshot is the observable state of one upgrade.
type EntrySnapshot struct {
	ID string `json:"id"`
	UpgradeEntry
	Installed      bool `json:"installed"`
	Active         bool `json:"active"`
	Damaged        bool `json:"damaged"`
	EffectiveLevel int  `json:"effectiveLevel"`
}

// Snapshot is the observable state of an artifact, sent as a resync.
type Snapshot struct {
	ID       string          `json:"id"`
	Stored   int             `json:"stored"`
	Capacity int             `json:"capacity"`
	Tier     Tier            `json:"tier"`
	Upgrades []EntrySnapshot `json:"upgrades"`
}

// EntrySnapshot returns the observable state of id.
func (a *Artifact) EntrySnapshot(id string) EntrySnapshot {
	key := a.upgrades.resolver.Normalize(id)
	e, _ := a.upgrades.Get(key)
	return EntrySnapshot{
		ID:             key,
		UpgradeEntry:   e,
		Installed:      e.IsInstalled(),
		Active:         e.IsActive(),
		Damaged:        e.IsDamaged(),
		EffectiveLevel: a.EffectiveLevel(key),
	}
}

// Snapshot returns the full observable state.
func (a *Artifact) Snapshot() Snapshot {
	snap := Snapshot{
		ID:       a.ID,
		Stored:   a.energy.Stored(),
		Capacity: a.energy.Capacity(),
		Tier:     a.OperatingTier(),
		Upgrades: make([]EntrySnapshot, 0, a.upgrades.Len()),
	}
	for _, id := range a.upgrades.IDs() {
		snap.Upgrades = append(snap.Upgrades, a.EntrySnapshot(id))
	}
	return snap
}
