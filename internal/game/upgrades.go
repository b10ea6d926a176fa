/*
Package game
File: upgrades.go
Description:
    The per-artifact upgrade record set.

    Each UpgradeEntry keeps four independent axes: paused, disabled, damage
    (OwnedMax below OriginalMax) and the level/owned-max magnitudes. They are
    plain fields, not a state enum. Every mutator below leaves
    0 <= Level <= OwnedMax <= OriginalMax intact, except SetOwnedMax, which
    may place OwnedMax above an already recorded OriginalMax.
*/

package game

// UpgradeEntry is one installed (or previously installed) upgrade on an artifact.
type UpgradeEntry struct {
	Level            int  `json:"level"`            // Current active level
	OwnedMax         int  `json:"ownedMax"`         // Highest level currently owned (shrinks with damage)
	OriginalMax      int  `json:"originalMax"`      // Highest level ever owned; ceiling for repair
	Paused           bool `json:"paused"`           // Temporarily switched off by the holder
	LastLevel        int  `json:"lastLevel"`        // Level saved when paused
	Disabled         bool `json:"disabled"`         // Administrative kill-switch
	DamageCount      int  `json:"damageCount"`      // Outstanding degradation units
	TotalDamageCount int  `json:"totalDamageCount"` // Lifetime degradation units, never decremented
	WasPunished      bool `json:"wasPunished"`      // Sticky marker for external penalty logic
}

// IsInstalled reports whether the holder currently has any of this upgrade.
func (e UpgradeEntry) IsInstalled() bool { return e.Level > 0 || e.OwnedMax > 0 }

// IsActive reports whether the upgrade contributes to effects right now.
func (e UpgradeEntry) IsActive() bool { return e.IsInstalled() && !e.Paused && !e.Disabled }

// EffectiveLevel is Level while active, 0 otherwise.
func (e UpgradeEntry) EffectiveLevel() int {
	if !e.IsActive() {
		return 0
	}
	return e.Level
}

// IsDamaged reports whether repair could restore owned levels.
func (e UpgradeEntry) IsDamaged() bool { return e.OwnedMax < e.OriginalMax }

// known reports whether the entry carries anything worth persisting.
func (e UpgradeEntry) known() bool { return e.IsInstalled() || e.OriginalMax > 0 }

// sanitize re-establishes the numeric invariants on an entry read from an
// untrusted source (persisted blob, legacy layout).
func (e *UpgradeEntry) sanitize() {
	e.Level = max(e.Level, 0)
	e.OwnedMax = max(e.OwnedMax, 0)
	e.OriginalMax = max(e.OriginalMax, 0)
	e.Level = min(e.Level, e.OwnedMax)
	e.LastLevel = min(max(e.LastLevel, 0), e.OwnedMax)
	e.DamageCount = max(e.DamageCount, 0)
	e.TotalDamageCount = max(e.TotalDamageCount, e.DamageCount)
}

// UpgradeStore is an ordered mapping of canonical ID -> UpgradeEntry scoped to
// one artifact. It is not safe for concurrent use; the owner loop serializes
// every access.
type UpgradeStore struct {
	resolver *Resolver
	order    []string
	entries  map[string]*UpgradeEntry
}

// NewUpgradeStore creates an empty store that normalizes IDs with resolver.
// A nil resolver only trims and upper-cases.
func NewUpgradeStore(resolver *Resolver) *UpgradeStore {
	return &UpgradeStore{
		resolver: resolver,
		entries:  make(map[string]*UpgradeEntry),
	}
}

// Get returns a copy of the entry for id. ok is false if id was never referenced.
func (s *UpgradeStore) Get(id string) (UpgradeEntry, bool) {
	e := s.lookup(id)
	if e == nil {
		return UpgradeEntry{}, false
	}
	return *e, true
}

// GetOrCreate materializes a zeroed entry for id if needed and returns a copy.
func (s *UpgradeStore) GetOrCreate(id string) UpgradeEntry {
	e := s.entry(id)
	if e == nil {
		return UpgradeEntry{}
	}
	return *e
}

// SetLevel clamps level to [0, OwnedMax] and stores it. On an entry that owns
// nothing yet, a positive level is a first-time grant: OwnedMax (and an unset
// OriginalMax) are raised to it. Returns the stored level.
func (s *UpgradeStore) SetLevel(id string, level int) int {
	e := s.entry(id)
	if e == nil {
		return 0
	}
	if level > 0 && e.OwnedMax == 0 {
		e.OwnedMax = level
		if e.OriginalMax == 0 {
			e.OriginalMax = level
		}
	}
	e.Level = min(max(level, 0), e.OwnedMax)
	return e.Level
}

// SetOwnedMax sets OwnedMax. The first write on an entry with no ceiling also
// fixes OriginalMax; later writes leave the ceiling alone, even when they
// exceed it (an administrative grant above the recorded ceiling).
func (s *UpgradeStore) SetOwnedMax(id string, ownedMax int) {
	e := s.entry(id)
	if e == nil {
		return
	}
	ownedMax = max(ownedMax, 0)
	e.OwnedMax = ownedMax
	if e.OriginalMax == 0 {
		e.OriginalMax = ownedMax
	}
	e.Level = min(e.Level, e.OwnedMax)
	e.LastLevel = min(e.LastLevel, e.OwnedMax)
}

// Pause snapshots the current level and marks the entry paused.
// Returns false if the entry is missing or already paused.
func (s *UpgradeStore) Pause(id string) bool {
	e := s.lookup(id)
	if e == nil || e.Paused {
		return false
	}
	e.LastLevel = e.Level
	e.Paused = true
	return true
}

// Resume restores the level saved by Pause, clamped to whatever is still owned.
func (s *UpgradeStore) Resume(id string) bool {
	e := s.lookup(id)
	if e == nil || !e.Paused {
		return false
	}
	e.Level = min(e.LastLevel, e.OwnedMax)
	e.Paused = false
	return true
}

// SetDisabled flips the administrative kill-switch.
func (s *UpgradeStore) SetDisabled(id string, disabled bool) {
	if e := s.entry(id); e != nil {
		e.Disabled = disabled
	}
}

// MarkPunished sets the sticky penalty marker.
func (s *UpgradeStore) MarkPunished(id string) {
	if e := s.lookup(id); e != nil {
		e.WasPunished = true
	}
}

// Degrade removes amount owned levels from an installed upgrade and records
// the removed levels as damage. Returns false when nothing changed.
func (s *UpgradeStore) Degrade(id string, amount int) bool {
	e := s.lookup(id)
	if e == nil || !e.IsInstalled() || amount <= 0 {
		return false
	}
	removed := min(amount, e.OwnedMax)
	e.OwnedMax -= removed
	e.DamageCount += removed
	e.TotalDamageCount += removed
	e.Level = min(e.Level, e.OwnedMax)
	e.LastLevel = min(e.LastLevel, e.OwnedMax)
	return removed > 0
}

// Repair raises OwnedMax to target. It only succeeds for
// OwnedMax < target <= OriginalMax and leaves the entry untouched otherwise.
func (s *UpgradeStore) Repair(id string, target int) bool {
	e := s.lookup(id)
	if e == nil || target <= e.OwnedMax || target > e.OriginalMax {
		return false
	}
	restored := target - e.OwnedMax
	e.OwnedMax = target
	e.DamageCount = max(e.DamageCount-restored, 0)
	return true
}

// FullRepair restores OwnedMax to OriginalMax and clears outstanding damage.
func (s *UpgradeStore) FullRepair(id string) bool {
	e := s.lookup(id)
	if e == nil || !e.IsInstalled() {
		return false
	}
	e.OwnedMax = e.OriginalMax
	e.DamageCount = 0
	e.Level = min(e.Level, e.OwnedMax)
	e.LastLevel = min(e.LastLevel, e.OwnedMax)
	return true
}

// IsDamaged reports OwnedMax < OriginalMax for id.
func (s *UpgradeStore) IsDamaged(id string) bool {
	e := s.lookup(id)
	return e != nil && e.IsDamaged()
}

// InstalledCount counts installed entries.
func (s *UpgradeStore) InstalledCount() int {
	n := 0
	for _, e := range s.entries {
		if e.IsInstalled() {
			n++
		}
	}
	return n
}

// ActiveCount counts active entries.
func (s *UpgradeStore) ActiveCount() int {
	n := 0
	for _, e := range s.entries {
		if e.IsActive() {
			n++
		}
	}
	return n
}

// TotalLevel sums Level over installed entries.
func (s *UpgradeStore) TotalLevel() int {
	total := 0
	for _, e := range s.entries {
		if e.IsInstalled() {
			total += e.Level
		}
	}
	return total
}

// TotalActiveLevel sums Level over active entries.
func (s *UpgradeStore) TotalActiveLevel() int {
	total := 0
	for _, e := range s.entries {
		if e.IsActive() {
			total += e.Level
		}
	}
	return total
}

// Remove deletes the entry outright.
func (s *UpgradeStore) Remove(id string) bool {
	key := s.resolver.Normalize(id)
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Reset zeroes level, pause and disable state but keeps the max fields.
func (s *UpgradeStore) Reset(id string) {
	e := s.lookup(id)
	if e == nil {
		return
	}
	e.Level = 0
	e.LastLevel = 0
	e.Paused = false
	e.Disabled = false
}

// Clear empties the store.
func (s *UpgradeStore) Clear() {
	s.order = nil
	s.entries = make(map[string]*UpgradeEntry)
}

// IDs returns canonical IDs in first-reference order.
func (s *UpgradeStore) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of entries, installed or not.
func (s *UpgradeStore) Len() int { return len(s.order) }

// Clone returns a deep copy sharing the same resolver.
func (s *UpgradeStore) Clone() *UpgradeStore {
	c := NewUpgradeStore(s.resolver)
	for _, key := range s.order {
		e := *s.entries[key]
		c.order = append(c.order, key)
		c.entries[key] = &e
	}
	return c
}

// put inserts a fully formed entry, used by decoding paths.
func (s *UpgradeStore) put(key string, e UpgradeEntry) {
	e.sanitize()
	if _, ok := s.entries[key]; !ok {
		s.order = append(s.order, key)
	}
	s.entries[key] = &e
}

func (s *UpgradeStore) lookup(id string) *UpgradeEntry {
	return s.entries[s.resolver.Normalize(id)]
}

func (s *UpgradeStore) entry(id string) *UpgradeEntry {
	key := s.resolver.Normalize(id)
	if key == "" {
		return nil
	}
	if e, ok := s.entries[key]; ok {
		return e
	}
	e := &UpgradeEntry{}
	s.entries[key] = e
	s.order = append(s.order, key)
	return e
}
