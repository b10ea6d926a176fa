/*
Package game
File: persistence.go
Description:
    Reads and writes an artifact's persisted data blob.

    The blob is a loose JSON object owned by the item-persistence layer; this
    engine only touches the keys below (plus the legacy keys in migration.go).
    Entries that never owned anything (OwnedMax == 0 and OriginalMax == 0)
    are pruned on write. Each entry carries its position in the store as
    "slot", since the compound itself is an unordered JSON object.
*/

package game

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Persisted keys.
const (
	KeyUpgrades        = "Upgrades"
	KeyUpgradesVersion = "UpgradesVersion"
	KeyMigrated        = "UpgradesMigrated"
	KeyEnergy          = "Energy"

	// UpgradesFormatVersion is written alongside the structured form.
	UpgradesFormatVersion = 1
)

// Blob is an artifact's persisted data, decoded from JSON.
type Blob map[string]any

// DecodeBlob parses raw JSON into a Blob. Numbers stay json.Number so large
// values are not rounded through float64.
func DecodeBlob(data []byte) (Blob, error) {
	b := Blob{}
	if len(bytes.TrimSpace(data)) == 0 {
		return b, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("decode artifact blob: %w", err)
	}
	return b, nil
}

// Encode serializes the blob as JSON.
func (b Blob) Encode() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode artifact blob: %w", err)
	}
	return data, nil
}

// Int reads an integer key, accepting any JSON or Go numeric form.
func (b Blob) Int(key string) (int, bool) { return asInt(b[key]) }

// Bool reads a boolean key. Numbers are treated as 0/1 flags.
func (b Blob) Bool(key string) (bool, bool) { return asBool(b[key]) }

// Compound reads a nested object.
func (b Blob) Compound(key string) (Blob, bool) {
	switch v := b[key].(type) {
	case Blob:
		return v, true
	case map[string]any:
		return Blob(v), true
	}
	return nil, false
}

func asInt(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			f = float64(i)
		} else if x, err := n.Float64(); err == nil {
			f = x
		} else {
			return 0, false
		}
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
	if math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		p, err := strconv.ParseBool(b)
		return p, err == nil
	}
	if n, ok := asInt(v); ok {
		return n != 0, true
	}
	return false, false
}

// EncodeUpgrades converts a store into its persisted compound, pruning
// entries that never owned anything.
func EncodeUpgrades(s *UpgradeStore) Blob {
	out := Blob{}
	for slot, id := range s.order {
		e := s.entries[id]
		if e.OwnedMax == 0 && e.OriginalMax == 0 {
			continue
		}
		out[id] = Blob{
			"slot":             slot,
			"level":            e.Level,
			"ownedMax":         e.OwnedMax,
			"originalMax":      e.OriginalMax,
			"paused":           e.Paused,
			"lastLevel":        e.LastLevel,
			"disabled":         e.Disabled,
			"damageCount":      e.DamageCount,
			"totalDamageCount": e.TotalDamageCount,
			"wasPunished":      e.WasPunished,
		}
	}
	return out
}

// DecodeUpgrades rebuilds a store from a persisted compound in slot order.
// Entries without a slot follow in key order. Malformed entries are skipped
// and out-of-range numbers are clamped.
func DecodeUpgrades(compound Blob, resolver *Resolver) *UpgradeStore {
	s := NewUpgradeStore(resolver)
	for _, id := range slotOrder(compound) {
		key := resolver.Normalize(id)
		fields, ok := compound.Compound(id)
		if key == "" || !ok {
			continue
		}
		var e UpgradeEntry
		e.Level, _ = fields.Int("level")
		e.OwnedMax, _ = fields.Int("ownedMax")
		e.OriginalMax, _ = fields.Int("originalMax")
		e.Paused, _ = fields.Bool("paused")
		e.LastLevel, _ = fields.Int("lastLevel")
		e.Disabled, _ = fields.Bool("disabled")
		e.DamageCount, _ = fields.Int("damageCount")
		e.TotalDamageCount, _ = fields.Int("totalDamageCount")
		e.WasPunished, _ = fields.Bool("wasPunished")
		e.sanitize()
		if !e.known() {
			continue
		}
		s.put(key, e)
	}
	return s
}

// WriteTo stores the artifact's structured state into blob, leaving any
// other keys (including legacy ones) untouched.
func (a *Artifact) WriteTo(blob Blob) {
	blob[KeyUpgrades] = EncodeUpgrades(a.upgrades)
	blob[KeyUpgradesVersion] = UpgradesFormatVersion
	blob[KeyMigrated] = true
	blob[KeyEnergy] = a.energy.Stored()
}

// LoadArtifact attaches engine state to a persisted blob, migrating the
// legacy layout on first access. The returned bool reports whether a
// migration ran (the blob was rewritten and should be saved).
func LoadArtifact(id string, blob Blob, catalog *Catalog) (*Artifact, bool) {
	store, migrated := Attach(blob, catalog.Resolver())
	a := newArtifact(id, catalog, store)
	if stored, ok := blob.Int(KeyEnergy); ok {
		a.energy.SetStored(stored)
	}
	if migrated {
		a.WriteTo(blob)
		a.dirty = true
	}
	return a, migrated
}

// slotOrder sorts compound keys by their "slot" field.
func slotOrder(compound Blob) []string {
	keys := sortedKeys(compound)
	slotOf := func(id string) int {
		if fields, ok := compound.Compound(id); ok {
			if slot, ok := fields.Int("slot"); ok && slot >= 0 {
				return slot
			}
		}
		return math.MaxInt
	}
	slices.SortStableFunc(keys, func(a, b string) int { return cmp.Compare(slotOf(a), slotOf(b)) })
	return keys
}
