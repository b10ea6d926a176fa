/*
Package game
File: migration.go
Description:
    One-time conversion of the old flat upgrade layout into the structured
    "Upgrades" compound.

    Old blobs carried one key per upgrade field:
        upgrade_<id>           level
        upgrade_<id>_max       owned max (defaults to the level)
        upgrade_<id>_disabled  kill-switch
        upgrade_<id>_paused    paused flag
        upgrade_<id>_last      level saved while paused
    The UpgradesMigrated marker guarantees this runs at most once per
    artifact. Legacy keys are left in the blob but are never read again.
*/

package game

import (
	"sort"
	"strings"
)

const legacyPrefix = "upgrade_"

var legacySuffixes = []string{"_max", "_disabled", "_paused", "_last"}

type legacyUpgrade struct {
	level    int
	ownedMax int
	hasMax   bool
	disabled bool
	paused   bool
	last     int
	hasLast  bool
}

// MigrateLegacy builds a store from the flat legacy keys in blob. It never
// fails: unreadable values are skipped and a blob without legacy keys yields
// an empty store.
func MigrateLegacy(blob Blob, resolver *Resolver) *UpgradeStore {
	found := make(map[string]*legacyUpgrade)
	var order []string

	for _, key := range sortedKeys(blob) {
		if !strings.HasPrefix(strings.ToLower(key), legacyPrefix) {
			continue
		}
		rest := key[len(legacyPrefix):]
		suffix := ""
		for _, sfx := range legacySuffixes {
			if len(rest) > len(sfx) && strings.EqualFold(rest[len(rest)-len(sfx):], sfx) {
				suffix = sfx
				rest = rest[:len(rest)-len(sfx)]
				break
			}
		}
		id := resolver.Normalize(rest)
		if id == "" {
			continue
		}
		u, ok := found[id]
		if !ok {
			u = &legacyUpgrade{}
			found[id] = u
			order = append(order, id)
		}

		switch suffix {
		case "":
			if n, ok := blob.Int(key); ok {
				u.level = max(u.level, n)
			}
		case "_max":
			if n, ok := blob.Int(key); ok {
				u.ownedMax = max(u.ownedMax, n)
				u.hasMax = true
			}
		case "_disabled":
			if b, ok := blob.Bool(key); ok {
				u.disabled = u.disabled || b
			}
		case "_paused":
			if b, ok := blob.Bool(key); ok {
				u.paused = u.paused || b
			}
		case "_last":
			if n, ok := blob.Int(key); ok {
				u.last = max(u.last, n)
				u.hasLast = true
			}
		}
	}

	s := NewUpgradeStore(resolver)
	for _, id := range order {
		u := found[id]
		level := max(u.level, 0)
		if u.paused && u.hasLast {
			level = max(level, u.last)
		}
		ownedMax := level
		if u.hasMax {
			ownedMax = max(u.ownedMax, level)
		}
		if ownedMax <= 0 {
			continue
		}
		s.SetOwnedMax(id, ownedMax)
		s.SetLevel(id, level)
		if u.paused {
			s.Pause(id)
		}
		if u.disabled {
			s.SetDisabled(id, true)
		}
	}
	return s
}

// Attach returns the structured store for blob, migrating the legacy layout
// if the marker is absent. The returned bool reports whether a migration ran.
func Attach(blob Blob, resolver *Resolver) (*UpgradeStore, bool) {
	if compound, ok := blob.Compound(KeyUpgrades); ok {
		return DecodeUpgrades(compound, resolver), false
	}
	if done, _ := blob.Bool(KeyMigrated); done {
		return NewUpgradeStore(resolver), false
	}
	return MigrateLegacy(blob, resolver), true
}

func sortedKeys(b Blob) []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
