/*
Package game
File: ids.go
Description:
    Canonical upgrade identifiers.
    Every upgrade ID that enters the engine (network payloads, legacy keys,
    catalog entries) is folded onto one spelling here before it touches a store.
*/

package game

import "strings"

// Resolver normalizes and de-aliases upgrade IDs. It is immutable after
// construction and safe to share between goroutines.
type Resolver struct {
	aliases map[string]string
}

// NewResolver builds a resolver from an alias table (alternate spelling -> canonical).
// Both sides are normalized; chains are collapsed so every lookup is one map hit.
func NewResolver(aliases map[string]string) *Resolver {
	folded := make(map[string]string, len(aliases))
	for from, to := range aliases {
		f, t := clean(from), clean(to)
		if f == "" || t == "" || f == t {
			continue
		}
		folded[f] = t
	}

	// Collapse chains (A -> B -> C becomes A -> C). The hop limit keeps a
	// cyclic table from spinning forever.
	resolved := make(map[string]string, len(folded))
	for from, to := range folded {
		for hops := 0; hops < len(folded); hops++ {
			next, ok := folded[to]
			if !ok || next == from {
				break
			}
			to = next
		}
		resolved[from] = to
	}
	return &Resolver{aliases: resolved}
}

// Normalize trims, upper-cases and de-aliases id. Blank input yields "".
func (r *Resolver) Normalize(id string) string {
	key := clean(id)
	if key == "" || r == nil {
		return key
	}
	if canonical, ok := r.aliases[key]; ok {
		return canonical
	}
	return key
}

func clean(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
