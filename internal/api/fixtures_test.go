package api

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/everforgeworks/galaxies-core/internal/game"
	"github.com/everforgeworks/galaxies-core/internal/storage"
)

const testCatalogYAML = `
balance:
  base_capacity: 10000
  capacity_per_level: 5000
  max_transfer_rate: 50000
  starting_energy: 10000
  level_raise_cost: 100
  repair_cost_per_level: 500
  repair_cost_per_damage: 100
capacity_upgrade: BATTERY
upgrades:
  - {key: BATTERY, category: UTILITY, max_level: 5}
  - {key: REGENERATOR, category: LIFE_CRITICAL, max_level: 4, upkeep: 6}
  - {key: SHIELD, category: DEFENSIVE, max_level: 5, upkeep: 10}
  - {key: THRUSTERS, category: UTILITY, max_level: 3, upkeep: 12}
aliases:
  shields: SHIELD
starting_loadout:
  BATTERY: 2
  SHIELD: 1
`

func testCatalog(t *testing.T) *game.Catalog {
	t.Helper()
	c, err := game.ParseCatalog([]byte(testCatalogYAML))
	require.NoError(t, err)
	return c
}

// fixedLocator hands out pre-built artifacts by requester.
type fixedLocator map[string]*game.Artifact

func (f fixedLocator) Locate(requester string) (*game.Artifact, bool) {
	a, ok := f[requester]
	return a, ok
}

// presenceSet marks players as connected.
type presenceSet map[string]bool

func (p presenceSet) Online(player string) bool { return p[player] }

// equip issues (or loads) player's artifact outside the loop, for setup.
func equip(t *testing.T, r *Roster, player string) *game.Artifact {
	t.Helper()
	a, err := r.Equip(player)
	require.NoError(t, err)
	return a
}

// memStore is an in-process ArtifactStore with failure injection.
type memStore struct {
	mu        sync.Mutex
	artifacts map[string]game.Blob
	owners    map[string]string
	saves     int
	failLoad  error
	failSave  error
}

func newMemStore() *memStore {
	return &memStore{artifacts: make(map[string]game.Blob), owners: make(map[string]string)}
}

func (m *memStore) LoadArtifact(_ context.Context, id string) (game.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLoad != nil {
		return nil, m.failLoad
	}
	blob, ok := m.artifacts[id]
	if !ok {
		return nil, fmt.Errorf("load artifact %s: %w", id, storage.ErrArtifactNotFound)
	}
	return copyBlob(blob)
}

func (m *memStore) SaveArtifacts(_ context.Context, blobs map[string]game.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	for id, blob := range blobs {
		stored, err := copyBlob(blob)
		if err != nil {
			return err
		}
		m.artifacts[id] = stored
	}
	m.saves++
	return nil
}

func (m *memStore) LookupOwner(_ context.Context, player string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.owners[player]
	if !ok {
		return "", fmt.Errorf("lookup owner %s: %w", player, storage.ErrOwnerNotFound)
	}
	return id, nil
}

func (m *memStore) IssueArtifact(_ context.Context, player, id string, blob game.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	if _, ok := m.owners[player]; ok {
		return storage.ErrOwnerExists
	}
	stored, err := copyBlob(blob)
	if err != nil {
		return err
	}
	m.artifacts[id] = stored
	m.owners[player] = id
	m.saves++
	return nil
}

func (m *memStore) put(id string, blob game.Blob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[id] = blob
}

func (m *memStore) blob(id string) game.Blob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.artifacts[id]
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// copyBlob round-trips through JSON the way the badger store does.
func copyBlob(b game.Blob) (game.Blob, error) {
	data, err := b.Encode()
	if err != nil {
		return nil, err
	}
	return game.DecodeBlob(data)
}
