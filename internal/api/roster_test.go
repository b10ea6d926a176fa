package api

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everforgeworks/galaxies-core/internal/game"
	"github.com/everforgeworks/galaxies-core/internal/storage"
)

func TestValidPlayer(t *testing.T) {
	assert.True(t, ValidPlayer("pilot-7"))
	assert.False(t, ValidPlayer(""))
	assert.False(t, ValidPlayer("has space"))
	assert.False(t, ValidPlayer("tab\there"))
	assert.False(t, ValidPlayer(string(make([]byte, MaxIDLength+1))))
}

func TestRosterLocateNeverIssues(t *testing.T) {
	store := newMemStore()
	r := NewRoster(testCatalog(t), store, nil, nil)

	_, ok := r.Locate("stranger")
	assert.False(t, ok)
	assert.Empty(t, r.Loaded())
	assert.Zero(t, store.saveCount(), "an unbound player costs no storage")
	_, err := store.LookupOwner(context.Background(), "stranger")
	assert.ErrorIs(t, err, storage.ErrOwnerNotFound)
}

func TestUnboundPlayerIsUnauthorized(t *testing.T) {
	c := testCatalog(t)
	r := NewRoster(c, newMemStore(), nil, nil)
	equip(t, r, "alice")
	g := NewGateway(r, c, nil, nil)

	out := g.Handle("stranger", Request{ID: "u-1", Kind: KindPauseResume, UpgradeID: "SHIELD", Pause: true})
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, ReasonUnauthorized, out.Reason)
	assert.Nil(t, out.EnergyReading)

	out = g.Handle("alice", Request{ID: "u-2", Kind: KindPauseResume, UpgradeID: "SHIELD", Pause: true})
	assert.Equal(t, StatusApplied, out.Status)
}

func TestRosterEquipIssuesNewArtifact(t *testing.T) {
	store := newMemStore()
	r := NewRoster(testCatalog(t), store, nil, nil)

	a := equip(t, r, "alice")
	assert.Equal(t, 2, a.EffectiveLevel("BATTERY"))
	assert.Equal(t, 1, a.EffectiveLevel("SHIELD"))
	assert.False(t, a.Dirty())

	id, err := store.LookupOwner(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, a.ID, id)
	migrated, _ := store.blob(id).Bool(game.KeyMigrated)
	assert.True(t, migrated)

	again, ok := r.Locate("alice")
	require.True(t, ok)
	assert.Same(t, a, again)
	assert.Same(t, a, equip(t, r, "alice"))
	assert.Len(t, r.Loaded(), 1)
	assert.Equal(t, 1, store.saveCount())
}

func TestRosterEquipRejectsInvalidPlayer(t *testing.T) {
	r := NewRoster(testCatalog(t), newMemStore(), nil, nil)

	_, err := r.Equip("bad player")
	assert.ErrorIs(t, err, ErrInvalidPlayer)
}

func TestRosterIssueFailureLeavesNothingBehind(t *testing.T) {
	store := newMemStore()
	store.failSave = errors.New("disk full")
	r := NewRoster(testCatalog(t), store, nil, nil)

	_, err := r.Equip("alice")
	assert.Error(t, err)
	assert.Empty(t, r.Loaded())
	assert.Empty(t, store.artifacts)
	assert.Empty(t, store.owners)
}

func TestRosterMigratesLegacyArtifact(t *testing.T) {
	store := newMemStore()
	store.owners["bob"] = "art-legacy"
	store.put("art-legacy", game.Blob{
		"upgrade_shields":     3,
		"upgrade_shields_max": 4,
		"upgrade_thrusters":   1,
		"Energy":              7000,
		"Owner":               "bob",
	})
	metrics := NewMetrics(prometheus.NewRegistry())
	r := NewRoster(testCatalog(t), store, metrics, nil)

	a, ok := r.Locate("bob")
	require.True(t, ok)
	assert.Equal(t, "art-legacy", a.ID)
	assert.Equal(t, 3, a.EffectiveLevel("SHIELD"))
	assert.Equal(t, 1, a.EffectiveLevel("THRUSTERS"))
	assert.Equal(t, 7000, a.Stored())
	assert.True(t, a.Dirty(), "migrated artifacts need saving")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.migrations))

	require.NoError(t, r.Flush(context.Background()))
	saved := store.blob("art-legacy")
	done, _ := saved.Bool(game.KeyMigrated)
	assert.True(t, done)
	assert.Equal(t, "bob", saved["Owner"])
	_, ok = saved.Compound(game.KeyUpgrades)
	assert.True(t, ok)
	assert.False(t, a.Dirty())
}

func TestRosterBoundButMissingBlob(t *testing.T) {
	store := newMemStore()
	store.owners["carol"] = "art-gone"
	r := NewRoster(testCatalog(t), store, nil, nil)

	a, ok := r.Locate("carol")
	require.True(t, ok)
	assert.Equal(t, "art-gone", a.ID)
	assert.Equal(t, 0, a.Upgrades().Len())
}

func TestRosterStorageFailure(t *testing.T) {
	store := newMemStore()
	store.owners["dave"] = "art-1"
	store.failLoad = errors.New("io error")
	r := NewRoster(testCatalog(t), store, nil, nil)

	_, ok := r.Locate("dave")
	assert.False(t, ok)
	_, err := r.Equip("dave")
	assert.Error(t, err, "a load failure is not a missing binding")
	assert.Empty(t, r.Loaded())
	assert.Empty(t, store.artifacts, "nothing was issued over the broken binding")

	_, ok = r.Locate("bad player")
	assert.False(t, ok)
}

func TestRosterFlushSkipsCleanArtifacts(t *testing.T) {
	store := newMemStore()
	r := NewRoster(testCatalog(t), store, nil, nil)
	equip(t, r, "alice")
	b := equip(t, r, "bob")
	saves := store.saveCount()

	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, saves, store.saveCount(), "nothing dirty, nothing written")

	b.ConsumeEnergy(250)
	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, saves+1, store.saveCount())
	energy, _ := store.blob(b.ID).Int(game.KeyEnergy)
	assert.Equal(t, 9750, energy)
}

func TestRosterEvictsDisconnectedAfterFlush(t *testing.T) {
	store := newMemStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	r := NewRoster(testCatalog(t), store, metrics, nil)
	online := presenceSet{"alice": true, "bob": true}
	r.SetPresence(online)

	alice := equip(t, r, "alice")
	bob := equip(t, r, "bob")
	require.NoError(t, r.Flush(context.Background()))
	assert.Len(t, r.Loaded(), 2, "connected players stay loaded")

	online["bob"] = false
	bob.ConsumeEnergy(100)
	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, []*game.Artifact{alice}, r.Loaded())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.loadedArtifact))
	energy, _ := store.blob(bob.ID).Int(game.KeyEnergy)
	assert.Equal(t, 9900, energy, "evicted only after its changes were saved")

	again, ok := r.Locate("bob")
	require.True(t, ok)
	assert.NotSame(t, bob, again)
	assert.Equal(t, bob.ID, again.ID)
	assert.Equal(t, 9900, again.Stored())
}

func TestRosterKeepsDirtyArtifactWhenSaveFails(t *testing.T) {
	store := newMemStore()
	r := NewRoster(testCatalog(t), store, nil, nil)
	r.SetPresence(presenceSet{})
	a := equip(t, r, "alice")
	a.ConsumeEnergy(1)
	store.failSave = errors.New("disk full")

	assert.Error(t, r.Flush(context.Background()))
	assert.Len(t, r.Loaded(), 1, "unsaved changes are never dropped")
}

func TestRosterWithBadgerStore(t *testing.T) {
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	c := testCatalog(t)
	r := NewRoster(c, store, nil, nil)
	a := equip(t, r, "alice")
	a.Apply(func(s *game.UpgradeStore, _ *game.EnergyLedger) { s.Degrade("SHIELD", 1) })
	require.NoError(t, r.Flush(context.Background()))

	// A fresh roster sees what the first one flushed.
	fresh := NewRoster(c, store, nil, nil)
	b, ok := fresh.Locate("alice")
	require.True(t, ok)
	assert.Equal(t, a.ID, b.ID)
	assert.True(t, b.Upgrades().IsDamaged("SHIELD"))
	assert.False(t, b.IsInstalled("SHIELD"))
}
