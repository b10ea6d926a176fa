package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedStore(c *Catalog) *UpgradeStore {
	s := NewUpgradeStore(c.Resolver())
	s.SetLevel("BATTERY", 2)
	s.SetLevel("SHIELD", 4)
	s.Degrade("SHIELD", 1)
	s.MarkPunished("SHIELD")
	s.SetLevel("REGENERATOR", 3)
	s.Pause("REGENERATOR")
	s.SetLevel("THRUSTERS", 1)
	s.SetDisabled("THRUSTERS", true)
	s.SetLevel("SCANNER", 2)
	s.Degrade("SCANNER", 2) // fully degraded: not installed, still repairable
	s.GetOrCreate("GHOST")  // never owned anything
	return s
}

func TestUpgradesSurviveJSONRoundTrip(t *testing.T) {
	c := testCatalog(t)
	s := populatedStore(c)

	blob := Blob{KeyUpgrades: EncodeUpgrades(s)}
	data, err := blob.Encode()
	require.NoError(t, err)
	decoded, err := DecodeBlob(data)
	require.NoError(t, err)
	compound, ok := decoded.Compound(KeyUpgrades)
	require.True(t, ok)

	restored := DecodeUpgrades(compound, c.Resolver())
	for _, id := range s.IDs() {
		want, _ := s.Get(id)
		got, found := restored.Get(id)
		if id == "GHOST" {
			assert.False(t, found, "entries that never owned anything are pruned")
			continue
		}
		require.True(t, found, id)
		assert.Equal(t, want, got, id)
	}
	assert.Equal(t, s.Len()-1, restored.Len())
	assert.Equal(t, []string{"BATTERY", "SHIELD", "REGENERATOR", "THRUSTERS", "SCANNER"}, restored.IDs())
}

func TestStoreOrderSurvivesSaveAndAttach(t *testing.T) {
	c := testCatalog(t)
	s := NewUpgradeStore(c.Resolver())
	for _, id := range []string{"ZETA", "ALPHA", "MID"} {
		s.SetLevel(id, 1)
	}

	data, err := Blob{KeyUpgrades: EncodeUpgrades(s)}.Encode()
	require.NoError(t, err)
	decoded, err := DecodeBlob(data)
	require.NoError(t, err)

	restored, migrated := Attach(decoded, c.Resolver())
	assert.False(t, migrated)
	assert.Equal(t, []string{"ZETA", "ALPHA", "MID"}, restored.IDs())
}

func TestDecodeUpgradesWithoutSlots(t *testing.T) {
	c := testCatalog(t)
	compound := Blob{
		"ZETA":  Blob{"level": 1, "ownedMax": 1, "originalMax": 1},
		"MID":   Blob{"level": 1, "ownedMax": 1, "originalMax": 1, "slot": 0},
		"ALPHA": Blob{"level": 1, "ownedMax": 1, "originalMax": 1},
	}

	restored := DecodeUpgrades(compound, c.Resolver())
	assert.Equal(t, []string{"MID", "ALPHA", "ZETA"}, restored.IDs(), "slotted entries first, then by key")
}

func TestArtifactRoundTrip(t *testing.T) {
	c := testCatalog(t)
	a := NewArtifactWithLoadout("a-1", c)
	a.Apply(func(s *UpgradeStore, l *EnergyLedger) {
		s.Degrade("SHIELD", 2)
		l.Extract(1234, false)
	})

	blob := Blob{"Owner": "kept"}
	a.WriteTo(blob)
	data, err := blob.Encode()
	require.NoError(t, err)
	decoded, err := DecodeBlob(data)
	require.NoError(t, err)

	loaded, migrated := LoadArtifact("a-1", decoded, c)
	assert.False(t, migrated)
	assert.False(t, loaded.Dirty())
	assert.Equal(t, a.Snapshot(), loaded.Snapshot())
	assert.Equal(t, "kept", decoded["Owner"])

	version, ok := decoded.Int(KeyUpgradesVersion)
	require.True(t, ok)
	assert.Equal(t, UpgradesFormatVersion, version)
}

func TestDecodeUpgradesSanitizes(t *testing.T) {
	c := testCatalog(t)
	raw := `{
		"shields": {"level": 9, "ownedMax": "3", "originalMax": 4, "damageCount": 1},
		"BATTERY": {"level": -2, "ownedMax": 2, "originalMax": 2, "lastLevel": 7, "damageCount": -1, "totalDamageCount": 0},
		"SCANNER": 5,
		"THRUSTERS": {"level": 0, "ownedMax": 0, "originalMax": 0},
		"  ": {"level": 1, "ownedMax": 1, "originalMax": 1}
	}`
	compound, err := DecodeBlob([]byte(raw))
	require.NoError(t, err)

	s := DecodeUpgrades(compound, c.Resolver())
	assert.Equal(t, []string{"BATTERY", "SHIELD"}, s.IDs())

	shield := mustGet(t, s, "SHIELD")
	assert.Equal(t, 3, shield.Level)
	assert.Equal(t, 3, shield.OwnedMax)
	assert.Equal(t, 1, shield.TotalDamageCount, "lifetime damage never below outstanding damage")

	battery := mustGet(t, s, "BATTERY")
	assert.Equal(t, 0, battery.Level)
	assert.Equal(t, 2, battery.LastLevel)
	assert.Equal(t, 0, battery.DamageCount)
}

func TestBlobNumericForms(t *testing.T) {
	b := Blob{
		"int":     7,
		"int64":   int64(8),
		"float":   9.0,
		"number":  json.Number("10"),
		"string":  "11",
		"huge":    json.Number("99999999999"),
		"garbage": []any{1},
		"flag":    json.Number("1"),
		"word":    "true",
	}

	for key, want := range map[string]int{"int": 7, "int64": 8, "float": 9, "number": 10, "string": 11} {
		got, ok := b.Int(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	_, ok := b.Int("huge")
	assert.False(t, ok, "values outside int32 are rejected")
	_, ok = b.Int("garbage")
	assert.False(t, ok)
	_, ok = b.Int("missing")
	assert.False(t, ok)

	flag, ok := b.Bool("flag")
	assert.True(t, ok)
	assert.True(t, flag)
	word, ok := b.Bool("word")
	assert.True(t, ok)
	assert.True(t, word)
}

func TestDecodeBlobEmptyAndInvalid(t *testing.T) {
	b, err := DecodeBlob(nil)
	require.NoError(t, err)
	assert.Empty(t, b)

	_, err = DecodeBlob([]byte("[1,2]"))
	assert.Error(t, err)
}
