/*
Package api
File: roster.go
Description:
    The roster tracks which artifact each player holds and keeps those
    artifacts attached in memory. It is the gateway's EquipmentLocator and
    must only be used from the owner loop.

    Locate only resolves an artifact the player already holds; a player with
    no binding is not authorized for anything. Equip is the one path that
    issues a new artifact (with the starting loadout), and it runs when a
    player opens a socket. Loading a bound blob attaches engine state and
    runs the legacy migration if needed.

    Artifacts whose player has no live connection are dropped from memory
    at the first flush that finds them clean.
*/

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/everforgeworks/galaxies-core/internal/game"
	"github.com/everforgeworks/galaxies-core/internal/storage"
)

// ArtifactStore is the persistence the roster needs.
type ArtifactStore interface {
	LoadArtifact(ctx context.Context, id string) (game.Blob, error)
	SaveArtifacts(ctx context.Context, blobs map[string]game.Blob) error
	LookupOwner(ctx context.Context, player string) (string, error)
	IssueArtifact(ctx context.Context, player, id string, blob game.Blob) error
}

// Presence reports whether a player has a live connection.
type Presence interface {
	Online(player string) bool
}

// ErrInvalidPlayer is returned by Equip for a malformed player ID.
var ErrInvalidPlayer = errors.New("invalid player id")

const storageTimeout = 2 * time.Second

type held struct {
	artifact *game.Artifact
	blob     game.Blob
}

// Roster maps players to their attached artifacts.
type Roster struct {
	catalog  *game.Catalog
	store    ArtifactStore
	presence Presence
	metrics  *Metrics
	logger   *slog.Logger

	byPlayer map[string]*held
	players  []string
}

// NewRoster creates an empty roster. Without a Presence nothing is evicted.
func NewRoster(catalog *game.Catalog, store ArtifactStore, metrics *Metrics, logger *slog.Logger) *Roster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Roster{
		catalog:  catalog,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		byPlayer: make(map[string]*held),
	}
}

// SetPresence sets the connection tracker used for eviction. Must be called
// before the owner loop starts.
func (r *Roster) SetPresence(p Presence) { r.presence = p }

// ValidPlayer reports whether player is an acceptable requester ID.
func ValidPlayer(player string) bool {
	if player == "" || len(player) > MaxIDLength {
		return false
	}
	for i := 0; i < len(player); i++ {
		if c := player[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// Locate returns the artifact player holds, loading it on first use. A
// player without a binding gets false.
func (r *Roster) Locate(player string) (*game.Artifact, bool) {
	if !ValidPlayer(player) {
		return nil, false
	}
	if h, ok := r.byPlayer[player]; ok {
		return h.artifact, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	h, err := r.load(ctx, player)
	if err != nil {
		if !errors.Is(err, storage.ErrOwnerNotFound) {
			r.logger.Error("attach artifact",
				slog.String("player", player),
				slog.String("error", err.Error()))
		}
		return nil, false
	}
	r.hold(player, h)
	return h.artifact, true
}

// Equip returns player's artifact, issuing a new one if the player holds none.
func (r *Roster) Equip(player string) (*game.Artifact, error) {
	if !ValidPlayer(player) {
		return nil, ErrInvalidPlayer
	}
	if h, ok := r.byPlayer[player]; ok {
		return h.artifact, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	h, err := r.load(ctx, player)
	if errors.Is(err, storage.ErrOwnerNotFound) {
		h, err = r.issue(ctx, player)
	}
	if err != nil {
		return nil, fmt.Errorf("equip %s: %w", player, err)
	}
	r.hold(player, h)
	return h.artifact, nil
}

func (r *Roster) hold(player string, h *held) {
	r.byPlayer[player] = h
	r.players = append(r.players, player)
	r.metrics.SetLoaded(len(r.players))
}

// load attaches the artifact bound to player.
func (r *Roster) load(ctx context.Context, player string) (*held, error) {
	id, err := r.store.LookupOwner(ctx, player)
	if err != nil {
		return nil, err
	}

	blob, err := r.store.LoadArtifact(ctx, id)
	if errors.Is(err, storage.ErrArtifactNotFound) {
		blob = game.Blob{}
	} else if err != nil {
		return nil, err
	}

	a, migrated := game.LoadArtifact(id, blob, r.catalog)
	if migrated {
		r.metrics.ObserveMigration()
		r.logger.Info("migrated legacy upgrades",
			slog.String("player", player),
			slog.String("artifact", id),
			slog.Int("upgrades", a.Upgrades().Len()))
	}
	return &held{artifact: a, blob: blob}, nil
}

// issue creates a fresh artifact with the starting loadout and binds it.
func (r *Roster) issue(ctx context.Context, player string) (*held, error) {
	id := uuid.NewString()
	a := game.NewArtifactWithLoadout(id, r.catalog)
	blob := game.Blob{}
	a.WriteTo(blob)

	if err := r.store.IssueArtifact(ctx, player, id, blob); err != nil {
		return nil, fmt.Errorf("issue artifact: %w", err)
	}
	a.MarkClean()
	r.logger.Info("issued artifact", slog.String("player", player), slog.String("artifact", id))
	return &held{artifact: a, blob: blob}, nil
}

// Loaded returns attached artifacts in attach order.
func (r *Roster) Loaded() []*game.Artifact {
	out := make([]*game.Artifact, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, r.byPlayer[p].artifact)
	}
	return out
}

// Flush writes every dirty artifact in one batch, then drops clean artifacts
// of players who are no longer connected.
func (r *Roster) Flush(ctx context.Context) error {
	batch := make(map[string]game.Blob)
	var dirty []*game.Artifact
	for _, p := range r.players {
		h := r.byPlayer[p]
		if !h.artifact.Dirty() {
			continue
		}
		h.artifact.WriteTo(h.blob)
		batch[h.artifact.ID] = h.blob
		dirty = append(dirty, h.artifact)
	}
	if len(batch) > 0 {
		if err := r.store.SaveArtifacts(ctx, batch); err != nil {
			return err
		}
		for _, a := range dirty {
			a.MarkClean()
		}
	}
	r.evictIdle()
	return nil
}

func (r *Roster) evictIdle() {
	if r.presence == nil {
		return
	}
	kept := r.players[:0]
	for _, p := range r.players {
		if !r.byPlayer[p].artifact.Dirty() && !r.presence.Online(p) {
			delete(r.byPlayer, p)
			continue
		}
		kept = append(kept, p)
	}
	clear(r.players[len(kept):])
	r.players = kept
	r.metrics.SetLoaded(len(r.players))
}
