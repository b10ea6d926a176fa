/*
Package api
File: gateway.go
Description:
    The mutation gateway validates and applies the three remote requests
    (SetLevel, PauseResume, RepairModule) against an artifact's upgrades and
    energy.

    It must only be called from the owner loop. A request is either applied
    fully or rejected with no effect; a rejection is an Outcome, not an error.
    Energy charges are simulated first and committed only when the full
    amount is available, so energy and mutation always happen together.
*/

package api

import (
	"log/slog"

	"github.com/everforgeworks/galaxies-core/internal/game"
)

// EquipmentLocator resolves the artifact a requester currently holds.
type EquipmentLocator interface {
	Locate(requester string) (*game.Artifact, bool)
}

// Status is the coarse result of a request.
type Status string

const (
	StatusApplied  Status = "applied"
	StatusNoop     Status = "noop"
	StatusRejected Status = "rejected"
)

// Reason codes. Callers branch on these, never on Outcome.Message.
const (
	ReasonNone               = ""
	ReasonUnauthorized       = "unauthorized"
	ReasonUnknownUpgrade     = "unknown_upgrade"
	ReasonNotInstalled       = "not_installed"
	ReasonPaused             = "paused"
	ReasonDisabled           = "disabled"
	ReasonUnchanged          = "unchanged"
	ReasonNotDamaged         = "not_damaged"
	ReasonInvalidTarget      = "invalid_target"
	ReasonInsufficientEnergy = "insufficient_energy"
	ReasonMalformed          = "malformed"
	ReasonQueueFull          = "queue_full"
	ReasonQueueLimit         = "queue_limit"
	ReasonTimeout            = "timeout"
)

// Outcome is returned to the requester for every request. The energy fields
// are present only when the requester's artifact was located.
type Outcome struct {
	RequestID string              `json:"request_id"`
	Kind      RequestKind         `json:"kind"`
	Status    Status              `json:"status"`
	Reason    string              `json:"reason,omitempty"`
	Message   string              `json:"message,omitempty"`
	Entry     *game.EntrySnapshot `json:"entry,omitempty"`
	Charged   int                 `json:"charged"`
	*EnergyReading
}

// EnergyReading is the artifact's energy state after a request.
type EnergyReading struct {
	Stored   int       `json:"stored"`
	Capacity int       `json:"capacity"`
	Tier     game.Tier `json:"tier"`
}

// readEnergy samples a's energy state.
func readEnergy(a *game.Artifact) *EnergyReading {
	return &EnergyReading{Stored: a.Stored(), Capacity: a.Capacity(), Tier: a.OperatingTier()}
}

// Applied reports whether the request changed state.
func (o Outcome) Applied() bool { return o.Status == StatusApplied }

// Gateway applies mutation requests.
type Gateway struct {
	locator EquipmentLocator
	catalog *game.Catalog
	metrics *Metrics
	logger  *slog.Logger
}

// NewGateway creates a gateway. metrics may be nil.
func NewGateway(locator EquipmentLocator, catalog *game.Catalog, metrics *Metrics, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{locator: locator, catalog: catalog, metrics: metrics, logger: logger}
}

// Handle dispatches req on behalf of requester.
func (g *Gateway) Handle(requester string, req Request) Outcome {
	var out Outcome
	switch req.Kind {
	case KindSetLevel:
		out = g.SetLevel(requester, req.ID, req.UpgradeID, req.Level)
	case KindPauseResume:
		out = g.PauseResume(requester, req.ID, req.UpgradeID, req.Pause)
	case KindRepairModule:
		out = g.RepairModule(requester, req.ID, req.UpgradeID, req.Level, req.FullRepair)
	default:
		out = Outcome{RequestID: req.ID, Kind: req.Kind, Status: StatusRejected, Reason: ReasonMalformed, Message: "Unknown request"}
	}
	g.metrics.ObserveOutcome(out)
	if out.Status == StatusApplied {
		g.logger.Debug("mutation applied",
			slog.String("requester", requester),
			slog.String("kind", string(out.Kind)),
			slog.String("request_id", out.RequestID),
			slog.Int("charged", out.Charged))
	}
	return out
}

// SetLevel sets the active level of an installed upgrade, clamped to what
// the holder owns. Raising a level may cost energy.
func (g *Gateway) SetLevel(requester, requestID, upgradeID string, requested int) Outcome {
	a, key, out := g.begin(requester, requestID, KindSetLevel, upgradeID)
	if a == nil {
		return out
	}

	entry, ok := a.Entry(key)
	if !ok || !entry.IsInstalled() {
		return g.reject(out, a, key, ReasonNotInstalled, "Upgrade not installed")
	}
	if entry.Disabled {
		return g.reject(out, a, key, ReasonDisabled, "Upgrade is disabled")
	}
	if entry.Paused {
		return g.reject(out, a, key, ReasonPaused, "Resume the upgrade before changing its level")
	}

	target := min(max(requested, 0), entry.OwnedMax)
	if target == entry.Level {
		return g.finish(out, a, key, StatusNoop, ReasonUnchanged, "Level unchanged")
	}

	cost := 0
	if target > entry.Level {
		cost = (target - entry.Level) * g.catalog.BalanceConfig.LevelRaiseCost
	}
	if !canAfford(a, cost) {
		return g.reject(out, a, key, ReasonInsufficientEnergy, "Insufficient energy")
	}

	a.Apply(func(s *game.UpgradeStore, l *game.EnergyLedger) {
		l.Extract(cost, false)
		s.SetLevel(key, target)
	})
	out.Charged = cost
	return g.finish(out, a, key, StatusApplied, ReasonNone, "")
}

// PauseResume pauses or resumes an installed upgrade. Asking for the state
// the upgrade is already in is a no-op, not a rejection.
func (g *Gateway) PauseResume(requester, requestID, upgradeID string, pause bool) Outcome {
	a, key, out := g.begin(requester, requestID, KindPauseResume, upgradeID)
	if a == nil {
		return out
	}

	entry, ok := a.Entry(key)
	if !ok || !entry.IsInstalled() {
		return g.reject(out, a, key, ReasonNotInstalled, "Upgrade not installed")
	}
	if entry.Paused == pause {
		return g.finish(out, a, key, StatusNoop, ReasonUnchanged, "Already in requested state")
	}

	a.Apply(func(s *game.UpgradeStore, _ *game.EnergyLedger) {
		if pause {
			s.Pause(key)
		} else {
			s.Resume(key)
		}
	})
	return g.finish(out, a, key, StatusApplied, ReasonNone, "")
}

// RepairModule restores owned levels of a damaged upgrade for energy.
// cost = (target - OwnedMax) * RepairCostPerLevel + DamageCount * RepairCostPerDamage.
func (g *Gateway) RepairModule(requester, requestID, upgradeID string, targetLevel int, fullRepair bool) Outcome {
	a, key, out := g.begin(requester, requestID, KindRepairModule, upgradeID)
	if a == nil {
		return out
	}

	entry, ok := a.Entry(key)
	if !ok || !entry.IsDamaged() {
		return g.reject(out, a, key, ReasonNotDamaged, "Upgrade is not damaged")
	}
	target := targetLevel
	if fullRepair {
		if !entry.IsInstalled() {
			// FullRepair leaves fully degraded entries alone; a targeted
			// repair to OriginalMax restores them.
			return g.reject(out, a, key, ReasonNotInstalled, "Fully degraded upgrades need a targeted repair")
		}
		target = entry.OriginalMax
	}
	if target <= entry.OwnedMax || target > entry.OriginalMax {
		return g.reject(out, a, key, ReasonInvalidTarget, "Repair target out of range")
	}

	b := g.catalog.BalanceConfig
	cost := (target-entry.OwnedMax)*b.RepairCostPerLevel + entry.DamageCount*b.RepairCostPerDamage
	if !canAfford(a, cost) {
		return g.reject(out, a, key, ReasonInsufficientEnergy, "Insufficient energy")
	}

	var repaired bool
	a.Apply(func(s *game.UpgradeStore, l *game.EnergyLedger) {
		l.Extract(cost, false)
		if fullRepair {
			repaired = s.FullRepair(key)
		} else {
			repaired = s.Repair(key, target)
		}
	})
	if !repaired {
		// Validation above mirrors the store's own checks; reaching here
		// means they diverged.
		g.logger.Error("repair validated but not applied",
			slog.String("artifact", a.ID), slog.String("upgrade", key), slog.Int("target", target))
	}
	out.Charged = cost
	return g.finish(out, a, key, StatusApplied, ReasonNone, "")
}

// begin resolves the requester's artifact and the canonical upgrade ID. A nil
// artifact means out is already a final rejection.
func (g *Gateway) begin(requester, requestID string, kind RequestKind, upgradeID string) (*game.Artifact, string, Outcome) {
	out := Outcome{RequestID: requestID, Kind: kind}

	a, ok := g.locator.Locate(requester)
	if !ok || a == nil {
		out.Status = StatusRejected
		out.Reason = ReasonUnauthorized
		out.Message = "No artifact equipped"
		return nil, "", out
	}
	key := g.catalog.Resolver().Normalize(upgradeID)
	if key == "" {
		return nil, "", g.reject(out, a, "", ReasonUnknownUpgrade, "Unknown upgrade")
	}
	return a, key, out
}

func (g *Gateway) reject(out Outcome, a *game.Artifact, key, reason, msg string) Outcome {
	return g.finish(out, a, key, StatusRejected, reason, msg)
}

func (g *Gateway) finish(out Outcome, a *game.Artifact, key string, status Status, reason, msg string) Outcome {
	out.Status = status
	out.Reason = reason
	out.Message = msg
	if key != "" {
		if _, known := a.Entry(key); known {
			snap := a.EntrySnapshot(key)
			out.Entry = &snap
		}
	}
	out.EnergyReading = readEnergy(a)
	return out
}

// canAfford is the simulated half of a charge.
func canAfford(a *game.Artifact, cost int) bool {
	return cost <= 0 || a.Energy().Extract(cost, true) == cost
}
