/*
Package game
File: energy.go
Description:
    The bounded energy reservoir attached to an artifact.

    Capacity = BaseCapacity + capacityLevel * CapacityPerLevel, where
    capacityLevel comes from the artifact's designated capacity upgrade.
    Reading that level can, through level modifiers, ask for the capacity
    again; a nested call gets BaseCapacity instead of recursing.
*/

package game

// EnergyLedger holds stored energy in [0, Capacity()].
type EnergyLedger struct {
	stored      int
	base        int
	perLevel    int
	maxTransfer int

	// capacityLevel reports the capacity upgrade's contributing level.
	capacityLevel func() int
	inCapacity    bool
}

// NewEnergyLedger creates an empty ledger. capacityLevel may be nil, in which
// case capacity is always the base.
func NewEnergyLedger(b Balance, capacityLevel func() int) *EnergyLedger {
	return &EnergyLedger{
		base:          b.BaseCapacity,
		perLevel:      b.CapacityPerLevel,
		maxTransfer:   b.MaxTransferRate,
		capacityLevel: capacityLevel,
	}
}

// Capacity returns the current maximum stored energy.
func (l *EnergyLedger) Capacity() int {
	if l.inCapacity {
		return l.base
	}
	l.inCapacity = true
	defer func() { l.inCapacity = false }()

	level := 0
	if l.capacityLevel != nil {
		level = max(l.capacityLevel(), 0)
	}
	return l.base + level*l.perLevel
}

// Stored returns the current energy.
func (l *EnergyLedger) Stored() int { return l.stored }

// MaxTransfer returns the per-call transfer cap.
func (l *EnergyLedger) MaxTransfer() int { return l.maxTransfer }

// SetStored overwrites the stored amount, clamped to [0, Capacity()].
// Only loading paths use it; gameplay goes through Receive/Extract.
func (l *EnergyLedger) SetStored(amount int) {
	l.stored = min(max(amount, 0), l.Capacity())
}

// Receive adds up to amount energy, bounded by free space and the transfer
// cap, and returns what was (or would be) accepted.
func (l *EnergyLedger) Receive(amount int, simulate bool) int {
	if amount <= 0 {
		return 0
	}
	space := max(l.Capacity()-l.stored, 0)
	accepted := min(space, amount, l.maxTransfer)
	if !simulate {
		l.stored += accepted
	}
	return accepted
}

// Extract removes up to amount energy, bounded by what is stored and the
// transfer cap, and returns what was (or would be) removed.
func (l *EnergyLedger) Extract(amount int, simulate bool) int {
	if amount <= 0 {
		return 0
	}
	taken := min(l.stored, amount, l.maxTransfer)
	if !simulate {
		l.stored -= taken
	}
	return taken
}

// ClampToCapacity drops any energy above the current capacity. Called after
// upgrade mutations that may have shrunk the capacity upgrade.
func (l *EnergyLedger) ClampToCapacity() int {
	excess := l.stored - l.Capacity()
	if excess <= 0 {
		return 0
	}
	l.stored -= excess
	return excess
}
