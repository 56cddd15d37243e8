package instrument

import "fmt"

// LiquidLedger tracks the current volume of every referenced well.
//
// It is a conservation ledger, not a fluid simulation: volumes are plain
// float64 microlitres, wells are created lazily at volume 0 on first
// reference, and the only two mutators are ApplyAspirate and ApplyDispense,
// called by the engine after a confirmed physical action.
//
// A well may optionally carry a capacity. Capacities are opaque to the
// ledger's default behaviour; CheckDispense only rejects overflow when the
// caller asks for enforcement.
type LiquidLedger struct {
	volumes    map[WellRef]float64
	capacities map[WellRef]float64
}

// NewLiquidLedger creates an empty ledger.
func NewLiquidLedger() *LiquidLedger {
	return &LiquidLedger{
		volumes:    make(map[WellRef]float64),
		capacities: make(map[WellRef]float64),
	}
}

// Seed sets a well's starting volume. Used for initial configuration;
// negative volumes are rejected.
func (l *LiquidLedger) Seed(well WellRef, volume float64) error {
	if volume < 0 {
		return fmt.Errorf("%w: seed volume %v for %s", ErrInvalidCommand, volume, well)
	}
	l.volumes[well] = volume
	return nil
}

// SetCapacity records a well's capacity for optional overflow checking.
func (l *LiquidLedger) SetCapacity(well WellRef, capacity float64) {
	l.capacities[well] = capacity
}

// Volume returns the current volume of a well. Unreferenced wells hold 0.
func (l *LiquidLedger) Volume(well WellRef) float64 {
	return l.volumes[well]
}

// Volumes returns a copy of all known well volumes keyed by "plate:well".
func (l *LiquidLedger) Volumes() map[string]float64 {
	cpy := make(map[string]float64, len(l.volumes))
	for well, v := range l.volumes {
		cpy[well.String()] = v
	}
	return cpy
}

// CheckAspirate validates that the well holds at least volume.
func (l *LiquidLedger) CheckAspirate(well WellRef, volume float64) error {
	if current := l.volumes[well]; current < volume {
		return fmt.Errorf("%w: %s holds %.2fuL, need %.2fuL",
			ErrInsufficientVolume, well, current, volume)
	}
	return nil
}

// CheckDispense validates a dispense. Overflow is only rejected when
// enforceCapacity is set and the well has a configured capacity; otherwise
// dispense has no upper bound.
func (l *LiquidLedger) CheckDispense(well WellRef, volume float64, enforceCapacity bool) error {
	if !enforceCapacity {
		return nil
	}
	capacity, ok := l.capacities[well]
	if !ok {
		return nil
	}
	if l.volumes[well]+volume > capacity {
		return fmt.Errorf("%w: %s at %.2fuL + %.2fuL exceeds %.2fuL",
			ErrWellOverflow, well, l.volumes[well], volume, capacity)
	}
	return nil
}

// ApplyAspirate removes volume from the well.
// Engine-only: called after the physical action is confirmed, and only
// after CheckAspirate has passed for the same command.
func (l *LiquidLedger) ApplyAspirate(well WellRef, volume float64) {
	l.volumes[well] -= volume
}

// ApplyDispense adds volume to the well, creating it at 0 if unreferenced.
// Engine-only: called after the physical action is confirmed.
func (l *LiquidLedger) ApplyDispense(well WellRef, volume float64) {
	l.volumes[well] += volume
}
