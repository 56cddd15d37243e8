package instrument

import "fmt"

// Kind identifies the type of a pipetting command.
type Kind string

// Command kinds.
const (
	KindPickupTip      Kind = "pickup_tip"
	KindDropTip        Kind = "drop_tip"
	KindAspirate       Kind = "aspirate"
	KindDispense       Kind = "dispense"
	KindWash           Kind = "wash"
	KindBreak          Kind = "break"
	KindMix            Kind = "mix"
	KindPickupResource Kind = "pickup_resource"
	KindMoveResource   Kind = "move_resource"
	KindDropResource   Kind = "drop_resource"
)

// AllKinds returns all valid command kinds.
func AllKinds() []Kind {
	return []Kind{
		KindPickupTip, KindDropTip, KindAspirate, KindDispense,
		KindWash, KindBreak, KindMix,
		KindPickupResource, KindMoveResource, KindDropResource,
	}
}

// Advisory reports whether the kind is an advisory marker (wash, break)
// rather than an engineering action. Advisory commands carry no state
// preconditions and apply no state mutation.
func (k Kind) Advisory() bool {
	return k == KindWash || k == KindBreak
}

// WellRef identifies a well as an opaque (plate, well) pair.
// The core does not interpret either string; geometry lives elsewhere.
type WellRef struct {
	Plate string `json:"plate"`
	Well  string `json:"well"`
}

// String returns the canonical "plate:well" form used as a ledger key.
func (w WellRef) String() string {
	return w.Plate + ":" + w.Well
}

// IsZero reports whether the reference is empty.
func (w WellRef) IsZero() bool {
	return w.Plate == "" && w.Well == ""
}

// Position is an opaque deck position handed through to the action port.
// The core never resolves coordinates; it only forwards them.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LiquidParams holds the optional per-transfer liquid handling parameters
// that vendor worklists pad records with. All fields have zero-value
// defaults: empty class means the instrument default, zero flow rate means
// the instrument default, blow-out defaults to off.
type LiquidParams struct {
	Class    string  `json:"class,omitempty"`
	FlowRate float64 `json:"flow_rate,omitempty"`
	BlowOut  bool    `json:"blow_out,omitempty"`
}

// Command is a single validated-and-dispatched unit of work. Commands are
// immutable once built; only the fields relevant to the Kind are set.
type Command struct {
	Kind    Kind `json:"kind"`
	Channel int  `json:"channel"`

	// Tip operations.
	Position Position `json:"position,omitempty"`

	// Liquid operations.
	Well   WellRef      `json:"well,omitempty"`
	Volume float64      `json:"volume,omitempty"`
	Cycles int          `json:"cycles,omitempty"`
	Liquid LiquidParams `json:"liquid,omitempty"`

	// Resource operations.
	Resource string   `json:"resource,omitempty"`
	Target   Position `json:"target,omitempty"`
}

// PickupTip builds a tip pickup command for the given channel and position.
func PickupTip(channel int, pos Position) Command {
	return Command{Kind: KindPickupTip, Channel: channel, Position: pos}
}

// DropTip builds a tip drop command for the given channel and position.
func DropTip(channel int, pos Position) Command {
	return Command{Kind: KindDropTip, Channel: channel, Position: pos}
}

// Aspirate builds an aspirate command.
func Aspirate(channel int, well WellRef, volume float64, liquid LiquidParams) Command {
	return Command{Kind: KindAspirate, Channel: channel, Well: well, Volume: volume, Liquid: liquid}
}

// Dispense builds a dispense command.
func Dispense(channel int, well WellRef, volume float64, liquid LiquidParams) Command {
	return Command{Kind: KindDispense, Channel: channel, Well: well, Volume: volume, Liquid: liquid}
}

// Wash builds a tip wash command.
func Wash() Command {
	return Command{Kind: KindWash}
}

// Break builds a break (pause marker) command.
func Break() Command {
	return Command{Kind: KindBreak}
}

// Mix builds a mix command: cycles aspirate/dispense pairs of volume in the
// well. Mix applies no net volume change to the ledger.
func Mix(channel int, well WellRef, cycles int, volume float64) Command {
	return Command{Kind: KindMix, Channel: channel, Well: well, Cycles: cycles, Volume: volume}
}

// PickupResource builds a resource (labware) pickup command.
func PickupResource(resource string) Command {
	return Command{Kind: KindPickupResource, Resource: resource}
}

// MoveResource builds a command moving the currently held resource.
func MoveResource(resource string, target Position) Command {
	return Command{Kind: KindMoveResource, Resource: resource, Target: target}
}

// DropResource builds a command dropping the currently held resource.
func DropResource(resource string) Command {
	return Command{Kind: KindDropResource, Resource: resource}
}

// Validate checks the command's structural integrity: known kind, channel in
// range for channel-bearing kinds, positive volumes and cycle counts, and a
// well or resource reference where the kind requires one. It does not check
// instrument state; that is the engine's precondition step.
func (c Command) Validate(numChannels int) error {
	switch c.Kind {
	case KindPickupTip, KindDropTip:
		return c.validateChannel(numChannels)

	case KindAspirate, KindDispense:
		if err := c.validateChannel(numChannels); err != nil {
			return err
		}
		if c.Well.IsZero() {
			return fmt.Errorf("%w: %s without well reference", ErrInvalidCommand, c.Kind)
		}
		if c.Volume <= 0 {
			return fmt.Errorf("%w: %s volume %v must be positive", ErrInvalidCommand, c.Kind, c.Volume)
		}
		return nil

	case KindMix:
		if err := c.validateChannel(numChannels); err != nil {
			return err
		}
		if c.Well.IsZero() {
			return fmt.Errorf("%w: mix without well reference", ErrInvalidCommand)
		}
		if c.Cycles <= 0 {
			return fmt.Errorf("%w: mix cycles %d must be positive", ErrInvalidCommand, c.Cycles)
		}
		if c.Volume <= 0 {
			return fmt.Errorf("%w: mix volume %v must be positive", ErrInvalidCommand, c.Volume)
		}
		return nil

	case KindWash, KindBreak:
		return nil

	case KindPickupResource, KindMoveResource, KindDropResource:
		if c.Resource == "" {
			return fmt.Errorf("%w: %s without resource id", ErrInvalidCommand, c.Kind)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCommand, string(c.Kind))
	}
}

// validateChannel checks the channel index is within [0, numChannels).
func (c Command) validateChannel(numChannels int) error {
	if c.Channel < 0 || c.Channel >= numChannels {
		return fmt.Errorf("%w: channel %d out of range [0,%d)", ErrInvalidCommand, c.Channel, numChannels)
	}
	return nil
}

// String renders a short human-readable form for logs.
func (c Command) String() string {
	switch c.Kind {
	case KindAspirate, KindDispense:
		return fmt.Sprintf("%s ch%d %s %.1fuL", c.Kind, c.Channel, c.Well, c.Volume)
	case KindMix:
		return fmt.Sprintf("%s ch%d %s x%d %.1fuL", c.Kind, c.Channel, c.Well, c.Cycles, c.Volume)
	case KindPickupTip, KindDropTip:
		return fmt.Sprintf("%s ch%d", c.Kind, c.Channel)
	case KindPickupResource, KindMoveResource, KindDropResource:
		return fmt.Sprintf("%s %s", c.Kind, c.Resource)
	default:
		return string(c.Kind)
	}
}
