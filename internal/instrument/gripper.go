package instrument

import "fmt"

// GripperState tracks the at-most-one resource currently held by the
// instrument's gripper arm.
type GripperState struct {
	held string // empty when nothing is held
}

// NewGripperState creates an empty gripper.
func NewGripperState() *GripperState {
	return &GripperState{}
}

// Held returns the held resource id and whether anything is held.
func (g *GripperState) Held() (string, bool) {
	return g.held, g.held != ""
}

// CheckPickup validates that the gripper is free.
func (g *GripperState) CheckPickup(resource string) error {
	if g.held != "" {
		return fmt.Errorf("%w: holding %q, cannot pick up %q",
			ErrResourceAlreadyHeld, g.held, resource)
	}
	return nil
}

// CheckHolding validates that the gripper holds exactly the named resource,
// as required by move and drop.
func (g *GripperState) CheckHolding(resource string) error {
	if g.held != resource {
		if g.held == "" {
			return fmt.Errorf("%w: gripper empty, expected %q", ErrNoResourceHeld, resource)
		}
		return fmt.Errorf("%w: holding %q, expected %q", ErrNoResourceHeld, g.held, resource)
	}
	return nil
}

// ApplyPickup records the resource as held.
// Engine-only: called after the physical action is confirmed.
func (g *GripperState) ApplyPickup(resource string) {
	g.held = resource
}

// ApplyDrop releases the held resource.
// Engine-only: called after the physical action is confirmed.
func (g *GripperState) ApplyDrop() {
	g.held = ""
}
