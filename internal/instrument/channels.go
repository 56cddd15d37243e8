package instrument

import "fmt"

// ChannelState is a fixed-size table of per-channel tip-presence flags.
//
// It is owned by exactly one execution engine; the engine serialises all
// access, so no locking is done here. CheckPickup/CheckDrop validate the tip
// state machine, ApplyPickup/ApplyDrop flip it.
type ChannelState struct {
	tips []bool
}

// NewChannelState creates a channel table with n channels, all without tips.
func NewChannelState(n int) *ChannelState {
	return &ChannelState{tips: make([]bool, n)}
}

// NumChannels returns the number of channels.
func (s *ChannelState) NumChannels() int {
	return len(s.tips)
}

// TipPresent reports whether the channel carries a tip.
// Out-of-range channels report false.
func (s *ChannelState) TipPresent(channel int) bool {
	if channel < 0 || channel >= len(s.tips) {
		return false
	}
	return s.tips[channel]
}

// Tips returns a copy of all tip-presence flags, indexed by channel.
func (s *ChannelState) Tips() []bool {
	cpy := make([]bool, len(s.tips))
	copy(cpy, s.tips)
	return cpy
}

// PreloadTip marks a channel as already carrying a tip. This is initial
// configuration (an instrument that starts a script mid-protocol), not a
// command application.
func (s *ChannelState) PreloadTip(channel int) error {
	if channel < 0 || channel >= len(s.tips) {
		return fmt.Errorf("%w: preload channel %d out of range", ErrInvalidCommand, channel)
	}
	s.tips[channel] = true
	return nil
}

// CheckPickup validates that the channel can pick up a tip.
func (s *ChannelState) CheckPickup(channel int) error {
	if s.tips[channel] {
		return fmt.Errorf("%w: channel %d", ErrTipAlreadyPresent, channel)
	}
	return nil
}

// CheckDrop validates that the channel can drop a tip.
func (s *ChannelState) CheckDrop(channel int) error {
	if !s.tips[channel] {
		return fmt.Errorf("%w: channel %d", ErrNoTipOnChannel, channel)
	}
	return nil
}

// CheckTip validates that the channel carries a tip, as required by
// aspirate, dispense, and mix.
func (s *ChannelState) CheckTip(channel int) error {
	if !s.tips[channel] {
		return fmt.Errorf("%w: channel %d", ErrNoTipOnChannel, channel)
	}
	return nil
}

// ApplyPickup marks the channel as carrying a tip.
// Engine-only: called after the physical action is confirmed.
func (s *ChannelState) ApplyPickup(channel int) {
	s.tips[channel] = true
}

// ApplyDrop marks the channel as empty.
// Engine-only: called after the physical action is confirmed.
func (s *ChannelState) ApplyDrop(channel int) {
	s.tips[channel] = false
}
