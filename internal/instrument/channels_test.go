package instrument

import (
	"errors"
	"testing"
)

func TestChannelState_TipToggle(t *testing.T) {
	s := NewChannelState(8)

	if s.TipPresent(0) {
		t.Fatal("new channel should not carry a tip")
	}
	if err := s.CheckPickup(0); err != nil {
		t.Fatalf("CheckPickup on empty channel: %v", err)
	}
	s.ApplyPickup(0)

	if !s.TipPresent(0) {
		t.Fatal("tip should be present after pickup")
	}

	// Second pickup without a drop must be rejected.
	if err := s.CheckPickup(0); !errors.Is(err, ErrTipAlreadyPresent) {
		t.Fatalf("CheckPickup with tip present = %v, want ErrTipAlreadyPresent", err)
	}

	if err := s.CheckDrop(0); err != nil {
		t.Fatalf("CheckDrop with tip present: %v", err)
	}
	s.ApplyDrop(0)

	if s.TipPresent(0) {
		t.Fatal("tip should be absent after drop")
	}
	if err := s.CheckDrop(0); !errors.Is(err, ErrNoTipOnChannel) {
		t.Fatalf("CheckDrop on empty channel = %v, want ErrNoTipOnChannel", err)
	}
}

func TestChannelState_CheckTip(t *testing.T) {
	s := NewChannelState(2)

	if err := s.CheckTip(1); !errors.Is(err, ErrNoTipOnChannel) {
		t.Fatalf("CheckTip on empty channel = %v, want ErrNoTipOnChannel", err)
	}

	s.ApplyPickup(1)
	if err := s.CheckTip(1); err != nil {
		t.Fatalf("CheckTip with tip present: %v", err)
	}

	// Channel 0 is unaffected by channel 1's tip.
	if err := s.CheckTip(0); !errors.Is(err, ErrNoTipOnChannel) {
		t.Fatalf("CheckTip(0) = %v, want ErrNoTipOnChannel", err)
	}
}

func TestChannelState_PreloadTip(t *testing.T) {
	s := NewChannelState(4)

	if err := s.PreloadTip(2); err != nil {
		t.Fatalf("PreloadTip: %v", err)
	}
	if !s.TipPresent(2) {
		t.Fatal("preloaded tip not present")
	}

	if err := s.PreloadTip(4); err == nil {
		t.Fatal("PreloadTip out of range should fail")
	}
	if err := s.PreloadTip(-1); err == nil {
		t.Fatal("PreloadTip negative channel should fail")
	}
}

func TestChannelState_TipsReturnsCopy(t *testing.T) {
	s := NewChannelState(3)
	s.ApplyPickup(1)

	tips := s.Tips()
	tips[0] = true // mutate the copy

	if s.TipPresent(0) {
		t.Fatal("mutating Tips() copy must not affect state")
	}
	if got := s.Tips(); !got[1] || got[0] || got[2] {
		t.Fatalf("Tips() = %v, want [false true false]", got)
	}
}
