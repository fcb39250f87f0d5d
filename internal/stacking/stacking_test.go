package stacking

import (
	"testing"

	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/l1addr"
)

func rewardAddr() l1addr.Address {
	return l1addr.FromPublicKeyHash(l1addr.Mainnet, make([]byte, 20))
}

func TestStateActiveAndUnlock(t *testing.T) {
	s := NewState("addr1", rewardAddr(), 1000, 50, 6, 1, 14700)

	if !s.IsActive(100) {
		t.Error("state should be active before unlock height")
	}
	if s.IsActive(14700) {
		t.Error("state should not be active at unlock height")
	}
	if !s.CanUnlock(14700) {
		t.Error("CanUnlock should be true at unlock height")
	}
	if s.CanUnlock(100) {
		t.Error("CanUnlock should be false before unlock height")
	}
}

func TestParticipatesInCycle(t *testing.T) {
	s := NewState("addr1", rewardAddr(), 1000, 50, 6, 1, 14700)
	if s.ParticipatesInCycle(0) {
		t.Error("cycle 0 is before first_cycle")
	}
	if !s.ParticipatesInCycle(1) {
		t.Error("cycle 1 (first_cycle) should participate")
	}
	if !s.ParticipatesInCycle(6) {
		t.Error("cycle 6 (first_cycle + lock_period - 1) should participate")
	}
	if s.ParticipatesInCycle(7) {
		t.Error("cycle 7 (first_cycle + lock_period) should not participate")
	}
}

func TestValidate(t *testing.T) {
	params := Params{MinStackingAmount: 1000, MaxCycles: 12}

	if err := Validate(1000, 6, params); err != nil {
		t.Errorf("valid stacking rejected: %v", err)
	}
	if err := Validate(999, 6, params); !chainerr.Is(err, chainerr.KindInvalidInput) {
		t.Errorf("below-minimum amount should be InvalidInput, got %v", err)
	}
	if err := Validate(1000, 0, params); !chainerr.Is(err, chainerr.KindInvalidInput) {
		t.Errorf("zero lock period should be InvalidInput, got %v", err)
	}
	if err := Validate(1000, 13, params); !chainerr.Is(err, chainerr.KindInvalidInput) {
		t.Errorf("lock period above max should be InvalidInput, got %v", err)
	}
}

func TestDurationMultiplierBands(t *testing.T) {
	cases := []struct {
		period uint8
		want   uint64
	}{
		{1, 100}, {2, 100},
		{3, 110}, {6, 110},
		{7, 125}, {12, 125},
		{13, 150}, {255, 150},
	}
	for _, c := range cases {
		if got := durationMultiplier(c.period); got != c.want {
			t.Errorf("durationMultiplier(%d) = %d, want %d", c.period, got, c.want)
		}
	}
}

func TestStackingFeeIsTwoPercent(t *testing.T) {
	if got := stackingFee(5000); got != 100 {
		t.Errorf("stackingFee(5000) = %d, want 100 (2%%)", got)
	}
}
