package issuance

import "testing"

func testSchedule() Schedule {
	return Schedule{
		GenesisReward:   12_500_000_000,
		HalvingInterval: 840_000,
		TotalSupply:     21_000_000_000_000_000,
		MinBurn:         1000,
	}
}

func TestBlockRewardHalving(t *testing.T) {
	s := testSchedule()

	tests := []struct {
		height uint64
		want   uint64
	}{
		{0, 12_500_000_000},
		{839_999, 12_500_000_000},
		{840_000, 6_250_000_000},
		{1_680_000, 3_125_000_000},
	}

	for _, tt := range tests {
		if got := s.BlockReward(tt.height); got != tt.want {
			t.Errorf("BlockReward(%d) = %d, want %d", tt.height, got, tt.want)
		}
	}
}

func TestBlockRewardMonotonic(t *testing.T) {
	s := testSchedule()
	r1 := s.BlockReward(100)
	r2 := s.BlockReward(1_000_000)
	if r1 < r2 {
		t.Errorf("reward should be non-increasing with height: BlockReward(100)=%d < BlockReward(1_000_000)=%d", r1, r2)
	}
}

func TestBlockRewardEventuallyZero(t *testing.T) {
	s := testSchedule()
	// 40 halvings of any positive integer reward reaches zero.
	if got := s.BlockReward(s.HalvingInterval * 40); got != 0 {
		t.Errorf("BlockReward after 40 halvings = %d, want 0", got)
	}
}

func TestMiningRewardBurnBonus(t *testing.T) {
	s := testSchedule()
	base := s.BlockReward(0)

	noBonus := s.MiningReward(0, s.MinBurn)
	if noBonus != base {
		t.Errorf("MiningReward at exactly MinBurn = %d, want base %d", noBonus, base)
	}

	withBonus := s.MiningReward(0, s.MinBurn+100)
	wantBonus := base + 100*miningBurnBonusFactor
	if withBonus != wantBonus {
		t.Errorf("MiningReward with excess burn = %d, want %d", withBonus, wantBonus)
	}
}

func TestClampToSupply(t *testing.T) {
	s := testSchedule()

	if got := s.ClampToSupply(1000, s.TotalSupply); got != 0 {
		t.Errorf("ClampToSupply at cap = %d, want 0", got)
	}

	if got := s.ClampToSupply(1000, s.TotalSupply-500); got != 500 {
		t.Errorf("ClampToSupply near cap = %d, want 500", got)
	}

	if got := s.ClampToSupply(1000, 0); got != 1000 {
		t.Errorf("ClampToSupply far from cap = %d, want 1000", got)
	}
}
