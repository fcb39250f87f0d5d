package stacking

import (
	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/l1addr"
)

// Payout is a real L1 transfer request produced by sealing a reward
// cycle — surfaced to C10's output, not credited on the L2 ledger.
type Payout struct {
	Stacker    string
	RewardAddr l1addr.Address
	Amount     uint64
}

// RewardCycle accumulates lockers and burn totals for one reward cycle
// and seals exactly once, per §4.8.
type RewardCycle struct {
	CycleNumber  uint64
	TotalStacked uint64
	TotalBurn    uint64
	RewardPool   uint64
	Stackers     []*State
	Sealed       bool
}

// NewRewardCycle starts bookkeeping for cycle n.
func NewRewardCycle(n uint64) *RewardCycle {
	return &RewardCycle{CycleNumber: n}
}

// AddStacker enrolls a locker's state in this cycle's pool accounting.
func (c *RewardCycle) AddStacker(s *State) {
	c.TotalStacked += s.StackedAmount
	c.Stackers = append(c.Stackers, s)
}

// AddBurn records L1 burn observed for this cycle. reward_pool_n is
// computed at Seal time from the accumulated total, not incrementally,
// since conversion_factor is supplied only at seal.
func (c *RewardCycle) AddBurn(amount uint64) {
	c.TotalBurn += amount
}

// Seal computes reward_pool_n = conversion_factor * total_burn_n, splits
// it proportionally across enrolled stackers (applying the duration bonus
// and stacking fee), and returns the resulting L1 payouts. Re-sealing an
// already-sealed cycle is forbidden.
func (c *RewardCycle) Seal(conversionFactor uint64) ([]Payout, error) {
	if c.Sealed {
		return nil, chainerr.New(chainerr.KindInvalidState, "reward cycle already sealed")
	}
	c.Sealed = true
	c.RewardPool = conversionFactor * c.TotalBurn

	if c.TotalStacked == 0 {
		return nil, nil
	}

	payouts := make([]Payout, 0, len(c.Stackers))
	for _, s := range c.Stackers {
		share := c.RewardPool * s.StackedAmount / c.TotalStacked
		bonused := applyDurationBonus(s.LockPeriod, share)
		fee := stackingFee(bonused)
		final := bonused - fee

		s.TotalRewards += final
		s.LastRewardCycle = c.CycleNumber

		payouts = append(payouts, Payout{
			Stacker:    s.Stacker,
			RewardAddr: s.RewardAddr,
			Amount:     final,
		})
	}
	return payouts, nil
}
