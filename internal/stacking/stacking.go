// Package stacking implements the Stacking Ledger (C8): lock/unlock
// lifecycle for StackLock operations, per-cycle reward-pool accounting, and
// the duration-bonus/fee schedule applied at cycle seal, per spec.md §4.8.
package stacking

import (
	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/l1addr"
)

// State is one locker's position: amount locked, the cycles it
// participates in, and the L1 address its rewards are paid out to.
type State struct {
	Stacker         string // L2 address key
	RewardAddr      l1addr.Address
	StackedAmount   uint64
	FirstCycle      uint64
	LockPeriod      uint8
	UnlockHeight    uint64
	TotalRewards    uint64
	LastRewardCycle uint64
	Retired         bool
}

// NewState builds a locker's state from a validated StackLock accepted at
// acceptedHeight. first_cycle and unlock_height follow the calendar
// formulas in §4.7.
func NewState(stacker string, rewardAddr l1addr.Address, amount uint64, acceptedHeight uint64, lockPeriod uint8, firstCycle, unlockHeight uint64) *State {
	return &State{
		Stacker:       stacker,
		RewardAddr:    rewardAddr,
		StackedAmount: amount,
		FirstCycle:    firstCycle,
		LockPeriod:    lockPeriod,
		UnlockHeight:  unlockHeight,
	}
}

// IsActive reports whether the lock is still in force at currentHeight.
func (s *State) IsActive(currentHeight uint64) bool {
	return currentHeight < s.UnlockHeight
}

// CanUnlock reports whether currentHeight has reached the lock's
// unlock_height.
func (s *State) CanUnlock(currentHeight uint64) bool {
	return currentHeight >= s.UnlockHeight
}

// Retire marks a lock's position as retired once it has been unlocked.
// Retiring twice is a no-op.
func (s *State) Retire() {
	s.Retired = true
}

// ParticipatesInCycle reports whether cycle n falls within
// [first_cycle, first_cycle + lock_period).
func (s *State) ParticipatesInCycle(n uint64) bool {
	return n >= s.FirstCycle && n < s.FirstCycle+uint64(s.LockPeriod)
}

// Params bounds a stacking operation's amount and duration, sourced from
// config.StackingConfig.
type Params struct {
	MinStackingAmount uint64
	MaxCycles         uint8
}

// Validate checks a proposed stack-lock amount and duration against the
// network's stacking parameters. Prepare-phase and network-match checks
// happen at the operation-validator layer (internal/opcodes), which has
// direct access to the op and the active burnchain height.
func Validate(amount uint64, lockPeriod uint8, params Params) error {
	if amount < params.MinStackingAmount {
		return chainerr.New(chainerr.KindInvalidInput, "stacked amount below minimum stacking amount")
	}
	if lockPeriod == 0 || lockPeriod > params.MaxCycles {
		return chainerr.New(chainerr.KindInvalidInput, "lock period outside allowed cycle range")
	}
	return nil
}

// durationMultiplier returns the numerator of the duration-bonus
// multiplier (divide by 100): 1.00x/1.10x/1.25x/1.50x per §4.8.
func durationMultiplier(lockPeriod uint8) uint64 {
	switch {
	case lockPeriod <= 2:
		return 100
	case lockPeriod <= 6:
		return 110
	case lockPeriod <= 12:
		return 125
	default:
		return 150
	}
}

// applyDurationBonus scales a base share by the duration multiplier for
// lockPeriod.
func applyDurationBonus(lockPeriod uint8, baseShare uint64) uint64 {
	return baseShare * durationMultiplier(lockPeriod) / 100
}

// stackingFee is the 2% fee on a bonused share, deducted before payout.
func stackingFee(bonusedShare uint64) uint64 {
	return bonusedShare / 50
}
