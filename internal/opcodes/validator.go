package opcodes

import "github.com/btczs/btczs-l2/internal/chainerr"

// Params holds the network-tunable bounds operation validation checks
// against (spec.md §4.5), sourced from config.Config at startup.
type Params struct {
	MinBurn       uint64
	MaxBurn       uint64
	MinStack      uint64
	MaxCycles     uint8
	ActiveNetwork byte // l1addr.Network, kept untyped here to avoid an import cycle with config
}

// HistoryChecker answers whether a (ptr, index) pair committed by a
// LeaderCommit references a block already present in the indexed burnchain
// history — i.e. not a forward reference. The caller (C6/engine) supplies
// this from its own indexed state; this package has no storage access.
type HistoryChecker interface {
	IsCommitted(ptr uint64, index uint32) bool
}

// PrepareChecker answers whether height h falls within a reward cycle's
// prepare phase (§4.7), where new StackLock ops are refused.
type PrepareChecker interface {
	IsPreparePhase(height uint64) bool
}

// ValidateLeaderCommit applies the per-op rules of spec.md §4.5: burn_fee
// floor, well-formed commit outputs, and forward-reference rejection for
// the key/parent pointers.
func ValidateLeaderCommit(op LeaderCommit, p Params, history HistoryChecker) error {
	if op.BurnFee < p.MinBurn {
		return chainerr.New(chainerr.KindInvalidInput, "leader commit burn_fee below minimum")
	}
	if len(op.CommitOutputs) == 0 {
		return chainerr.New(chainerr.KindInvalidInput, "leader commit has no reward outputs")
	}
	for _, out := range op.CommitOutputs {
		if !out.IsRewardEligible() {
			return chainerr.New(chainerr.KindInvalidInput, "leader commit output is not reward-eligible")
		}
	}
	if history != nil {
		if !history.IsCommitted(op.KeyPtr, op.KeyIndex) {
			return chainerr.New(chainerr.KindInvalidInput, "leader commit key_ptr is a forward reference")
		}
		if !history.IsCommitted(op.ParentPtr, op.ParentIndex) {
			return chainerr.New(chainerr.KindInvalidInput, "leader commit parent_ptr is a forward reference")
		}
	}
	return nil
}

// ValidateStackLock applies the per-op rules of spec.md §4.5: minimum
// stacked amount, cycle-count bound, network match, and prepare-phase
// exclusion.
func ValidateStackLock(op StackLock, p Params, prepare PrepareChecker) error {
	if op.StackedAmount < p.MinStack {
		return chainerr.New(chainerr.KindInvalidInput, "stack lock amount below minimum")
	}
	if op.NumCycles < 1 || op.NumCycles > p.MaxCycles {
		return chainerr.New(chainerr.KindInvalidInput, "stack lock num_cycles out of range")
	}
	if byte(op.RewardAddr.Network) != p.ActiveNetwork {
		return chainerr.New(chainerr.KindInvalidInput, "stack lock reward address network mismatch")
	}
	if prepare != nil && prepare.IsPreparePhase(op.BlockHeight) {
		return chainerr.New(chainerr.KindInvalidInput, "stack lock submitted during prepare phase")
	}
	return nil
}

// ValidateBurn applies the per-op rules of spec.md §4.5: amount range,
// well-formed reward address, network match.
func ValidateBurn(op Burn, p Params) error {
	if op.Amount < p.MinBurn || op.Amount > p.MaxBurn {
		return chainerr.New(chainerr.KindInvalidInput, "burn amount out of range")
	}
	if !op.RewardAddr.IsRewardEligible() {
		return chainerr.New(chainerr.KindInvalidInput, "burn reward address is not reward-eligible")
	}
	if byte(op.RewardAddr.Network) != p.ActiveNetwork {
		return chainerr.New(chainerr.KindInvalidInput, "burn reward address network mismatch")
	}
	return nil
}

// Validate dispatches to the per-kind validator for op.
func Validate(op Operation, p Params, history HistoryChecker, prepare PrepareChecker) error {
	switch v := op.(type) {
	case LeaderCommit:
		return ValidateLeaderCommit(v, p, history)
	case StackLock:
		return ValidateStackLock(v, p, prepare)
	case Burn:
		return ValidateBurn(v, p)
	default:
		return chainerr.New(chainerr.KindInvalidInput, "unrecognized operation kind")
	}
}
