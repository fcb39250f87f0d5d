// Package store implements the external store interface (§6): an
// abstracted transactional KV layer, and the domain records the core
// persists through it — snapshots, balances, stacking state, and sealed
// reward cycles.
package store

import (
	"github.com/btczs/btczs-l2/internal/anchor"
	"github.com/btczs/btczs-l2/internal/ledger"
	"github.com/btczs/btczs-l2/internal/stacking"
)

// Snapshot is the persisted record of one processed L1 block: its burn
// accounting, the sortition outcome, and the keyed hashes chaining it to
// its parent, per the Snapshot entity of spec.md §3.
type Snapshot struct {
	Height           uint64
	BurnHeaderHash   [32]byte
	ParentHeaderHash [32]byte

	Sortition        bool
	WinningCandidate int     // index into the round's LeaderCommit ops, -1 if no sortition
	WinningTxid      [32]byte

	BlockBurn     uint64 // burn attributed to this block's ops only
	TotalBurn     uint64 // saturating cumulative sum across all snapshots
	NumSortitions uint64 // cumulative count of snapshots with Sortition = true

	SortitionHash [32]byte
	OpsHash       [32]byte
	ConsensusHash [32]byte

	CycleNumber uint64
	IsPrepare   bool

	anchorSnapshot anchor.Snapshot
}

// AnchorSnapshot projects a Snapshot into the shape anchor.Validate
// consumes.
func (s Snapshot) AnchorSnapshot() anchor.Snapshot {
	return s.anchorSnapshot
}

// WithAnchorSnapshot attaches the LeaderCommit set this snapshot's
// sortition was drawn from, for later anchor validation.
func (s Snapshot) WithAnchorSnapshot(a anchor.Snapshot) Snapshot {
	s.anchorSnapshot = a
	return s
}

// Record is the persisted state for one L2 account: its token balance
// and, if it has ever stacked, its stacking position.
type Record struct {
	Address  string
	Balance  ledger.Balance
	Stacking *stacking.State
}

// RewardCycleRecord is the persisted, possibly-sealed state of one
// reward cycle.
type RewardCycleRecord struct {
	Cycle   stacking.RewardCycle
	Payouts []stacking.Payout
}

// Tip is the chain-tip pointer persisted alongside snapshots: the
// highest indexed height and the canonical burn header hash at that
// height, so a restart can resume without rescanning from genesis.
type Tip struct {
	Height         uint64
	BurnHeaderHash [32]byte
}
