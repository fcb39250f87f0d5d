// Package anchor implements the Block-L1 Anchor Validator (C10): it ties a
// candidate L2 block header to the winning LeaderCommit surfaced by the
// burnchain snapshot for that height, and rejects inconsistent or dust-only
// anchors before the block is accepted.
package anchor

import (
	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/opcodes"
)

// Snapshot is the subset of a sealed burnchain snapshot (C6's output) the
// anchor check needs: whether a sortition occurred this round, the set of
// LeaderCommit ops it considered, and the total burn attributed to it.
type Snapshot struct {
	Sortition    bool
	LeaderCommits []opcodes.LeaderCommit
	TotalBurn    uint64
}

// Header is the subset of an L2 block header the anchor check verifies
// against its snapshot.
type Header struct {
	Hash      [32]byte
	BurnTotal uint64
}

// Validate implements spec.md §4.10: when the snapshot records a sortition,
// exactly one LeaderCommit must name this header's hash (zero surfaces
// NoLeaderCommit, two or more AmbiguousCommit); the header's claimed burn
// total must equal the snapshot's; and the snapshot's total burn must clear
// minBurn, rejecting a dust-only anchor.
func Validate(header Header, snap Snapshot, minBurn uint64) error {
	if snap.Sortition {
		matches := 0
		for _, lc := range snap.LeaderCommits {
			if lc.BlockHeaderHash == header.Hash {
				matches++
			}
		}
		switch {
		case matches == 0:
			return chainerr.New(chainerr.KindNoLeaderCommit, "no LeaderCommit names this block header")
		case matches > 1:
			return chainerr.New(chainerr.KindAmbiguousCommit, "multiple LeaderCommit ops name this block header")
		}
	}

	if header.BurnTotal != snap.TotalBurn {
		return chainerr.New(chainerr.KindBurnMismatch, "block burn total does not match snapshot total burn")
	}

	if snap.TotalBurn < minBurn {
		return chainerr.New(chainerr.KindBurnMismatch, "snapshot total burn is below the minimum anchor burn")
	}

	return nil
}
