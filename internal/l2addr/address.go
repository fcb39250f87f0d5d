// Package l2addr implements the L2 reward-address space: the type
// commit_outputs and reward payouts resolve into, kept distinct from
// internal/l1addr's L1 Base58Check address codec per spec.md §3. An
// l1addr.Address identifies an account on the burnchain; a
// l2addr.RewardAddress identifies an account on this ledger, and the two
// are never interchangeable.
package l2addr

import (
	"encoding/hex"
	"fmt"
)

// Mode tags how a RewardAddress's payload resolves to an L2 account.
type Mode byte

const (
	// ModeL2PublicKeyHash resolves to a standard L2Address: a network-scoped
	// version byte plus a 20-byte hash.
	ModeL2PublicKeyHash Mode = iota
	// ModeOpaque carries a payload tagged by its issuing chain that this
	// core does not itself interpret, but still keys a distinct account.
	ModeOpaque
)

// Address is an L2Address per spec.md §3: a network-scoped version byte
// plus a 20-byte hash.
type Address struct {
	Version byte
	Hash20  [20]byte
}

// RewardAddress is a commit_output/reward_addr target: either a standard
// L2Address tagged by its hash mode, or an opaque payload tagged by its
// issuing chain, per spec.md §3's RewardAddress definition.
type RewardAddress struct {
	Mode   Mode
	L2     Address
	Opaque []byte // set only when Mode == ModeOpaque
}

// NewL2 builds a RewardAddress wrapping a standard L2Address.
func NewL2(version byte, hash20 [20]byte) RewardAddress {
	return RewardAddress{Mode: ModeL2PublicKeyHash, L2: Address{Version: version, Hash20: hash20}}
}

// NewOpaque builds a RewardAddress carrying an opaque payload sourced from
// a chain this core does not itself interpret. chainTag distinguishes the
// issuing chain.
func NewOpaque(chainTag byte, payload []byte) RewardAddress {
	return RewardAddress{Mode: ModeOpaque, L2: Address{Version: chainTag}, Opaque: append([]byte(nil), payload...)}
}

// LedgerKey renders the canonical L2 ledger account key this reward target
// resolves to. This is the only key internal/store's balance/stacking
// tables ever credit a mining or stacking reward under — never an
// l1addr.Address's Base58Check string.
func (r RewardAddress) LedgerKey() string {
	if r.Mode == ModeOpaque {
		return fmt.Sprintf("opaque:%d:%s", r.L2.Version, hex.EncodeToString(r.Opaque))
	}
	return fmt.Sprintf("l2:%d:%s", r.L2.Version, hex.EncodeToString(r.L2.Hash20[:]))
}

// String renders the reward address for display (log lines, notifications).
func (r RewardAddress) String() string { return r.LedgerKey() }

// IsRewardEligible reports whether this target can receive a mining or
// stacking reward. An opaque payload with no bytes carries no resolvable
// account and is never eligible.
func (r RewardAddress) IsRewardEligible() bool {
	return r.Mode != ModeOpaque || len(r.Opaque) > 0
}
