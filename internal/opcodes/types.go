// Package opcodes decodes and validates the three L2 operation kinds
// carried in L1 OP_RETURN-style outputs: LeaderCommit, StackLock, and Burn.
package opcodes

import (
	"github.com/btczs/btczs-l2/internal/l1addr"
	"github.com/btczs/btczs-l2/internal/l2addr"
)

// Tag identifies an operation's wire-format op-type byte.
type Tag byte

const (
	TagLeaderCommit Tag = 0x01
	TagStackLock    Tag = 0x02
	TagBurn         Tag = 0x03
)

// Magic is the fixed 4-byte prefix preceding every operation's op-type tag
// inside an OP_RETURN-style payload.
var Magic = [4]byte{'b', 't', 'z', 's'}

// TxContext carries the transaction-level metadata every op needs,
// independent of its wire encoding.
type TxContext struct {
	Txid           [32]byte
	Vtxindex       uint32
	BlockHeight    uint64
	BurnHeaderHash [32]byte
}

// LeaderCommit is a candidate L2 block's commitment to the burnchain.
type LeaderCommit struct {
	TxContext
	Sender          l1addr.Address
	BurnFee         uint64
	CommitOutputs   []l2addr.RewardAddress
	BlockHeaderHash [32]byte
	VRFSeed         [32]byte
	KeyPtr          uint64
	KeyIndex        uint32
	ParentPtr       uint64
	ParentIndex     uint32
}

// StackLock locks L2 tokens for a number of reward cycles.
type StackLock struct {
	TxContext
	Sender        string // L2Address; opaque to this package
	RewardAddr    l1addr.Address
	StackedAmount uint64 // micro-units; spec allows u128 but this core caps at u64
	NumCycles     uint8
}

// Burn destroys L1 currency in exchange for reward-address credit.
type Burn struct {
	TxContext
	Sender     l1addr.Address
	Amount     uint64
	RewardAddr l1addr.Address
}

// Operation is the common interface satisfied by all three op kinds.
type Operation interface {
	Tag() Tag
	Context() TxContext
}

func (o LeaderCommit) Tag() Tag         { return TagLeaderCommit }
func (o LeaderCommit) Context() TxContext { return o.TxContext }

func (o StackLock) Tag() Tag         { return TagStackLock }
func (o StackLock) Context() TxContext { return o.TxContext }

func (o Burn) Tag() Tag         { return TagBurn }
func (o Burn) Context() TxContext { return o.TxContext }
