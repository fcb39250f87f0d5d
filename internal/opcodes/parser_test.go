package opcodes

import (
	"bytes"
	"testing"

	"github.com/btczs/btczs-l2/internal/l1addr"
	"github.com/btczs/btczs-l2/internal/l2addr"
)

func fixtureCtx() TxContext {
	return TxContext{BlockHeight: 100}
}

func TestParseUnknownMagicIsNotAnOp(t *testing.T) {
	op, err := Parse([]byte("not an op return payload"), fixtureCtx())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if op != nil {
		t.Errorf("Parse() = %v, want nil for non-magic payload", op)
	}
}

func TestParseUnknownTagIsNotAnOp(t *testing.T) {
	payload := append(append([]byte{}, Magic[:]...), 0xFE)
	op, err := Parse(payload, fixtureCtx())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if op != nil {
		t.Errorf("Parse() = %v, want nil for unrecognized tag", op)
	}
}

func TestLeaderCommitRoundTrip(t *testing.T) {
	hash := make([]byte, 20)
	for i := range hash {
		hash[i] = byte(i)
	}
	sender := l1addr.FromPublicKeyHash(l1addr.Mainnet, hash)
	var hash20 [20]byte
	copy(hash20[:], hash)
	output := l2addr.NewL2(0, hash20)

	original := LeaderCommit{
		TxContext:     fixtureCtx(),
		Sender:        sender,
		BurnFee:       5000,
		CommitOutputs: []l2addr.RewardAddress{output},
		KeyPtr:        10,
		KeyIndex:      1,
		ParentPtr:     9,
		ParentIndex:   0,
	}
	original.BlockHeaderHash[0] = 0xAA
	original.VRFSeed[0] = 0xBB

	encoded := EncodeLeaderCommit(original)
	parsed, err := Parse(encoded, fixtureCtx())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	lc, ok := parsed.(LeaderCommit)
	if !ok {
		t.Fatalf("Parse() returned %T, want LeaderCommit", parsed)
	}
	if lc.BurnFee != original.BurnFee {
		t.Errorf("BurnFee = %d, want %d", lc.BurnFee, original.BurnFee)
	}
	if len(lc.CommitOutputs) != 1 || !bytes.Equal(lc.CommitOutputs[0].L2.Hash20[:], output.L2.Hash20[:]) {
		t.Errorf("CommitOutputs = %v, want one output matching %v", lc.CommitOutputs, output)
	}
	if lc.KeyPtr != original.KeyPtr || lc.ParentPtr != original.ParentPtr {
		t.Errorf("pointer fields not preserved: got key=%d parent=%d", lc.KeyPtr, lc.ParentPtr)
	}
	if lc.BlockHeaderHash != original.BlockHeaderHash {
		t.Error("BlockHeaderHash not preserved")
	}
}

func TestStackLockRoundTrip(t *testing.T) {
	hash := make([]byte, 20)
	reward := l1addr.FromPublicKeyHash(l1addr.Mainnet, hash)

	original := StackLock{
		TxContext:     fixtureCtx(),
		Sender:        "l2-address-placeholder",
		RewardAddr:    reward,
		StackedAmount: 1_000_000_000,
		NumCycles:     6,
	}

	encoded := EncodeStackLock(original)
	parsed, err := Parse(encoded, fixtureCtx())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	sl, ok := parsed.(StackLock)
	if !ok {
		t.Fatalf("Parse() returned %T, want StackLock", parsed)
	}
	if sl.Sender != original.Sender {
		t.Errorf("Sender = %q, want %q", sl.Sender, original.Sender)
	}
	if sl.StackedAmount != original.StackedAmount {
		t.Errorf("StackedAmount = %d, want %d", sl.StackedAmount, original.StackedAmount)
	}
	if sl.NumCycles != original.NumCycles {
		t.Errorf("NumCycles = %d, want %d", sl.NumCycles, original.NumCycles)
	}
}

func TestBurnRoundTrip(t *testing.T) {
	hash := make([]byte, 20)
	sender := l1addr.FromPublicKeyHash(l1addr.Mainnet, hash)
	reward := l1addr.FromPublicKeyHash(l1addr.Mainnet, hash)

	original := Burn{
		TxContext:  fixtureCtx(),
		Sender:     sender,
		Amount:     10_000,
		RewardAddr: reward,
	}

	encoded := EncodeBurn(original)
	parsed, err := Parse(encoded, fixtureCtx())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	b, ok := parsed.(Burn)
	if !ok {
		t.Fatalf("Parse() returned %T, want Burn", parsed)
	}
	if b.Amount != original.Amount {
		t.Errorf("Amount = %d, want %d", b.Amount, original.Amount)
	}
}

func TestParseTruncatedPayloadErrors(t *testing.T) {
	payload := append(append([]byte{}, Magic[:]...), byte(TagBurn))
	_, err := Parse(payload, fixtureCtx())
	if err == nil {
		t.Fatal("Parse() should error on a truncated Burn payload")
	}
}
