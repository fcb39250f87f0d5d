package opcodes

import (
	"testing"

	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/l1addr"
	"github.com/btczs/btczs-l2/internal/l2addr"
)

type alwaysCommitted struct{}

func (alwaysCommitted) IsCommitted(ptr uint64, index uint32) bool { return true }

type neverCommitted struct{}

func (neverCommitted) IsCommitted(ptr uint64, index uint32) bool { return false }

type fixedPrepare struct{ inPrepare bool }

func (f fixedPrepare) IsPreparePhase(height uint64) bool { return f.inPrepare }

func testParams() Params {
	return Params{
		MinBurn:       1000,
		MaxBurn:       100_000_000_000,
		MinStack:      1_000_000_000,
		MaxCycles:     12,
		ActiveNetwork: byte(l1addr.Mainnet),
	}
}

func TestValidateBurn(t *testing.T) {
	hash := make([]byte, 20)
	reward := l1addr.FromPublicKeyHash(l1addr.Mainnet, hash)
	shielded := l1addr.Address{Type: l1addr.Shielded, Network: l1addr.Mainnet, Bytes: hash}

	tests := []struct {
		name    string
		op      Burn
		wantErr bool
	}{
		{
			name:    "valid burn",
			op:      Burn{Amount: 10_000, RewardAddr: reward},
			wantErr: false,
		},
		{
			name:    "below minimum burn rejected",
			op:      Burn{Amount: 999, RewardAddr: reward},
			wantErr: true,
		},
		{
			name:    "above maximum burn rejected",
			op:      Burn{Amount: 100_000_000_001, RewardAddr: reward},
			wantErr: true,
		},
		{
			name:    "shielded reward address rejected",
			op:      Burn{Amount: 10_000, RewardAddr: shielded},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBurn(tt.op, testParams())
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr && !chainerr.Is(err, chainerr.KindInvalidInput) {
				t.Errorf("error kind = %v, want InvalidInput", err)
			}
		})
	}
}

func TestValidateStackLock(t *testing.T) {
	hash := make([]byte, 20)
	reward := l1addr.FromPublicKeyHash(l1addr.Mainnet, hash)

	tests := []struct {
		name    string
		op      StackLock
		prepare PrepareChecker
		wantErr bool
	}{
		{
			name:    "valid stack lock",
			op:      StackLock{RewardAddr: reward, StackedAmount: 1_000_000_000, NumCycles: 6},
			prepare: fixedPrepare{false},
			wantErr: false,
		},
		{
			name:    "below minimum stacking amount",
			op:      StackLock{RewardAddr: reward, StackedAmount: 1, NumCycles: 6},
			prepare: fixedPrepare{false},
			wantErr: true,
		},
		{
			name:    "zero cycles rejected",
			op:      StackLock{RewardAddr: reward, StackedAmount: 1_000_000_000, NumCycles: 0},
			prepare: fixedPrepare{false},
			wantErr: true,
		},
		{
			name:    "cycles above max rejected",
			op:      StackLock{RewardAddr: reward, StackedAmount: 1_000_000_000, NumCycles: 13},
			prepare: fixedPrepare{false},
			wantErr: true,
		},
		{
			name:    "prepare phase rejected",
			op:      StackLock{RewardAddr: reward, StackedAmount: 1_000_000_000, NumCycles: 6},
			prepare: fixedPrepare{true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStackLock(tt.op, testParams(), tt.prepare)
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateLeaderCommit(t *testing.T) {
	var hash20 [20]byte
	output := l2addr.NewL2(0, hash20)

	base := LeaderCommit{
		BurnFee:       5000,
		CommitOutputs: []l2addr.RewardAddress{output},
		KeyPtr:        5,
		ParentPtr:     4,
	}

	t.Run("valid commit", func(t *testing.T) {
		if err := ValidateLeaderCommit(base, testParams(), alwaysCommitted{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("below minimum burn fee rejected", func(t *testing.T) {
		low := base
		low.BurnFee = 1
		if err := ValidateLeaderCommit(low, testParams(), alwaysCommitted{}); err == nil {
			t.Fatal("expected error for low burn_fee")
		}
	})

	t.Run("forward reference rejected", func(t *testing.T) {
		if err := ValidateLeaderCommit(base, testParams(), neverCommitted{}); err == nil {
			t.Fatal("expected error for forward-referencing pointers")
		}
	})

	t.Run("no commit outputs rejected", func(t *testing.T) {
		empty := base
		empty.CommitOutputs = nil
		if err := ValidateLeaderCommit(empty, testParams(), alwaysCommitted{}); err == nil {
			t.Fatal("expected error for empty commit outputs")
		}
	})
}
