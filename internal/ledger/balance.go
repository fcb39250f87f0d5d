// Package ledger implements the Token Ledger (C7): balance accounting with
// an available/locked split, per spec.md §4.9.
package ledger

import "github.com/btczs/btczs-l2/internal/chainerr"

// Balance is the per-L2Address account state. Available and Locked are
// tracked separately; Total is always their sum and is never stored
// independently to avoid drift.
type Balance struct {
	Available       uint64
	Locked          uint64
	LastUpdatedHeight uint64
}

// Total returns Available + Locked.
func (b Balance) Total() uint64 {
	return b.Available + b.Locked
}

// Transfer performs a checked debit of from.Available and credit of
// to.Available. Returns chainerr.KindInsufficientBalance if from lacks
// funds; neither balance is mutated on error.
func Transfer(from, to *Balance, amount uint64, height uint64) error {
	if from.Available < amount {
		return chainerr.New(chainerr.KindInsufficientBalance, "transfer exceeds available balance")
	}
	from.Available -= amount
	to.Available += amount
	from.LastUpdatedHeight = monotonicHeight(from.LastUpdatedHeight, height)
	to.LastUpdatedHeight = monotonicHeight(to.LastUpdatedHeight, height)
	return nil
}

// Lock moves amount from Available to Locked atomically. Returns
// KindInsufficientBalance if Available lacks funds.
func Lock(b *Balance, amount uint64, height uint64) error {
	if b.Available < amount {
		return chainerr.New(chainerr.KindInsufficientBalance, "lock exceeds available balance")
	}
	b.Available -= amount
	b.Locked += amount
	b.LastUpdatedHeight = monotonicHeight(b.LastUpdatedHeight, height)
	return nil
}

// Unlock moves amount from Locked back to Available atomically. Returns
// KindInvalidState if Locked lacks the requested amount — this indicates a
// bookkeeping bug, not a user-facing condition, since unlocks are only
// issued by the stacking engine for amounts it itself locked.
func Unlock(b *Balance, amount uint64, height uint64) error {
	if b.Locked < amount {
		return chainerr.New(chainerr.KindInvalidState, "unlock exceeds locked balance")
	}
	b.Locked -= amount
	b.Available += amount
	b.LastUpdatedHeight = monotonicHeight(b.LastUpdatedHeight, height)
	return nil
}

// Mint credits Available only. Callers (internal/issuance's pipeline) are
// responsible for enforcing the TOTAL_SUPPLY cap before calling this.
func Mint(b *Balance, amount uint64, height uint64) {
	b.Available += amount
	b.LastUpdatedHeight = monotonicHeight(b.LastUpdatedHeight, height)
}

// Burn debits Available only. Returns KindInsufficientBalance if Available
// lacks funds.
func Burn(b *Balance, amount uint64, height uint64) error {
	if b.Available < amount {
		return chainerr.New(chainerr.KindInsufficientBalance, "burn exceeds available balance")
	}
	b.Available -= amount
	b.LastUpdatedHeight = monotonicHeight(b.LastUpdatedHeight, height)
	return nil
}

func monotonicHeight(current, next uint64) uint64 {
	if next > current {
		return next
	}
	return current
}
