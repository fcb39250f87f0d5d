package store

import (
	"context"
	"encoding/json"

	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/ledger"
	"github.com/btczs/btczs-l2/internal/stacking"
)

// PutSnapshot persists a sealed snapshot under both its height and burn
// header hash keys, so a later lookup by either axis is a single get.
func PutSnapshot(ctx context.Context, txn Txn, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return chainerr.Wrap(chainerr.KindInvalidState, "marshal snapshot failed", err)
	}
	if err := txn.Put(ctx, keySnapshot(snap.Height), b); err != nil {
		return err
	}
	return txn.Put(ctx, keySnapshotByHash(snap.BurnHeaderHash), b)
}

// GetSnapshot looks up a snapshot by height.
func GetSnapshot(ctx context.Context, kv KVStore, height uint64) (Snapshot, bool, error) {
	return getSnapshot(ctx, kv, keySnapshot(height))
}

// GetSnapshotByHash looks up a snapshot by its burn header hash.
func GetSnapshotByHash(ctx context.Context, kv KVStore, hash [32]byte) (Snapshot, bool, error) {
	return getSnapshot(ctx, kv, keySnapshotByHash(hash))
}

// DeleteSnapshot removes a sealed snapshot from both its height and burn
// header hash keys, used by Indexer.Rewind to unwind a fork.
func DeleteSnapshot(ctx context.Context, txn Txn, snap Snapshot) error {
	if err := txn.Delete(ctx, keySnapshot(snap.Height)); err != nil {
		return err
	}
	return txn.Delete(ctx, keySnapshotByHash(snap.BurnHeaderHash))
}

func getSnapshot(ctx context.Context, kv KVStore, key string) (Snapshot, bool, error) {
	var snap Snapshot
	b, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return snap, ok, err
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, false, chainerr.Wrap(chainerr.KindInvalidState, "unmarshal snapshot failed", err)
	}
	return snap, true, nil
}

// PutBalance persists an L2 account's token balance.
func PutBalance(ctx context.Context, txn Txn, l2Address string, bal ledger.Balance) error {
	b, err := json.Marshal(bal)
	if err != nil {
		return chainerr.Wrap(chainerr.KindInvalidState, "marshal balance failed", err)
	}
	return txn.Put(ctx, keyBalance(l2Address), b)
}

// GetBalance loads an L2 account's balance, returning the zero value if
// the account has never been credited.
func GetBalance(ctx context.Context, kv KVStore, l2Address string) (ledger.Balance, error) {
	var bal ledger.Balance
	b, ok, err := kv.Get(ctx, keyBalance(l2Address))
	if err != nil {
		return bal, err
	}
	if !ok {
		return bal, nil
	}
	if err := json.Unmarshal(b, &bal); err != nil {
		return bal, chainerr.Wrap(chainerr.KindInvalidState, "unmarshal balance failed", err)
	}
	return bal, nil
}

// PutStacking persists an L2 account's stacking position.
func PutStacking(ctx context.Context, txn Txn, l2Address string, st *stacking.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return chainerr.Wrap(chainerr.KindInvalidState, "marshal stacking state failed", err)
	}
	return txn.Put(ctx, keyStacking(l2Address), b)
}

// GetStacking loads an L2 account's stacking position, returning
// (nil, false, nil) if it has never stacked.
func GetStacking(ctx context.Context, kv KVStore, l2Address string) (*stacking.State, bool, error) {
	b, ok, err := kv.Get(ctx, keyStacking(l2Address))
	if err != nil || !ok {
		return nil, ok, err
	}
	var st stacking.State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, false, chainerr.Wrap(chainerr.KindInvalidState, "unmarshal stacking state failed", err)
	}
	return &st, true, nil
}

// AddPendingUnlock registers an L2 address's stacking position to be
// retired once the burnchain reaches unlockHeight.
func AddPendingUnlock(ctx context.Context, txn Txn, unlockHeight uint64, l2Address string) error {
	addrs, err := GetPendingUnlocks(ctx, txn, unlockHeight)
	if err != nil {
		return err
	}
	addrs = append(addrs, l2Address)
	b, err := json.Marshal(addrs)
	if err != nil {
		return chainerr.Wrap(chainerr.KindInvalidState, "marshal pending unlocks failed", err)
	}
	return txn.Put(ctx, keyUnlocks(unlockHeight), b)
}

// GetPendingUnlocks loads the L2 addresses whose stacking position
// unlocks at height, or nil if none do.
func GetPendingUnlocks(ctx context.Context, kv KVStore, height uint64) ([]string, error) {
	b, ok, err := kv.Get(ctx, keyUnlocks(height))
	if err != nil || !ok {
		return nil, err
	}
	var addrs []string
	if err := json.Unmarshal(b, &addrs); err != nil {
		return nil, chainerr.Wrap(chainerr.KindInvalidState, "unmarshal pending unlocks failed", err)
	}
	return addrs, nil
}

// DeletePendingUnlocks clears height's pending-unlock index once every
// entry on it has been processed.
func DeletePendingUnlocks(ctx context.Context, txn Txn, height uint64) error {
	return txn.Delete(ctx, keyUnlocks(height))
}

// PutRewardCycle persists a reward cycle's accounting and, once sealed,
// its payout list.
func PutRewardCycle(ctx context.Context, txn Txn, rec RewardCycleRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return chainerr.Wrap(chainerr.KindInvalidState, "marshal reward cycle failed", err)
	}
	return txn.Put(ctx, keyCycle(rec.Cycle.CycleNumber), b)
}

// GetRewardCycle loads a reward cycle's record by cycle number.
func GetRewardCycle(ctx context.Context, kv KVStore, n uint64) (RewardCycleRecord, bool, error) {
	var rec RewardCycleRecord
	b, ok, err := kv.Get(ctx, keyCycle(n))
	if err != nil || !ok {
		return rec, ok, err
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, false, chainerr.Wrap(chainerr.KindInvalidState, "unmarshal reward cycle failed", err)
	}
	return rec, true, nil
}

// SetTip persists the indexer's high-water mark.
func SetTip(ctx context.Context, txn Txn, tip Tip) error {
	b, err := json.Marshal(tip)
	if err != nil {
		return chainerr.Wrap(chainerr.KindInvalidState, "marshal tip failed", err)
	}
	return txn.Put(ctx, keyTipHeight, b)
}

// GetTip loads the indexer's high-water mark.
func GetTip(ctx context.Context, kv KVStore) (Tip, bool, error) {
	var tip Tip
	b, ok, err := kv.Get(ctx, keyTipHeight)
	if err != nil || !ok {
		return tip, ok, err
	}
	if err := json.Unmarshal(b, &tip); err != nil {
		return tip, false, chainerr.Wrap(chainerr.KindInvalidState, "unmarshal tip failed", err)
	}
	return tip, true, nil
}

// SetCanonicalTip persists the canonical chain tip's burn header hash,
// distinct from the indexer high-water mark: this is the hash a reorg
// check compares against, and only moves forward once a snapshot is
// fully committed.
func SetCanonicalTip(ctx context.Context, txn Txn, hash [32]byte) error {
	return txn.Put(ctx, keyCanonicalTip, hash[:])
}

// GetCanonicalTip loads the canonical chain tip's burn header hash.
func GetCanonicalTip(ctx context.Context, kv KVStore) ([32]byte, bool, error) {
	var hash [32]byte
	b, ok, err := kv.Get(ctx, keyCanonicalTip)
	if err != nil || !ok {
		return hash, ok, err
	}
	copy(hash[:], b)
	return hash, true, nil
}
