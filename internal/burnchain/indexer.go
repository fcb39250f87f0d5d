package burnchain

import (
	"context"
	"sync/atomic"

	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/l1rpc"
	"github.com/btczs/btczs-l2/internal/store"
)

// BlockSource is the subset of l1rpc.Client the indexer depends on,
// expressed as an interface so tests can supply a fake.
type BlockSource interface {
	GetBlockCount(ctx context.Context) (uint64, error)
	GetBlockByHeight(ctx context.Context, height uint64) (*l1rpc.Block, error)
}

// Indexer syncs a closed height range sequentially against an L1 node,
// converting each block to the internal model and handing it to a
// caller-supplied sink. It is single-threaded: SyncRange must not be
// called concurrently with itself.
type Indexer struct {
	source BlockSource

	// keepRunning is the cooperative cancellation flag: cleared by Stop,
	// checked once per block during SyncRange.
	keepRunning int32
}

// NewIndexer builds an indexer against source.
func NewIndexer(source BlockSource) *Indexer {
	idx := &Indexer{source: source}
	atomic.StoreInt32(&idx.keepRunning, 1)
	return idx
}

// Stop clears the cooperative cancellation flag; the next in-flight
// SyncRange step observes it and returns Timeout.
func (idx *Indexer) Stop() {
	atomic.StoreInt32(&idx.keepRunning, 0)
}

// Resume sets the cancellation flag back so a later SyncRange can proceed.
func (idx *Indexer) Resume() {
	atomic.StoreInt32(&idx.keepRunning, 1)
}

// SyncRange iterates [start, end] inclusive, fetching and parsing each
// block in turn and invoking onBlock with the parsed result. end of 0
// with start of 0 is treated literally — callers resolve "to tip" via
// TipHeight before calling. Never retries a malformed block: parsing
// failures abort the sync and surface the error (per §4.3).
func (idx *Indexer) SyncRange(ctx context.Context, start, end uint64, onBlock func(L1Block) error) error {
	for height := start; height <= end; height++ {
		if atomic.LoadInt32(&idx.keepRunning) == 0 {
			return chainerr.New(chainerr.KindTimeout, "indexer sync cancelled")
		}

		wireBlock, err := idx.source.GetBlockByHeight(ctx, height)
		if err != nil {
			return chainerr.Wrap(chainerr.KindRPCError, "fetch block failed", err)
		}

		block, err := convertBlock(wireBlock)
		if err != nil {
			return err
		}

		if err := onBlock(block); err != nil {
			return err
		}

		if height == ^uint64(0) {
			break // avoid overflow on the maximal height
		}
	}
	return nil
}

// Sink is the store surface Rewind needs. store.RedisStore satisfies it
// directly; engine.Sink is the same shape, so the node shell can pass the
// same store handle it gives the engine.
type Sink interface {
	store.KVStore
	Begin(ctx context.Context) (store.Txn, error)
}

// Rewind unwinds persisted state back to height: every snapshot above
// height is deleted and the tip is reset to height, so the next SyncRange
// re-indexes the fork from scratch. Detection of when to call this is the
// caller's decision (the node shell, once it judges a reorg has stabilized
// on L1); Rewind itself only performs the mechanical unwind.
func (idx *Indexer) Rewind(ctx context.Context, sink Sink, height uint64) error {
	tip, ok, err := store.GetTip(ctx, sink)
	if err != nil {
		return err
	}
	if !ok || tip.Height <= height {
		return nil
	}

	txn, err := sink.Begin(ctx)
	if err != nil {
		return err
	}

	for h := tip.Height; h > height; h-- {
		snap, ok, err := store.GetSnapshot(ctx, txn, h)
		if err != nil {
			txn.Rollback()
			return err
		}
		if ok {
			if err := store.DeleteSnapshot(ctx, txn, snap); err != nil {
				txn.Rollback()
				return err
			}
		}
	}

	newTip := store.Tip{}
	restored, ok, err := store.GetSnapshot(ctx, txn, height)
	if err != nil {
		txn.Rollback()
		return err
	}
	if ok {
		newTip = store.Tip{Height: restored.Height, BurnHeaderHash: restored.BurnHeaderHash}
	}
	if err := store.SetTip(ctx, txn, newTip); err != nil {
		txn.Rollback()
		return err
	}
	return txn.Commit(ctx)
}

// TipHeight returns the L1 node's current chain tip height.
func (idx *Indexer) TipHeight(ctx context.Context) (uint64, error) {
	height, err := idx.source.GetBlockCount(ctx)
	if err != nil {
		return 0, chainerr.Wrap(chainerr.KindRPCError, "fetch tip height failed", err)
	}
	return height, nil
}

// convertBlock parses an L1 RPC wire block into the internal model.
// Header parsing errors (bad hex, missing fields) surface as RpcError
// per §4.3: this function wraps parseHash's InvalidByteSequence for a
// malformed block hash, parent hash or txid as KindRPCError itself, and
// the caller returns it unchanged. A malformed OP_RETURN script is
// returned as InvalidByteSequence, unwrapped.
func convertBlock(wire *l1rpc.Block) (L1Block, error) {
	hash, err := parseHash(wire.Hash)
	if err != nil {
		return L1Block{}, chainerr.Wrap(chainerr.KindRPCError, "block has malformed hash", err)
	}
	parentHash, err := parseHash(wire.PreviousBlockHash)
	if err != nil {
		return L1Block{}, chainerr.Wrap(chainerr.KindRPCError, "block has malformed parent hash", err)
	}

	txs := make([]L1Tx, 0, len(wire.Tx))
	for i, wireTx := range wire.Tx {
		txid, err := parseHash(wireTx.Txid)
		if err != nil {
			return L1Block{}, chainerr.Wrap(chainerr.KindRPCError, "tx has malformed txid", err)
		}

		var payload []byte
		for _, out := range wireTx.Vout {
			p, err := extractOpReturnPayload(out.ScriptPubKey.Hex)
			if err != nil {
				return L1Block{}, err
			}
			if p != nil {
				payload = p
				break
			}
		}

		txs = append(txs, L1Tx{Txid: txid, Vtxindex: uint32(i), OpReturnPayload: payload})
	}

	return L1Block{
		Height:     wire.Height,
		Hash:       hash,
		ParentHash: parentHash,
		Timestamp:  wire.Time,
		Txs:        txs,
	}, nil
}
