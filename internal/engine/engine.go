// Package engine orchestrates the core pipeline (C1→C10): it drives the
// burnchain indexer, parses and validates each block's operations, runs
// sortition, settles stacking rewards and the fee split, and persists the
// resulting snapshot — one L1 block at a time.
package engine

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/btczs/btczs-l2/internal/anchor"
	"github.com/btczs/btczs-l2/internal/burnchain"
	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/config"
	"github.com/btczs/btczs-l2/internal/fees"
	"github.com/btczs/btczs-l2/internal/issuance"
	"github.com/btczs/btczs-l2/internal/l1addr"
	"github.com/btczs/btczs-l2/internal/l2addr"
	"github.com/btczs/btczs-l2/internal/ledger"
	"github.com/btczs/btczs-l2/internal/opcodes"
	"github.com/btczs/btczs-l2/internal/sortition"
	"github.com/btczs/btczs-l2/internal/sortitionhash"
	"github.com/btczs/btczs-l2/internal/stacking"
	"github.com/btczs/btczs-l2/internal/store"
	"github.com/btczs/btczs-l2/internal/util"
)

// Sink is the store surface the engine needs: direct reads (for the
// catch-up tip check, which runs outside any one block's transaction) plus
// Begin for the one-transaction-per-block bracket. store.RedisStore
// satisfies this directly.
type Sink interface {
	store.KVStore
	Begin(ctx context.Context) (store.Txn, error)
}

// Notifier is the subset of notification behavior the engine drives;
// satisfied by internal/notify.Notifier.
type Notifier interface {
	NotifySortitionWin(height uint64, winner l2addr.RewardAddress, reward uint64)
	NotifyReorgDetected(height uint64, expectedParent, actualParent [32]byte)
}

// EventSink receives post-commit events for real-time push to explorer
// clients; satisfied by internal/stream.Server. Optional — a nil sink
// means no one is listening.
type EventSink interface {
	SnapshotSealed(snap store.Snapshot)
	CycleSealed(cycleNumber, totalStacked, rewardPool uint64, payoutCount int)
}

// Engine ties the pipeline together. It is single-writer: ProcessBlock
// must not be called concurrently with itself (the sync loop enforces
// this, matching C3's own single-threaded contract).
type Engine struct {
	cfg      *config.Config
	indexer  *burnchain.Indexer
	sink     Sink
	notifier Notifier
	events   EventSink

	calendar         sortition.Calendar
	opParams         opcodes.Params
	issuance         issuance.Schedule
	feeCfg           fees.Config
	conversionFactor uint64
	activeNetwork    l1addr.Network

	minted uint64 // cumulative mint total, enforced against issuance.Schedule.TotalSupply

	mu        sync.Mutex
	committed map[uint64]map[uint32]bool // ptr -> index -> seen, satisfies opcodes.HistoryChecker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Engine from configuration and its wired dependencies.
func New(cfg *config.Config, source burnchain.BlockSource, sink Sink, notifier Notifier) *Engine {
	network := networkFromName(cfg.Network.Name)

	e := &Engine{
		cfg:      cfg,
		indexer:  burnchain.NewIndexer(source),
		sink:     sink,
		notifier: notifier,
		calendar: sortition.Calendar{
			CycleLength:   cfg.Stacking.CycleLength,
			PrepareLength: cfg.Stacking.PrepareLength,
		},
		opParams: opcodes.Params{
			MinBurn:       cfg.Burnchain.MinBurnAmount,
			MaxBurn:       cfg.Burnchain.MaxBurnAmount,
			MinStack:      cfg.Stacking.MinStackingAmount,
			MaxCycles:     uint8(cfg.Stacking.MaxCycles),
			ActiveNetwork: byte(network),
		},
		issuance: issuance.Schedule{
			GenesisReward:   cfg.Issuance.GenesisReward,
			HalvingInterval: cfg.Issuance.HalvingInterval,
			TotalSupply:     cfg.Issuance.TotalSupply,
			MinBurn:         cfg.Burnchain.MinBurnAmount,
		},
		feeCfg: fees.Config{
			BaseFeeRate:      cfg.Fee.BaseFeeRate,
			MinFee:           cfg.Fee.MinFee,
			MaxFee:           cfg.Fee.MaxFee,
			CongestionFactor: cfg.Fee.CongestionFactor,
		},
		conversionFactor: cfg.Stacking.ConversionFactor,
		activeNetwork:    network,
		committed:        make(map[uint64]map[uint32]bool),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// SetEventSink wires a real-time push destination for sealed snapshots
// and sealed cycles. Must be called before Start.
func (e *Engine) SetEventSink(sink EventSink) {
	e.events = sink
}

// networkFromName maps a config network name to its l1addr.Network. No
// such mapping exists in l1addr itself, since that package only knows
// about encoded addresses, not configuration strings.
func networkFromName(name string) l1addr.Network {
	switch name {
	case "testnet":
		return l1addr.Testnet
	case "regtest":
		return l1addr.Regtest
	default:
		return l1addr.Mainnet
	}
}

// Start begins the sync loop, mirroring the teacher's ticker-driven
// jobRefreshLoop shape but polling the burnchain tip instead of a mining
// job.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.syncLoop()
}

// Stop cancels the sync loop and waits for it to exit.
func (e *Engine) Stop() {
	e.cancel()
	e.indexer.Stop()
	e.wg.Wait()
}

func (e *Engine) syncLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Burnchain.PollInterval)
	defer ticker.Stop()

	if err := e.catchUp(e.ctx); err != nil {
		util.Errorf("initial burnchain catch-up failed: %v", err)
	}

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if err := e.catchUp(e.ctx); err != nil {
				util.Warnf("burnchain catch-up failed: %v", err)
			}
		}
	}
}

// catchUp advances the tip from the last persisted height up to the L1
// node's current chain tip, processing one block at a time.
func (e *Engine) catchUp(ctx context.Context) error {
	nextHeight := e.cfg.Burnchain.StartHeight
	tip, ok, err := store.GetTip(ctx, e.sink)
	if err != nil {
		return err
	}
	if ok {
		nextHeight = tip.Height + 1
	}

	head, err := e.indexer.TipHeight(ctx)
	if err != nil {
		return err
	}
	if nextHeight > head {
		return nil
	}

	return e.indexer.SyncRange(ctx, nextHeight, head, func(block burnchain.L1Block) error {
		return e.ProcessBlock(ctx, block)
	})
}

// ProcessBlock implements the full per-L1-block pipeline: parse (C4),
// validate (C5), sortition (C6), stacking/reward settlement (C8), token
// mint (C7), and snapshot persistence (C10's anchor data, §6). Per
// spec.md §7, an op-level error is absorbed (the op is dropped, processing
// continues); a block-level error aborts the whole block and its
// transaction is rolled back, leaving persisted state unchanged.
func (e *Engine) ProcessBlock(ctx context.Context, block burnchain.L1Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	txn, err := e.sink.Begin(ctx)
	if err != nil {
		return err
	}

	snap, cycleEvt, perr := e.processBlockLocked(ctx, txn, block)
	if perr != nil {
		txn.Rollback()
		return perr
	}

	if err := txn.Commit(ctx); err != nil {
		return err
	}

	if e.events != nil {
		e.events.SnapshotSealed(snap)
		if cycleEvt != nil {
			e.events.CycleSealed(cycleEvt.cycleNumber, cycleEvt.totalStacked, cycleEvt.rewardPool, cycleEvt.payoutCount)
		}
	}
	return nil
}

// cycleSealedEvent carries the values an EventSink needs once a reward
// cycle seals; nil when applyCycleBoundary didn't seal a cycle this block.
type cycleSealedEvent struct {
	cycleNumber  uint64
	totalStacked uint64
	rewardPool   uint64
	payoutCount  int
}

func (e *Engine) processBlockLocked(ctx context.Context, txn store.Txn, block burnchain.L1Block) (store.Snapshot, *cycleSealedEvent, error) {
	var parent store.Snapshot
	if block.Height > 0 {
		var ok bool
		var err error
		parent, ok, err = store.GetSnapshot(ctx, txn, block.Height-1)
		if err != nil {
			return store.Snapshot{}, nil, err
		}
		if ok && parent.BurnHeaderHash != block.ParentHash {
			if e.notifier != nil {
				e.notifier.NotifyReorgDetected(block.Height, parent.BurnHeaderHash, block.ParentHash)
			}
			return store.Snapshot{}, nil, chainerr.New(chainerr.KindNoncontiguousHeader,
				"block parent hash does not match the persisted snapshot at the prior height")
		}
	}

	leaderCommits, stackLocks, burns := e.parseAndValidate(block)

	candidates := make([]sortition.Candidate, len(leaderCommits))
	for i, lc := range leaderCommits {
		candidates[i] = sortition.Candidate{Index: i, BurnFee: lc.BurnFee}
	}
	dist := sortition.BuildDistribution(candidates)

	snap := store.Snapshot{
		Height:           block.Height,
		BurnHeaderHash:   block.Hash,
		ParentHeaderHash: block.ParentHash,
		WinningCandidate: -1,
		CycleNumber:      e.calendar.CurrentCycle(block.Height),
		IsPrepare:        e.calendar.IsPreparePhase(block.Height),
		NumSortitions:    parent.NumSortitions,
	}

	var blockBurn uint64
	for _, lc := range leaderCommits {
		blockBurn = saturatingAdd(blockBurn, lc.BurnFee)
	}
	for _, b := range burns {
		blockBurn = saturatingAdd(blockBurn, b.Amount)
	}
	snap.BlockBurn = blockBurn
	snap.TotalBurn = saturatingAdd(parent.TotalBurn, blockBurn)

	feeDist := e.computeBlockFees(stackLocks, burns)

	snap.SortitionHash = sortitionhash.Sortition(parent.ConsensusHash, block.Hash, block.Height)

	if dist.Total > 0 {
		drawBytes := sortitionhash.ReduceMod128(snap.SortitionHash)
		draw := new(big.Int).SetBytes(drawBytes[:])
		winnerIdx := dist.Winner(draw)
		if winnerIdx >= 0 {
			snap.Sortition = true
			snap.WinningCandidate = winnerIdx
			snap.WinningTxid = leaderCommits[winnerIdx].Txid
			snap.NumSortitions = parent.NumSortitions + 1

			if err := e.payMiner(ctx, txn, block.Height, leaderCommits[winnerIdx], feeDist.Miner); err != nil {
				return store.Snapshot{}, nil, err
			}
		}
	}

	if feeDist.Treasury > 0 {
		if err := e.creditTreasury(ctx, txn, block.Height, feeDist.Treasury); err != nil {
			return store.Snapshot{}, nil, err
		}
	}

	snap.OpsHash = sortitionhash.Ops(serializeOpsForHash(leaderCommits, stackLocks, burns))
	snap.ConsensusHash = sortitionhash.Consensus(parent.ConsensusHash, snap.OpsHash)

	snap = snap.WithAnchorSnapshot(anchor.Snapshot{
		Sortition:     snap.Sortition,
		LeaderCommits: leaderCommits,
		TotalBurn:     snap.TotalBurn,
	})

	if err := e.applyUnlocks(ctx, txn, block.Height); err != nil {
		return store.Snapshot{}, nil, err
	}

	if err := e.applyStackLocks(ctx, txn, block.Height, stackLocks); err != nil {
		return store.Snapshot{}, nil, err
	}
	// The locker-pool fee share joins the cycle's burn accounting: it
	// grows the same reward_pool_n that conversion_factor scales at
	// seal, rather than a second parallel payout channel.
	cycleEvt, err := e.applyCycleBoundary(ctx, txn, block.Height, saturatingAdd(blockBurn, feeDist.LockerPool))
	if err != nil {
		return store.Snapshot{}, nil, err
	}

	if e.committed[block.Height] == nil {
		e.committed[block.Height] = make(map[uint32]bool)
	}
	for i := range leaderCommits {
		e.committed[block.Height][uint32(i)] = true
	}

	if err := store.PutSnapshot(ctx, txn, snap); err != nil {
		return store.Snapshot{}, nil, err
	}
	if err := store.SetTip(ctx, txn, store.Tip{Height: block.Height, BurnHeaderHash: block.Hash}); err != nil {
		return store.Snapshot{}, nil, err
	}
	if err := store.SetCanonicalTip(ctx, txn, block.Hash); err != nil {
		return store.Snapshot{}, nil, err
	}
	return snap, cycleEvt, nil
}

// parseAndValidate decodes every tx's operation and applies C5's checks,
// absorbing per-op failures per §7 (the op is dropped and logged; block
// processing continues).
func (e *Engine) parseAndValidate(block burnchain.L1Block) ([]opcodes.LeaderCommit, []opcodes.StackLock, []opcodes.Burn) {
	var leaderCommits []opcodes.LeaderCommit
	var stackLocks []opcodes.StackLock
	var burns []opcodes.Burn

	history := historyCheckerFunc(func(ptr uint64, index uint32) bool {
		return e.committed[ptr][index]
	})
	prepare := prepareCheckerFunc(e.calendar.IsPreparePhase)

	for _, tx := range block.Txs {
		if tx.OpReturnPayload == nil {
			continue
		}
		txCtx := opcodes.TxContext{
			Txid:           tx.Txid,
			Vtxindex:       tx.Vtxindex,
			BlockHeight:    block.Height,
			BurnHeaderHash: block.Hash,
		}
		op, err := opcodes.Parse(tx.OpReturnPayload, txCtx)
		if err != nil {
			util.Debugf("dropping unparseable op in tx %x: %v", tx.Txid, err)
			continue
		}
		if err := opcodes.Validate(op, e.opParams, history, prepare); err != nil {
			util.Debugf("dropping invalid op in tx %x: %v", tx.Txid, err)
			continue
		}
		switch v := op.(type) {
		case opcodes.LeaderCommit:
			leaderCommits = append(leaderCommits, v)
		case opcodes.StackLock:
			stackLocks = append(stackLocks, v)
		case opcodes.Burn:
			burns = append(burns, v)
		}
	}

	return leaderCommits, stackLocks, burns
}

type historyCheckerFunc func(ptr uint64, index uint32) bool

func (f historyCheckerFunc) IsCommitted(ptr uint64, index uint32) bool { return f(ptr, index) }

type prepareCheckerFunc func(height uint64) bool

func (f prepareCheckerFunc) IsPreparePhase(height uint64) bool { return f(height) }

// payMiner mints the winning leader's coinbase (base reward plus burn
// bonus, clamped to the supply cap) plus its uncapped fee-engine miner
// share to the L2 account keyed by its first reward-eligible commit
// output.
func (e *Engine) payMiner(ctx context.Context, txn store.Txn, height uint64, winner opcodes.LeaderCommit, feeShare uint64) error {
	if len(winner.CommitOutputs) == 0 {
		return chainerr.New(chainerr.KindInvalidState, "winning commit has no reward outputs")
	}
	rewardAddr := winner.CommitOutputs[0]
	l2Key := rewardAddr.String()

	coinbase := e.issuance.MiningReward(height, winner.BurnFee)
	coinbase = e.issuance.ClampToSupply(coinbase, e.minted)
	e.minted += coinbase

	total := coinbase + feeShare
	if total == 0 {
		return nil
	}

	bal, err := store.GetBalance(ctx, txn, l2Key)
	if err != nil {
		return err
	}
	ledger.Mint(&bal, total, height)
	if err := store.PutBalance(ctx, txn, l2Key, bal); err != nil {
		return err
	}

	if e.notifier != nil {
		e.notifier.NotifySortitionWin(height, rewardAddr, total)
	}
	return nil
}

// treasuryAccountKey is the fixed L2 account every block's fee-engine
// treasury share is credited to.
const treasuryAccountKey = "treasury"

// creditTreasury mints the fee-engine's treasury share for this block.
func (e *Engine) creditTreasury(ctx context.Context, txn store.Txn, height uint64, amount uint64) error {
	bal, err := store.GetBalance(ctx, txn, treasuryAccountKey)
	if err != nil {
		return err
	}
	ledger.Mint(&bal, amount, height)
	return store.PutBalance(ctx, txn, treasuryAccountKey, bal)
}

// computeBlockFees quotes a per-tx fee for every fee-bearing op in the
// block (StackLock and Burn; LeaderCommit already pays its burn_fee
// directly into the sortition distribution) and splits the total per
// the fixed 60/25/10/5 policy.
func (e *Engine) computeBlockFees(stackLocks []opcodes.StackLock, burns []opcodes.Burn) fees.Distribution {
	var total uint64
	for _, lock := range stackLocks {
		q := fees.Compute(e.feeCfg, fees.OpContractCall, uint64(len(opcodes.EncodeStackLock(lock))), lock.StackedAmount)
		total = saturatingAdd(total, q.Total)
	}
	for _, b := range burns {
		q := fees.Compute(e.feeCfg, fees.OpTransfer, uint64(len(opcodes.EncodeBurn(b))), b.Amount)
		total = saturatingAdd(total, q.Total)
	}
	return fees.Distribute(total)
}

// applyStackLocks processes each newly-validated StackLock: debits
// available and credits locked on the sender's balance, and creates its
// stacking position (§4.8, first row).
func (e *Engine) applyStackLocks(ctx context.Context, txn store.Txn, height uint64, locks []opcodes.StackLock) error {
	for _, lock := range locks {
		bal, err := store.GetBalance(ctx, txn, lock.Sender)
		if err != nil {
			return err
		}
		if err := ledger.Lock(&bal, lock.StackedAmount, height); err != nil {
			util.Debugf("dropping stack lock for %s: %v", lock.Sender, err)
			continue
		}
		if err := store.PutBalance(ctx, txn, lock.Sender, bal); err != nil {
			return err
		}

		firstCycle := e.calendar.FirstCycle(height)
		unlockHeight := e.calendar.UnlockHeight(height, lock.NumCycles)
		st := stacking.NewState(lock.Sender, lock.RewardAddr, lock.StackedAmount, height, lock.NumCycles, firstCycle, unlockHeight)
		if err := store.PutStacking(ctx, txn, lock.Sender, st); err != nil {
			return err
		}

		if err := e.addToCycles(ctx, txn, st); err != nil {
			return err
		}

		if err := store.AddPendingUnlock(ctx, txn, unlockHeight, lock.Sender); err != nil {
			return err
		}
	}
	return nil
}

// applyUnlocks retires every stacking position whose unlock_height is
// exactly this block's height, crediting locked back to available on the
// Token Ledger (§4.8, third row). The engine processes L1 blocks one
// sequential height at a time, so the pending-unlock index need only be
// checked at the exact height, never swept as a range.
func (e *Engine) applyUnlocks(ctx context.Context, txn store.Txn, height uint64) error {
	addrs, err := store.GetPendingUnlocks(ctx, txn, height)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return nil
	}

	for _, addr := range addrs {
		st, ok, err := store.GetStacking(ctx, txn, addr)
		if err != nil {
			return err
		}
		if !ok || st.Retired {
			continue
		}

		bal, err := store.GetBalance(ctx, txn, addr)
		if err != nil {
			return err
		}
		if err := ledger.Unlock(&bal, st.StackedAmount, height); err != nil {
			return err
		}
		if err := store.PutBalance(ctx, txn, addr, bal); err != nil {
			return err
		}

		st.Retire()
		if err := store.PutStacking(ctx, txn, addr, st); err != nil {
			return err
		}
	}

	return store.DeletePendingUnlocks(ctx, txn, height)
}

// addToCycles registers a stacking position's stacked amount against
// every reward cycle it participates in, so each cycle's total_stacked
// reflects every active locker when it seals.
func (e *Engine) addToCycles(ctx context.Context, txn store.Txn, st *stacking.State) error {
	for n := st.FirstCycle; n < st.FirstCycle+uint64(st.LockPeriod); n++ {
		rec, ok, err := store.GetRewardCycle(ctx, txn, n)
		if err != nil {
			return err
		}
		if !ok {
			rec = store.RewardCycleRecord{Cycle: *stacking.NewRewardCycle(n)}
		}
		rec.Cycle.AddStacker(st)
		if err := store.PutRewardCycle(ctx, txn, rec); err != nil {
			return err
		}
	}
	return nil
}

// applyCycleBoundary feeds this block's burn into the active cycle's
// pool, and seals the cycle once its final height is processed — per
// §4.8, sealing is one-shot and produces the cycle's locker payouts,
// which are real L1 transfer requests surfaced to C10's output rather
// than L2 credits.
func (e *Engine) applyCycleBoundary(ctx context.Context, txn store.Txn, height uint64, blockBurn uint64) (*cycleSealedEvent, error) {
	cycleN := e.calendar.CurrentCycle(height)
	rec, ok, err := store.GetRewardCycle(ctx, txn, cycleN)
	if err != nil {
		return nil, err
	}
	if !ok {
		rec = store.RewardCycleRecord{Cycle: *stacking.NewRewardCycle(cycleN)}
	}
	rec.Cycle.AddBurn(blockBurn)
	if err := store.PutRewardCycle(ctx, txn, rec); err != nil {
		return nil, err
	}

	isLastHeightOfCycle := e.calendar.CycleLength > 0 && height%e.calendar.CycleLength == e.calendar.CycleLength-1
	if !isLastHeightOfCycle || rec.Cycle.Sealed {
		return nil, nil
	}

	payouts, err := rec.Cycle.Seal(e.conversionFactor)
	if err != nil {
		if chainerr.Is(err, chainerr.KindInvalidState) {
			return nil, nil // already sealed; idempotent per §4.8
		}
		return nil, err
	}
	rec.Payouts = payouts
	if err := store.PutRewardCycle(ctx, txn, rec); err != nil {
		return nil, err
	}
	for _, st := range rec.Cycle.Stackers {
		if err := store.PutStacking(ctx, txn, st.Stacker, st); err != nil {
			return nil, err
		}
	}
	return &cycleSealedEvent{
		cycleNumber:  cycleN,
		totalStacked: rec.Cycle.TotalStacked,
		rewardPool:   rec.Cycle.RewardPool,
		payoutCount:  len(payouts),
	}, nil
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

// serializeOpsForHash produces a fixed, deterministic byte serialization
// of a round's operations for ops_hash, per §4.6's fixed-serialization,
// no-map-iteration requirement. Inputs are already in vtxindex order
// because that is the order they were parsed from the block's tx list.
func serializeOpsForHash(leaderCommits []opcodes.LeaderCommit, stackLocks []opcodes.StackLock, burns []opcodes.Burn) []byte {
	var buf []byte
	for _, op := range leaderCommits {
		buf = append(buf, opcodes.EncodeLeaderCommit(op)...)
	}
	for _, op := range stackLocks {
		buf = append(buf, opcodes.EncodeStackLock(op)...)
	}
	for _, op := range burns {
		buf = append(buf, opcodes.EncodeBurn(op)...)
	}
	return buf
}
