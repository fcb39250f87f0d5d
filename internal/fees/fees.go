// Package fees implements the Fee Engine (C9): per-tx fee computation and
// the miner/locker/treasury/burn distribution split, per spec.md §4.12.
package fees

// OpKind identifies which per-operation cost table entry applies.
type OpKind int

const (
	OpTransfer OpKind = iota
	OpContractCall
	OpContractDeploy
	OpCoinbase
)

// opSpecificCost returns the base operation cost for each kind, per
// original_source's BTCZSFees::calculate_bitcoinz_operation_fee table.
func opSpecificCost(kind OpKind) uint64 {
	switch kind {
	case OpTransfer:
		return 1000
	case OpContractCall:
		return 2000
	case OpContractDeploy:
		return 5000
	case OpCoinbase:
		return 0
	default:
		return 1000
	}
}

// Config holds the fee engine's tunable parameters (config.FeeConfig).
type Config struct {
	BaseFeeRate      uint64
	MinFee           uint64
	MaxFee           uint64
	CongestionFactor float64 // advisory, in [0.0, 2.0]
}

// Quote is the itemized breakdown of a single compute_fee call.
type Quote struct {
	Base        uint64
	Size        uint64
	Operation   uint64
	Congestion  uint64
	Total       uint64
}

// Compute implements compute_fee(tx): base + size + operation + congestion,
// clamped to [MinFee, MaxFee].
func Compute(cfg Config, kind OpKind, sizeBytes uint64, amount uint64) Quote {
	base := cfg.MinFee
	size := sizeBytes * cfg.BaseFeeRate
	operation := opSpecificCost(kind)
	if kind == OpTransfer {
		operation = scaledTransferCost(operation, amount, cfg.MaxFee)
	}

	congestionFactor := cfg.CongestionFactor
	if congestionFactor < 0 {
		congestionFactor = 0
	}
	if congestionFactor > 2.0 {
		congestionFactor = 2.0
	}
	congestion := uint64(float64(size+operation) * congestionFactor)

	total := base + size + operation + congestion
	if total < cfg.MinFee {
		total = cfg.MinFee
	}
	if total > cfg.MaxFee {
		total = cfg.MaxFee
	}

	return Quote{Base: base, Size: size, Operation: operation, Congestion: congestion, Total: total}
}

// scaledTransferCost scales the transfer's operation cost by amount the
// way a basis-point surcharge would, capped so a single transfer's
// operation component never alone exceeds maxFee.
func scaledTransferCost(base uint64, amount uint64, maxFee uint64) uint64 {
	scaled := base + amount/10000 // 1 basis point of the transferred amount
	if scaled > maxFee {
		return maxFee
	}
	return scaled
}

// Distribution is the 60/25/10/5 split applied when a block is anchored
// (spec.md §4.12). Integer remainder is folded into Treasury.
type Distribution struct {
	Miner     uint64
	LockerPool uint64
	Treasury  uint64
	Burned    uint64
}

// Distribute splits totalFees per the fixed policy percentages, folding
// the integer-division remainder into Treasury.
func Distribute(totalFees uint64) Distribution {
	miner := totalFees * 60 / 100
	locker := totalFees * 25 / 100
	burned := totalFees * 5 / 100
	treasury := totalFees - miner - locker - burned
	return Distribution{Miner: miner, LockerPool: locker, Treasury: treasury, Burned: burned}
}
