// Package issuance implements the halving reward schedule and supply cap
// of spec.md §4.11, grounded on original_source's BTCZSRewards functions.
package issuance

// Schedule holds the issuance parameters pinned per network (§6).
type Schedule struct {
	GenesisReward   uint64
	HalvingInterval uint64
	TotalSupply     uint64
	MinBurn         uint64
}

// BlockReward returns the base coinbase reward at L2 height h:
// GENESIS_REWARD >> (h / HALVING_INTERVAL), floored at 0 (P3).
func (s Schedule) BlockReward(height uint64) uint64 {
	if s.HalvingInterval == 0 {
		return 0
	}
	halvings := height / s.HalvingInterval
	reward := s.GenesisReward
	for i := uint64(0); i < halvings; i++ {
		reward /= 2
		if reward == 0 {
			return 0
		}
	}
	return reward
}

// miningBurnBonusFactor is the micro-units minted per L1 zatoshi of burn
// fee in excess of MinBurn, per BTCZSRewards::calculate_mining_reward.
const miningBurnBonusFactor = 10

// MiningReward returns the total coinbase mint for the winning leader at
// height h: the base block reward plus a burn bonus proportional to the
// excess of the winning commit's burn_fee over MinBurn.
func (s Schedule) MiningReward(height uint64, burnFee uint64) uint64 {
	base := s.BlockReward(height)
	var bonus uint64
	if burnFee > s.MinBurn {
		excess := burnFee - s.MinBurn
		bonus = excess * miningBurnBonusFactor
	}
	return base + bonus
}

// RemainingSupply returns how much may still be minted given mintedSoFar,
// enforcing P2's supply cap at mint time.
func (s Schedule) RemainingSupply(mintedSoFar uint64) uint64 {
	if mintedSoFar >= s.TotalSupply {
		return 0
	}
	return s.TotalSupply - mintedSoFar
}

// ClampToSupply returns the portion of amount that can still be minted
// without exceeding TotalSupply, given mintedSoFar already issued.
func (s Schedule) ClampToSupply(amount, mintedSoFar uint64) uint64 {
	remaining := s.RemainingSupply(mintedSoFar)
	if amount > remaining {
		return remaining
	}
	return amount
}
