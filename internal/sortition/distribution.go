// Package sortition implements the Sortition Engine (C6) and the
// reward-cycle calendar (§4.7): burn-weighted winner selection seeded from
// the L1 block, plus current_cycle/is_prepare helpers.
package sortition

import "math/big"

// u128Max is 2^128 - 1, the range every burn distribution partitions.
var u128Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Candidate is one LeaderCommit competing in a sortition round.
type Candidate struct {
	Index   int // position in validated-op input order
	BurnFee uint64
}

// Range is a candidate's assigned slice of [0, U128_MAX].
type Range struct {
	CandidateIndex int
	Start          *big.Int
	End            *big.Int // exclusive, except the last range which is inclusive of U128_MAX
}

// Distribution is the ordered set of ranges covering [0, U128_MAX]
// contiguously, proportional to each candidate's burn_fee.
type Distribution struct {
	Ranges []Range
	Total  uint64
}

// BuildDistribution implements spec.md §4.6 step 2-3: saturating multiply
// to assign each candidate's proportional range, with the last candidate's
// range_end forced to U128_MAX to close any rounding gap. Returns a
// distribution with zero ranges if there are no candidates or the total
// burn is zero (no sortition for this round).
func BuildDistribution(candidates []Candidate) Distribution {
	var total uint64
	for _, c := range candidates {
		total += c.BurnFee
	}
	if total == 0 || len(candidates) == 0 {
		return Distribution{Total: 0}
	}

	totalBig := big.NewInt(0).SetUint64(total)
	ranges := make([]Range, len(candidates))
	running := new(big.Int)

	for i, c := range candidates {
		// proportion = burn_fee * (U128_MAX / total), saturating multiply.
		quotient := new(big.Int).Div(u128Max, totalBig)
		proportion := new(big.Int).Mul(big.NewInt(0).SetUint64(c.BurnFee), quotient)
		if proportion.Cmp(u128Max) > 0 {
			proportion.Set(u128Max)
		}

		start := new(big.Int).Set(running)
		end := new(big.Int).Add(start, proportion)
		if end.Cmp(u128Max) > 0 {
			end.Set(u128Max)
		}

		ranges[i] = Range{CandidateIndex: c.Index, Start: start, End: end}
		running.Set(end)
	}

	// Force the last range's end to U128_MAX to close any rounding gap.
	if len(ranges) > 0 {
		ranges[len(ranges)-1].End = new(big.Int).Set(u128Max)
	}

	return Distribution{Ranges: ranges, Total: total}
}

// Winner returns the index (into the original candidates slice) of the
// candidate whose [Start, End) range contains draw, or -1 if there is no
// sortition (empty distribution). Since ranges partition [0, U128_MAX]
// contiguously, a winner always exists for a non-empty distribution and
// ties are impossible by construction.
func (d Distribution) Winner(draw *big.Int) int {
	for i, r := range d.Ranges {
		isLast := i == len(d.Ranges)-1
		if draw.Cmp(r.Start) < 0 {
			continue
		}
		if isLast {
			if draw.Cmp(r.End) <= 0 {
				return r.CandidateIndex
			}
			continue
		}
		if draw.Cmp(r.End) < 0 {
			return r.CandidateIndex
		}
	}
	return -1
}

// DrawFromBytes interprets a big-endian byte slice (typically the
// sortitionhash.ReduceMod128 output) as the unsigned integer draw r.
func DrawFromBytes(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
