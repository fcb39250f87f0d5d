// Package sortitionhash implements the domain-separated BLAKE3 PRFs used
// for sortition_hash, ops_hash, and consensus_hash (spec.md §4.6, resolved
// in SPEC_FULL.md's Open Question #2).
package sortitionhash

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

const (
	tagSortition = "btczs-l2/sortition/v1"
	tagOps       = "btczs-l2/ops/v1"
	tagConsensus = "btczs-l2/consensus/v1"
)

func digest(tag string, parts ...[]byte) [32]byte {
	h := blake3.New()
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Sortition computes sortition_hash = BLAKE3(tag || parent_consensus_hash ||
// burn_header_hash || height_be64).
func Sortition(parentConsensusHash, burnHeaderHash [32]byte, height uint64) [32]byte {
	var heightBE [8]byte
	binary.BigEndian.PutUint64(heightBE[:], height)
	return digest(tagSortition, parentConsensusHash[:], burnHeaderHash[:], heightBE[:])
}

// Ops computes ops_hash over the big-endian, vtxindex-sorted serialization
// of a snapshot's operations. Callers are responsible for producing that
// serialization deterministically (fixed field order, no map iteration)
// before calling this function.
func Ops(sortedOpsSerialization []byte) [32]byte {
	return digest(tagOps, sortedOpsSerialization)
}

// Consensus computes consensus_hash = BLAKE3(tag || prior_consensus_hash ||
// ops_hash).
func Consensus(priorConsensusHash, opsHash [32]byte) [32]byte {
	return digest(tagConsensus, priorConsensusHash[:], opsHash[:])
}

// ReduceMod128 takes a 32-byte BLAKE3 digest and reduces it into a
// 128-bit-equivalent draw value by XOR-folding the upper and lower halves.
// Despite the name, this is not a reduction mod 2^128 (which would keep
// only the low 16 bytes): every digest byte feeds the draw. The result
// is returned as a big-endian 16-byte array for use by internal/sortition.
func ReduceMod128(digest [32]byte) [16]byte {
	var out [16]byte
	for i := 0; i < 16; i++ {
		out[i] = digest[i] ^ digest[i+16]
	}
	return out
}
