package opcodes

import (
	"encoding/binary"

	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/l1addr"
	"github.com/btczs/btczs-l2/internal/l2addr"
)

// addrWireLen is the fixed wire size of an encoded l1addr.Address: 1 type
// byte, 1 network byte, 20 hash bytes.
const addrWireLen = 22

// encodeAddr serializes an l1addr.Address to its fixed 22-byte wire form.
// Shielded addresses are truncated/padded to 20 bytes like every other
// type; the payload they actually carry is opaque at this layer.
func encodeAddr(a l1addr.Address) []byte {
	out := make([]byte, addrWireLen)
	out[0] = byte(a.Type)
	out[1] = byte(a.Network)
	n := len(a.Bytes)
	if n > 20 {
		n = 20
	}
	copy(out[2:2+n], a.Bytes[:n])
	return out
}

func decodeAddr(b []byte) (l1addr.Address, error) {
	if len(b) < addrWireLen {
		return l1addr.Address{}, chainerr.New(chainerr.KindInvalidByteSequence, "address payload too short")
	}
	return l1addr.Address{
		Type:    l1addr.Type(b[0]),
		Network: l1addr.Network(b[1]),
		Bytes:   append([]byte(nil), b[2:22]...),
	}, nil
}

// encodeRewardAddr serializes an l2addr.RewardAddress to the same 22-byte
// wire shape as encodeAddr (1 mode byte, 1 version/chain-tag byte, 20
// payload bytes) — distinct address space, same wire layout.
func encodeRewardAddr(r l2addr.RewardAddress) []byte {
	out := make([]byte, addrWireLen)
	out[0] = byte(r.Mode)
	out[1] = r.L2.Version
	if r.Mode == l2addr.ModeOpaque {
		n := len(r.Opaque)
		if n > 20 {
			n = 20
		}
		copy(out[2:2+n], r.Opaque[:n])
	} else {
		copy(out[2:22], r.L2.Hash20[:])
	}
	return out
}

func decodeRewardAddr(b []byte) (l2addr.RewardAddress, error) {
	if len(b) < addrWireLen {
		return l2addr.RewardAddress{}, chainerr.New(chainerr.KindInvalidByteSequence, "reward address payload too short")
	}
	mode := l2addr.Mode(b[0])
	version := b[1]
	if mode == l2addr.ModeOpaque {
		return l2addr.NewOpaque(version, b[2:22]), nil
	}
	var hash20 [20]byte
	copy(hash20[:], b[2:22])
	return l2addr.NewL2(version, hash20), nil
}

// EncodeLeaderCommit serializes op into its OP_RETURN payload:
//
//	magic(4) | tag(1)=0x01 | sender(22) | burn_fee(8 BE) | num_outputs(1) |
//	outputs(22 each) | block_header_hash(32) | vrf_seed(32) |
//	key_ptr(8 BE) | key_index(4 BE) | parent_ptr(8 BE) | parent_index(4 BE)
func EncodeLeaderCommit(op LeaderCommit) []byte {
	buf := make([]byte, 0, 5+addrWireLen+8+1+len(op.CommitOutputs)*addrWireLen+32+32+8+4+8+4)
	buf = append(buf, Magic[:]...)
	buf = append(buf, byte(TagLeaderCommit))
	buf = append(buf, encodeAddr(op.Sender)...)
	buf = appendU64(buf, op.BurnFee)
	buf = append(buf, byte(len(op.CommitOutputs)))
	for _, out := range op.CommitOutputs {
		buf = append(buf, encodeRewardAddr(out)...)
	}
	buf = append(buf, op.BlockHeaderHash[:]...)
	buf = append(buf, op.VRFSeed[:]...)
	buf = appendU64(buf, op.KeyPtr)
	buf = appendU32(buf, op.KeyIndex)
	buf = appendU64(buf, op.ParentPtr)
	buf = appendU32(buf, op.ParentIndex)
	return buf
}

// EncodeStackLock serializes op into its OP_RETURN payload:
//
//	magic(4) | tag(1)=0x02 | sender_len(1) | sender (L2 address bytes) |
//	reward_addr(22) | stacked_amount(8 BE) | num_cycles(1)
func EncodeStackLock(op StackLock) []byte {
	sender := []byte(op.Sender)
	buf := make([]byte, 0, 5+1+len(sender)+addrWireLen+8+1)
	buf = append(buf, Magic[:]...)
	buf = append(buf, byte(TagStackLock))
	buf = append(buf, byte(len(sender)))
	buf = append(buf, sender...)
	buf = append(buf, encodeAddr(op.RewardAddr)...)
	buf = appendU64(buf, op.StackedAmount)
	buf = append(buf, op.NumCycles)
	return buf
}

// EncodeBurn serializes op into its OP_RETURN payload:
//
//	magic(4) | tag(1)=0x03 | sender(22) | amount(8 BE) | reward_addr(22)
func EncodeBurn(op Burn) []byte {
	buf := make([]byte, 0, 5+addrWireLen+8+addrWireLen)
	buf = append(buf, Magic[:]...)
	buf = append(buf, byte(TagBurn))
	buf = append(buf, encodeAddr(op.Sender)...)
	buf = appendU64(buf, op.Amount)
	buf = append(buf, encodeAddr(op.RewardAddr)...)
	return buf
}

// Parse decodes an OP_RETURN-style payload into a typed Operation. It
// returns (nil, nil) when the payload does not carry the magic prefix —
// per spec, "not an L2 op" is not an error. An unrecognized op-type tag
// following a valid magic prefix is also (nil, nil): unknown future op
// kinds are ignored, not rejected.
func Parse(payload []byte, ctx TxContext) (Operation, error) {
	if len(payload) < 5 || payload[0] != Magic[0] || payload[1] != Magic[1] || payload[2] != Magic[2] || payload[3] != Magic[3] {
		return nil, nil
	}
	tag := Tag(payload[4])
	body := payload[5:]

	switch tag {
	case TagLeaderCommit:
		return parseLeaderCommit(body, ctx)
	case TagStackLock:
		return parseStackLock(body, ctx)
	case TagBurn:
		return parseBurn(body, ctx)
	default:
		return nil, nil
	}
}

func parseLeaderCommit(body []byte, ctx TxContext) (Operation, error) {
	if len(body) < addrWireLen+8+1 {
		return nil, chainerr.New(chainerr.KindInvalidByteSequence, "leader commit payload too short")
	}
	off := 0
	sender, err := decodeAddr(body[off : off+addrWireLen])
	if err != nil {
		return nil, err
	}
	off += addrWireLen

	burnFee := binary.BigEndian.Uint64(body[off : off+8])
	off += 8

	numOutputs := int(body[off])
	off++

	need := numOutputs*addrWireLen + 32 + 32 + 8 + 4 + 8 + 4
	if len(body)-off < need {
		return nil, chainerr.New(chainerr.KindInvalidByteSequence, "leader commit payload truncated")
	}

	outputs := make([]l2addr.RewardAddress, numOutputs)
	for i := 0; i < numOutputs; i++ {
		outputs[i], err = decodeRewardAddr(body[off : off+addrWireLen])
		if err != nil {
			return nil, err
		}
		off += addrWireLen
	}

	var blockHeaderHash, vrfSeed [32]byte
	copy(blockHeaderHash[:], body[off:off+32])
	off += 32
	copy(vrfSeed[:], body[off:off+32])
	off += 32

	keyPtr := binary.BigEndian.Uint64(body[off : off+8])
	off += 8
	keyIndex := binary.BigEndian.Uint32(body[off : off+4])
	off += 4
	parentPtr := binary.BigEndian.Uint64(body[off : off+8])
	off += 8
	parentIndex := binary.BigEndian.Uint32(body[off : off+4])

	return LeaderCommit{
		TxContext:       ctx,
		Sender:          sender,
		BurnFee:         burnFee,
		CommitOutputs:   outputs,
		BlockHeaderHash: blockHeaderHash,
		VRFSeed:         vrfSeed,
		KeyPtr:          keyPtr,
		KeyIndex:        keyIndex,
		ParentPtr:       parentPtr,
		ParentIndex:     parentIndex,
	}, nil
}

func parseStackLock(body []byte, ctx TxContext) (Operation, error) {
	if len(body) < 1 {
		return nil, chainerr.New(chainerr.KindInvalidByteSequence, "stack lock payload too short")
	}
	senderLen := int(body[0])
	off := 1
	if len(body)-off < senderLen+addrWireLen+8+1 {
		return nil, chainerr.New(chainerr.KindInvalidByteSequence, "stack lock payload truncated")
	}
	sender := string(body[off : off+senderLen])
	off += senderLen

	rewardAddr, err := decodeAddr(body[off : off+addrWireLen])
	if err != nil {
		return nil, err
	}
	off += addrWireLen

	stackedAmount := binary.BigEndian.Uint64(body[off : off+8])
	off += 8
	numCycles := body[off]

	return StackLock{
		TxContext:     ctx,
		Sender:        sender,
		RewardAddr:    rewardAddr,
		StackedAmount: stackedAmount,
		NumCycles:     numCycles,
	}, nil
}

func parseBurn(body []byte, ctx TxContext) (Operation, error) {
	if len(body) < addrWireLen+8+addrWireLen {
		return nil, chainerr.New(chainerr.KindInvalidByteSequence, "burn payload too short")
	}
	off := 0
	sender, err := decodeAddr(body[off : off+addrWireLen])
	if err != nil {
		return nil, err
	}
	off += addrWireLen

	amount := binary.BigEndian.Uint64(body[off : off+8])
	off += 8

	rewardAddr, err := decodeAddr(body[off : off+addrWireLen])
	if err != nil {
		return nil, err
	}

	return Burn{
		TxContext:  ctx,
		Sender:     sender,
		Amount:     amount,
		RewardAddr: rewardAddr,
	}, nil
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
