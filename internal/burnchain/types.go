// Package burnchain implements the Burnchain Indexer (C3): sequential
// height-range sync against the L1 node, converting its wire blocks into
// the internal L1Block/L1Tx model that C4 (internal/opcodes) consumes.
package burnchain

import (
	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/util"
)

// L1Tx is one indexed L1 transaction, reduced to the fields an operation
// parser needs: its identity and whatever OP_RETURN-style payload it
// carries (nil if none).
type L1Tx struct {
	Txid            [32]byte
	Vtxindex        uint32
	OpReturnPayload []byte
}

// L1Block is one indexed L1 block, parsed to verbosity-2 detail (full tx
// bodies) per §4.3.
type L1Block struct {
	Height     uint64
	Hash       [32]byte
	ParentHash [32]byte
	Timestamp  uint64
	Txs        []L1Tx
}

func parseHash(hexStr string) ([32]byte, error) {
	var out [32]byte
	if !util.ValidateHash(hexStr) {
		return out, chainerr.New(chainerr.KindInvalidByteSequence, "malformed 32-byte hash: "+hexStr)
	}
	b := util.MustHexToBytes(hexStr)
	copy(out[:], b)
	return out, nil
}

// opReturnOpcode is the Bitcoin-family script opcode marking a
// provably-unspendable data output.
const opReturnOpcode = 0x6a

// extractOpReturnPayload decodes a scriptPubKey hex string and, if it is an
// OP_RETURN script, returns the pushed data bytes. Returns nil (not an
// error) for any non-OP_RETURN output.
func extractOpReturnPayload(scriptHex string) ([]byte, error) {
	script, err := util.HexToBytes(scriptHex)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.KindInvalidByteSequence, "malformed scriptPubKey hex", err)
	}
	if len(script) == 0 || script[0] != opReturnOpcode {
		return nil, nil
	}
	return decodePushData(script[1:])
}

// decodePushData reads one push-data opcode and its payload from the start
// of script, per the standard Bitcoin script push-data encoding.
func decodePushData(script []byte) ([]byte, error) {
	if len(script) == 0 {
		return nil, nil
	}
	op := script[0]
	switch {
	case op >= 0x01 && op <= 0x4b:
		n := int(op)
		if len(script) < 1+n {
			return nil, chainerr.New(chainerr.KindInvalidByteSequence, "truncated OP_RETURN push data")
		}
		return script[1 : 1+n], nil
	case op == 0x4c: // OP_PUSHDATA1
		if len(script) < 2 {
			return nil, chainerr.New(chainerr.KindInvalidByteSequence, "truncated OP_PUSHDATA1 length")
		}
		n := int(script[1])
		if len(script) < 2+n {
			return nil, chainerr.New(chainerr.KindInvalidByteSequence, "truncated OP_PUSHDATA1 payload")
		}
		return script[2 : 2+n], nil
	case op == 0x4d: // OP_PUSHDATA2
		if len(script) < 3 {
			return nil, chainerr.New(chainerr.KindInvalidByteSequence, "truncated OP_PUSHDATA2 length")
		}
		n := int(script[1]) | int(script[2])<<8
		if len(script) < 3+n {
			return nil, chainerr.New(chainerr.KindInvalidByteSequence, "truncated OP_PUSHDATA2 payload")
		}
		return script[3 : 3+n], nil
	default:
		return nil, nil
	}
}
