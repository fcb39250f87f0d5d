// Package l1addr implements the L1 (BitcoinZ-style) address codec: address
// type discrimination and Base58Check encoding/decoding.
package l1addr

import (
	"crypto/sha256"
	"math/big"
	"strings"

	"github.com/btczs/btczs-l2/internal/chainerr"
)

// Network identifies which L1 network an address belongs to.
type Network int

const (
	Mainnet Network = iota
	Testnet
	Regtest
)

// Type discriminates the three L1 address shapes.
type Type int

const (
	PublicKeyHash Type = iota
	ScriptHash
	Shielded
)

// versionByte returns the Base58Check version byte for (Type, Network).
// Mainnet P2PKH/P2SH share 0x1C; testnet and regtest share 0x1D; shielded
// addresses do not use a version byte at all.
func versionByte(t Type, n Network) (byte, bool) {
	switch t {
	case PublicKeyHash, ScriptHash:
		if n == Mainnet {
			return 0x1C, true
		}
		return 0x1D, true
	default:
		return 0, false
	}
}

// Address is a decoded L1 address: a type tag, the network it was decoded
// for, and the raw hash/payload bytes (20-byte hash160 for PubKeyHash/
// ScriptHash, an opaque payload for Shielded).
type Address struct {
	Type    Type
	Network Network
	Bytes   []byte
}

// FromPublicKeyHash builds a P2PKH address from a 20-byte hash160.
func FromPublicKeyHash(network Network, hash160 []byte) Address {
	return Address{Type: PublicKeyHash, Network: network, Bytes: append([]byte(nil), hash160...)}
}

// FromScriptHash builds a P2SH address from a 20-byte hash160.
func FromScriptHash(network Network, hash160 []byte) Address {
	return Address{Type: ScriptHash, Network: network, Bytes: append([]byte(nil), hash160...)}
}

const shieldedPrefix = "zs1"

// doubleSHA256 is the Base58Check checksum primitive.
func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}

// Encode renders the address as its Base58Check (or shielded-placeholder)
// string form.
func (a Address) Encode() string {
	if a.Type == Shielded {
		n := len(a.Bytes)
		if n > 4 {
			n = 4
		}
		return shieldedPrefix + bytesToHex(a.Bytes[:n])
	}

	version, ok := versionByte(a.Type, a.Network)
	if !ok {
		return ""
	}
	payload := append([]byte{version}, a.Bytes...)
	checksum := doubleSHA256(payload)
	payload = append(payload, checksum[:4]...)
	return base58Encode(payload)
}

func (a Address) String() string { return a.Encode() }

// Decode parses a Base58Check or shielded address string for the given
// network. Shielded addresses are recognized and returned but are never
// valid reward targets — callers that accept a reward address must reject
// Type == Shielded themselves with chainerr.KindInvalidInput.
func Decode(s string, network Network) (Address, error) {
	if strings.HasPrefix(s, shieldedPrefix) {
		hexPart := s[len(shieldedPrefix):]
		if len(hexPart) < 8 {
			return Address{}, chainerr.New(chainerr.KindInvalidByteSequence, "shielded address payload too short")
		}
		bytes, err := hexToBytes(hexPart[:8])
		if err != nil {
			return Address{}, chainerr.Wrap(chainerr.KindInvalidByteSequence, "invalid shielded address payload", err)
		}
		return Address{Type: Shielded, Network: network, Bytes: bytes}, nil
	}

	decoded, err := base58Decode(s)
	if err != nil {
		return Address{}, chainerr.Wrap(chainerr.KindInvalidByteSequence, "invalid base58check address", err)
	}
	if len(decoded) < 25 {
		return Address{}, chainerr.New(chainerr.KindInvalidByteSequence, "decoded address too short")
	}

	payload := decoded[:len(decoded)-4]
	checksum := decoded[len(decoded)-4:]
	want := doubleSHA256(payload)
	if string(checksum) != string(want[:4]) {
		return Address{}, chainerr.New(chainerr.KindInvalidByteSequence, "address checksum mismatch")
	}

	version := payload[0]
	hashBytes := payload[1:]

	var addrType Type
	switch version {
	case 0x1C, 0x1D:
		addrType = PublicKeyHash
	default:
		return Address{}, chainerr.New(chainerr.KindInvalidByteSequence, "unrecognized address version byte")
	}

	wantVersion, ok := versionByte(addrType, network)
	if !ok || version != wantVersion {
		return Address{}, chainerr.New(chainerr.KindInvalidByteSequence, "address version byte does not match requested network")
	}

	return Address{Type: addrType, Network: network, Bytes: append([]byte(nil), hashBytes...)}, nil
}

// IsValidForNetwork reports whether the address was decoded for network n.
func (a Address) IsValidForNetwork(n Network) bool {
	return a.Network == n
}

// IsRewardEligible reports whether this address type can receive a mining
// or stacking reward. Shielded addresses are never eligible.
func (a Address) IsRewardEligible() bool {
	return a.Type != Shielded
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func base58Encode(input []byte) string {
	if len(input) == 0 {
		return ""
	}

	leadingZeros := 0
	for _, b := range input {
		if b != 0 {
			break
		}
		leadingZeros++
	}

	num := new(big.Int).SetBytes(input)
	var encoded []byte
	zero := new(big.Int)
	base := big.NewInt(58)
	mod := new(big.Int)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		encoded = append(encoded, base58Alphabet[mod.Int64()])
	}

	result := make([]byte, 0, leadingZeros+len(encoded))
	for i := 0; i < leadingZeros; i++ {
		result = append(result, '1')
	}
	for i := len(encoded) - 1; i >= 0; i-- {
		result = append(result, encoded[i])
	}
	return string(result)
}

func base58Decode(input string) ([]byte, error) {
	if input == "" {
		return nil, nil
	}

	leadingOnes := 0
	for _, c := range input {
		if c != '1' {
			break
		}
		leadingOnes++
	}

	num := new(big.Int)
	base := big.NewInt(58)
	for _, c := range input {
		pos := strings.IndexRune(base58Alphabet, c)
		if pos < 0 {
			return nil, chainerr.New(chainerr.KindInvalidByteSequence, "invalid base58 character")
		}
		num.Mul(num, base)
		num.Add(num, big.NewInt(int64(pos)))
	}

	bodyBytes := num.Bytes()
	result := make([]byte, 0, leadingOnes+len(bodyBytes))
	for i := 0; i < leadingOnes; i++ {
		result = append(result, 0)
	}
	result = append(result, bodyBytes...)
	return result, nil
}

func hexToBytes(s string) ([]byte, error) {
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := hexByte(s[i*2], s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func hexByte(hi, lo byte) (byte, error) {
	h, err := hexNibble(hi)
	if err != nil {
		return 0, err
	}
	l, err := hexNibble(lo)
	if err != nil {
		return 0, err
	}
	return h<<4 | l, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, chainerr.New(chainerr.KindInvalidByteSequence, "invalid hex digit")
	}
}

func bytesToHex(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0x0f]
	}
	return string(out)
}
