package l1addr

import (
	"bytes"
	"testing"

	"github.com/btczs/btczs-l2/internal/chainerr"
)

func hash160Fixture() []byte {
	b := make([]byte, 20)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

func TestBase58RoundTrip(t *testing.T) {
	tests := [][]byte{
		[]byte("hello world"),
		{0x00, 0x00, 0x01, 0x02, 0x03},
		{},
		{0xff, 0xff, 0xff, 0xff},
	}
	for _, in := range tests {
		enc := base58Encode(in)
		dec, err := base58Decode(enc)
		if err != nil {
			t.Fatalf("base58Decode(%q) error = %v", enc, err)
		}
		if !bytes.Equal(dec, in) {
			t.Errorf("round trip %x => %q => %x, want %x", in, enc, dec, in)
		}
	}
}

func TestPublicKeyHashEncodeDecode(t *testing.T) {
	hash := hash160Fixture()
	tests := []struct {
		name    string
		network Network
		version byte
	}{
		{"mainnet", Mainnet, 0x1C},
		{"testnet", Testnet, 0x1D},
		{"regtest", Regtest, 0x1D},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := FromPublicKeyHash(tt.network, hash)
			encoded := addr.Encode()
			if encoded == "" {
				t.Fatal("Encode() returned empty string")
			}

			decoded, err := Decode(encoded, tt.network)
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", encoded, err)
			}
			if decoded.Type != PublicKeyHash {
				t.Errorf("decoded type = %v, want PublicKeyHash", decoded.Type)
			}
			if !bytes.Equal(decoded.Bytes, hash) {
				t.Errorf("decoded bytes = %x, want %x", decoded.Bytes, hash)
			}
			if !decoded.IsValidForNetwork(tt.network) {
				t.Error("IsValidForNetwork should be true for the decode network")
			}
			if !decoded.IsRewardEligible() {
				t.Error("P2PKH address should be reward-eligible")
			}
		})
	}
}

func TestScriptHashEncodeDecode(t *testing.T) {
	hash := hash160Fixture()
	addr := FromScriptHash(Mainnet, hash)
	encoded := addr.Encode()

	decoded, err := Decode(encoded, Mainnet)
	if err != nil {
		t.Fatalf("Decode(%q) error = %v", encoded, err)
	}
	// version byte alone can't distinguish P2PKH from P2SH on this chain
	// (both use 0x1C/0x1D); decoding conservatively yields PublicKeyHash.
	if decoded.Type != PublicKeyHash {
		t.Errorf("decoded type = %v", decoded.Type)
	}
	if !bytes.Equal(decoded.Bytes, hash) {
		t.Errorf("decoded bytes = %x, want %x", decoded.Bytes, hash)
	}
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	hash := hash160Fixture()
	addr := FromPublicKeyHash(Mainnet, hash)
	encoded := addr.Encode()
	corrupted := encoded[:len(encoded)-1] + "9"
	if corrupted == encoded {
		corrupted = encoded[:len(encoded)-1] + "8"
	}

	_, err := Decode(corrupted, Mainnet)
	if err == nil {
		t.Fatal("Decode should reject a corrupted checksum")
	}
	if !chainerr.Is(err, chainerr.KindInvalidByteSequence) {
		t.Errorf("error kind = %v, want InvalidByteSequence", err)
	}
}

func TestDecodeRejectsForeignNetwork(t *testing.T) {
	hash := hash160Fixture()
	encoded := FromPublicKeyHash(Mainnet, hash).Encode()

	if _, err := Decode(encoded, Testnet); err == nil {
		t.Fatal("Decode should reject a mainnet address decoded as testnet")
	} else if !chainerr.Is(err, chainerr.KindInvalidByteSequence) {
		t.Errorf("error kind = %v, want InvalidByteSequence", err)
	}

	// testnet and regtest share the same version byte and are mutually decodable.
	testnetEncoded := FromPublicKeyHash(Testnet, hash).Encode()
	if _, err := Decode(testnetEncoded, Regtest); err != nil {
		t.Errorf("Decode(testnet addr, Regtest) should succeed (shared version byte): %v", err)
	}
	if _, err := Decode(testnetEncoded, Mainnet); err == nil {
		t.Fatal("Decode should reject a testnet address decoded as mainnet")
	}
}

func TestDecodeRejectsTooShort(t *testing.T) {
	_, err := Decode("1", Mainnet)
	if err == nil {
		t.Fatal("Decode should reject an address too short to hold a checksum")
	}
}

func TestShieldedAddressRejectedAsRewardTarget(t *testing.T) {
	payload := hash160Fixture()
	encoded := Address{Type: Shielded, Network: Mainnet, Bytes: payload}.Encode()

	decoded, err := Decode(encoded, Mainnet)
	if err != nil {
		t.Fatalf("Decode(%q) error = %v", encoded, err)
	}
	if decoded.Type != Shielded {
		t.Errorf("decoded type = %v, want Shielded", decoded.Type)
	}
	if decoded.IsRewardEligible() {
		t.Error("shielded address must not be reward-eligible")
	}
}

func TestShieldedAddressTooShortIsRejected(t *testing.T) {
	_, err := Decode("zs1ab", Mainnet)
	if err == nil {
		t.Fatal("Decode should reject a shielded address with too little payload")
	}
}
