package stacks

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// c32 is the Crockford-style base32 alphabet used by Stacks addresses.
// Note the absence of I, L, O and U.
const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Address version bytes for standard (single-sig) principals.
const (
	AddressVersionMainnet = 22 // 'P' -> addresses starting with "SP"
	AddressVersionTestnet = 26 // 'T' -> addresses starting with "ST"
)

var c32Reverse = func() map[byte]int64 {
	m := make(map[byte]int64, len(c32Alphabet))
	for i := 0; i < len(c32Alphabet); i++ {
		m[c32Alphabet[i]] = int64(i)
	}
	return m
}()

// c32Checksum is the first four bytes of sha256(sha256(version || payload)).
func c32Checksum(version byte, payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, version)
	buf = append(buf, payload...)
	first := sha256.Sum256(buf)
	second := sha256.Sum256(first[:])
	return second[:4]
}

// c32Encode encodes raw bytes in the c32 alphabet. Each leading zero byte
// of the input contributes one leading '0' character, mirroring base58-style
// zero preservation.
func c32Encode(data []byte) string {
	zeros := 0
	for zeros < len(data) && data[zeros] == 0 {
		zeros++
	}

	n := new(big.Int).SetBytes(data)
	base := big.NewInt(int64(len(c32Alphabet)))
	mod := new(big.Int)

	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		out = append(out, c32Alphabet[mod.Int64()])
	}
	for i := 0; i < zeros; i++ {
		out = append(out, '0')
	}

	// Digits were produced least-significant first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// c32Decode decodes a c32 string into bytes of the given length.
// The expected length disambiguates leading zero bytes.
func c32Decode(s string, size int) ([]byte, error) {
	n := new(big.Int)
	base := big.NewInt(int64(len(c32Alphabet)))
	for i := 0; i < len(s); i++ {
		v, ok := c32Reverse[s[i]]
		if !ok {
			return nil, fmt.Errorf("invalid c32 character %q", s[i])
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(v))
	}
	raw := n.Bytes()
	if len(raw) > size {
		return nil, fmt.Errorf("c32 payload longer than %d bytes", size)
	}
	out := make([]byte, size)
	copy(out[size-len(raw):], raw)
	return out, nil
}

// C32Address renders a standard principal (version byte + hash160) as a
// Stacks address string, e.g. "ST...".
func C32Address(version byte, hash160 []byte) (string, error) {
	if len(hash160) != 20 {
		return "", fmt.Errorf("hash160 must be 20 bytes, got %d", len(hash160))
	}
	if int(version) >= len(c32Alphabet) {
		return "", fmt.Errorf("invalid address version %d", version)
	}
	payload := make([]byte, 0, 24)
	payload = append(payload, hash160...)
	payload = append(payload, c32Checksum(version, hash160)...)
	return "S" + string(c32Alphabet[version]) + c32Encode(payload), nil
}

// DecodeC32Address parses a Stacks address back into its version byte and
// hash160, verifying the checksum.
func DecodeC32Address(address string) (byte, []byte, error) {
	if len(address) < 3 || address[0] != 'S' {
		return 0, nil, fmt.Errorf("invalid stacks address %q", address)
	}
	version, ok := c32Reverse[address[1]]
	if !ok {
		return 0, nil, fmt.Errorf("invalid address version character %q", address[1])
	}
	payload, err := c32Decode(address[2:], 24)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid address payload: %w", err)
	}
	hash160 := payload[:20]
	if !bytes.Equal(c32Checksum(byte(version), hash160), payload[20:]) {
		return 0, nil, fmt.Errorf("address checksum mismatch for %q", address)
	}
	return byte(version), hash160, nil
}
