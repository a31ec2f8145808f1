package stacks

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Clarity wire-format type prefixes (SIP-005 consensus serialization).
const (
	clarityTypeInt               = 0x00
	clarityTypeUInt              = 0x01
	clarityTypeBuffer            = 0x02
	clarityTypeBoolTrue          = 0x03
	clarityTypeBoolFalse         = 0x04
	clarityTypeStandardPrincipal = 0x05
	clarityTypeContractPrincipal = 0x06
	clarityTypeResponseOk        = 0x07
	clarityTypeResponseErr       = 0x08
	clarityTypeOptionalNone      = 0x09
	clarityTypeOptionalSome      = 0x0a
	clarityTypeList              = 0x0b
	clarityTypeTuple             = 0x0c
	clarityTypeStringASCII       = 0x0d
	clarityTypeStringUTF8        = 0x0e
)

// ClarityValue is a decoded Clarity value. Exactly one field group is
// meaningful depending on Type.
type ClarityValue struct {
	Type byte

	// UInt/Int values. Contract values here (amounts, counters, ids,
	// block heights) all fit in uint64; the high 64 bits of the wire's
	// 128-bit integers are rejected if set.
	UInt uint64

	Bool      bool
	Str       string                  // string-ascii / string-utf8
	Principal string                  // c32 address, with ".name" suffix for contract principals
	Buffer    []byte                  // buff
	Inner     *ClarityValue           // some / ok / err payload
	List      []ClarityValue          // list elements
	Tuple     map[string]ClarityValue // tuple fields
}

// IsNone reports whether the value is (none).
func (v ClarityValue) IsNone() bool { return v.Type == clarityTypeOptionalNone }

// EncodeUInt serializes a Clarity uint argument to its hex wire form.
func EncodeUInt(n uint64) string {
	buf := make([]byte, 17)
	buf[0] = clarityTypeUInt
	binary.BigEndian.PutUint64(buf[9:], n)
	return "0x" + hex.EncodeToString(buf)
}

// EncodeStringASCII serializes a Clarity string-ascii argument to its hex
// wire form. The string must already be validated as ASCII.
func EncodeStringASCII(s string) string {
	buf := make([]byte, 0, 5+len(s))
	buf = append(buf, clarityTypeStringASCII)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	buf = append(buf, s...)
	return "0x" + hex.EncodeToString(buf)
}

// IsASCII reports whether s contains only printable 7-bit characters, the
// only content a string-ascii argument can carry.
func IsASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// DecodeClarityHex parses a hex-encoded Clarity value as returned by the
// node's read-only call endpoint (with or without a "0x" prefix).
func DecodeClarityHex(s string) (ClarityValue, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return ClarityValue{}, fmt.Errorf("invalid clarity hex: %w", err)
	}
	v, rest, err := decodeClarity(raw)
	if err != nil {
		return ClarityValue{}, err
	}
	if len(rest) != 0 {
		return ClarityValue{}, fmt.Errorf("trailing %d bytes after clarity value", len(rest))
	}
	return v, nil
}

func decodeClarity(b []byte) (ClarityValue, []byte, error) {
	if len(b) == 0 {
		return ClarityValue{}, nil, fmt.Errorf("truncated clarity value")
	}
	typ, rest := b[0], b[1:]

	switch typ {
	case clarityTypeInt, clarityTypeUInt:
		if len(rest) < 16 {
			return ClarityValue{}, nil, fmt.Errorf("truncated 128-bit integer")
		}
		for _, hb := range rest[:8] {
			if hb != 0 {
				return ClarityValue{}, nil, fmt.Errorf("integer exceeds 64 bits")
			}
		}
		return ClarityValue{Type: typ, UInt: binary.BigEndian.Uint64(rest[8:16])}, rest[16:], nil

	case clarityTypeBoolTrue:
		return ClarityValue{Type: typ, Bool: true}, rest, nil
	case clarityTypeBoolFalse:
		return ClarityValue{Type: typ}, rest, nil

	case clarityTypeBuffer:
		n, rest, err := decodeLen(rest)
		if err != nil {
			return ClarityValue{}, nil, err
		}
		if len(rest) < n {
			return ClarityValue{}, nil, fmt.Errorf("truncated buffer")
		}
		buf := make([]byte, n)
		copy(buf, rest[:n])
		return ClarityValue{Type: typ, Buffer: buf}, rest[n:], nil

	case clarityTypeStandardPrincipal:
		addr, rest, err := decodePrincipal(rest)
		if err != nil {
			return ClarityValue{}, nil, err
		}
		return ClarityValue{Type: typ, Principal: addr}, rest, nil

	case clarityTypeContractPrincipal:
		addr, rest, err := decodePrincipal(rest)
		if err != nil {
			return ClarityValue{}, nil, err
		}
		if len(rest) < 1 {
			return ClarityValue{}, nil, fmt.Errorf("truncated contract name")
		}
		nameLen := int(rest[0])
		rest = rest[1:]
		if len(rest) < nameLen {
			return ClarityValue{}, nil, fmt.Errorf("truncated contract name")
		}
		name := string(rest[:nameLen])
		return ClarityValue{Type: typ, Principal: addr + "." + name}, rest[nameLen:], nil

	case clarityTypeResponseOk, clarityTypeResponseErr, clarityTypeOptionalSome:
		inner, rest, err := decodeClarity(rest)
		if err != nil {
			return ClarityValue{}, nil, err
		}
		return ClarityValue{Type: typ, Inner: &inner}, rest, nil

	case clarityTypeOptionalNone:
		return ClarityValue{Type: typ}, rest, nil

	case clarityTypeList:
		n, rest, err := decodeLen(rest)
		if err != nil {
			return ClarityValue{}, nil, err
		}
		items := make([]ClarityValue, 0, n)
		for i := 0; i < n; i++ {
			var item ClarityValue
			item, rest, err = decodeClarity(rest)
			if err != nil {
				return ClarityValue{}, nil, err
			}
			items = append(items, item)
		}
		return ClarityValue{Type: typ, List: items}, rest, nil

	case clarityTypeTuple:
		n, rest, err := decodeLen(rest)
		if err != nil {
			return ClarityValue{}, nil, err
		}
		fields := make(map[string]ClarityValue, n)
		for i := 0; i < n; i++ {
			if len(rest) < 1 {
				return ClarityValue{}, nil, fmt.Errorf("truncated tuple key")
			}
			keyLen := int(rest[0])
			rest = rest[1:]
			if len(rest) < keyLen {
				return ClarityValue{}, nil, fmt.Errorf("truncated tuple key")
			}
			key := string(rest[:keyLen])
			rest = rest[keyLen:]
			var val ClarityValue
			val, rest, err = decodeClarity(rest)
			if err != nil {
				return ClarityValue{}, nil, err
			}
			fields[key] = val
		}
		return ClarityValue{Type: typ, Tuple: fields}, rest, nil

	case clarityTypeStringASCII, clarityTypeStringUTF8:
		n, rest, err := decodeLen(rest)
		if err != nil {
			return ClarityValue{}, nil, err
		}
		if len(rest) < n {
			return ClarityValue{}, nil, fmt.Errorf("truncated string")
		}
		return ClarityValue{Type: typ, Str: string(rest[:n])}, rest[n:], nil

	default:
		return ClarityValue{}, nil, fmt.Errorf("unknown clarity type prefix 0x%02x", typ)
	}
}

func decodeLen(b []byte) (int, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("truncated length prefix")
	}
	return int(binary.BigEndian.Uint32(b[:4])), b[4:], nil
}

func decodePrincipal(b []byte) (string, []byte, error) {
	if len(b) < 21 {
		return "", nil, fmt.Errorf("truncated principal")
	}
	addr, err := C32Address(b[0], b[1:21])
	if err != nil {
		return "", nil, err
	}
	return addr, b[21:], nil
}

// unwrap strips response-ok and optional-some wrappers so callers can read
// the payload of `(ok u5)` and `(some {...})` uniformly. A response-err is
// returned as an error.
func (v ClarityValue) unwrap() (ClarityValue, error) {
	cur := v
	for {
		switch cur.Type {
		case clarityTypeResponseOk, clarityTypeOptionalSome:
			cur = *cur.Inner
		case clarityTypeResponseErr:
			return ClarityValue{}, fmt.Errorf("contract returned err: %s", cur.Inner.describe())
		default:
			return cur, nil
		}
	}
}

func (v ClarityValue) describe() string {
	switch v.Type {
	case clarityTypeUInt:
		return fmt.Sprintf("u%d", v.UInt)
	case clarityTypeInt:
		return fmt.Sprintf("%d", v.UInt)
	case clarityTypeStringASCII, clarityTypeStringUTF8:
		return fmt.Sprintf("%q", v.Str)
	case clarityTypeStandardPrincipal, clarityTypeContractPrincipal:
		return v.Principal
	case clarityTypeBoolTrue:
		return "true"
	case clarityTypeBoolFalse:
		return "false"
	case clarityTypeOptionalNone:
		return "none"
	default:
		return fmt.Sprintf("clarity(0x%02x)", v.Type)
	}
}

// AsUInt returns the uint payload, unwrapping ok/some first.
func (v ClarityValue) AsUInt() (uint64, error) {
	inner, err := v.unwrap()
	if err != nil {
		return 0, err
	}
	if inner.Type != clarityTypeUInt {
		return 0, fmt.Errorf("expected uint, got %s", inner.describe())
	}
	return inner.UInt, nil
}

// AsPrincipal returns the principal payload, unwrapping ok/some first.
func (v ClarityValue) AsPrincipal() (string, error) {
	inner, err := v.unwrap()
	if err != nil {
		return "", err
	}
	if inner.Type != clarityTypeStandardPrincipal && inner.Type != clarityTypeContractPrincipal {
		return "", fmt.Errorf("expected principal, got %s", inner.describe())
	}
	return inner.Principal, nil
}
