package merkle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hex returns the 0x-prefixed lowercase hex form of the digest.
func (d Digest) Hex() string {
	return hexutil.Encode(d[:])
}

func (d Digest) String() string {
	return d.Hex()
}

// IsZero reports whether every byte of the digest is zero.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText encodes the digest as 0x-prefixed hex.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.Hex()), nil
}

// UnmarshalText decodes a 0x-prefixed hex digest of exactly DigestSize bytes.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest parses the output of Digest.Hex.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hexutil.Decode(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("invalid digest length: expected %d bytes, got %d", DigestSize, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

func (p Position) String() string {
	switch p {
	case SiblingRight:
		return "right"
	case SiblingLeft:
		return "left"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// MarshalText encodes the position as "left" or "right".
func (p Position) MarshalText() ([]byte, error) {
	switch p {
	case SiblingRight, SiblingLeft:
		return []byte(p.String()), nil
	default:
		return nil, fmt.Errorf("invalid sibling position: %d", uint8(p))
	}
}

// UnmarshalText accepts "left" or "right".
func (p *Position) UnmarshalText(text []byte) error {
	switch string(text) {
	case "right":
		*p = SiblingRight
	case "left":
		*p = SiblingLeft
	default:
		return fmt.Errorf("invalid sibling position: %q", string(text))
	}
	return nil
}
