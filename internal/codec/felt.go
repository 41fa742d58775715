// Package codec converts between on-chain field elements and the strings
// the game works with.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// MaxShortString is the byte capacity of a single felt.
const MaxShortString = 31

var ErrNotShortString = errors.New("codec: value is not a short ascii string")

// Parse reads a felt given in 0x-prefixed hex or in decimal. Values wider
// than 256 bits or containing non-digit characters are rejected.
func Parse(value string) (*uint256.Int, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" {
			if len(s) == 2 {
				return nil, false
			}
			return new(uint256.Int), true
		}
		if len(digits) > 64 {
			return nil, false
		}
		n, err := uint256.FromHex("0x" + digits)
		if err != nil {
			return nil, false
		}
		return n, true
	}
	n, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, false
	}
	return n, true
}

// ParseUint reads a felt that must fit in 64 bits.
func ParseUint(value string) (uint64, bool) {
	n, ok := Parse(value)
	if !ok || !n.IsUint64() {
		return 0, false
	}
	return n.Uint64(), true
}

// Decode turns a felt into the ASCII text packed inside it. Bytes that are
// zero or outside 1..127 are dropped. Malformed input decodes to "".
func Decode(value string) string {
	n, ok := Parse(value)
	if !ok {
		return ""
	}
	return bytesToASCII(n.Bytes())
}

func DecodeUint(value uint64) string {
	return bytesToASCII(uint256.NewInt(value).Bytes())
}

func bytesToASCII(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c > 0 && c < 128 {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// Encode packs s into a felt and returns it as minimal 0x hex.
func Encode(s string) (string, error) {
	if len(s) > MaxShortString {
		return "", fmt.Errorf("%w: %d bytes", ErrNotShortString, len(s))
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] >= 128 {
			return "", fmt.Errorf("%w: byte %d", ErrNotShortString, i)
		}
	}
	return new(uint256.Int).SetBytes([]byte(s)).Hex(), nil
}

// NormalizeAddress pads an account address to 0x plus 64 lowercase hex
// digits. Unparseable input normalizes to "".
func NormalizeAddress(address string) string {
	n, ok := Parse(address)
	if !ok {
		return ""
	}
	b := n.Bytes32()
	return "0x" + hex.EncodeToString(b[:])
}

// SameAddress compares two addresses after normalization.
func SameAddress(a, b string) bool {
	na := NormalizeAddress(a)
	return na != "" && na == NormalizeAddress(b)
}
