package stacks

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MicroSTXPerSTX is the minor-unit scale of the Stacks ledger.
// All on-chain amounts are integers in microSTX.
const MicroSTXPerSTX = 1_000_000

// ErrInvalidAmount is returned when a display amount cannot be converted
// to a valid microSTX value (negative, NaN, or infinite).
var ErrInvalidAmount = errors.New("invalid amount")

// MicroToSTX converts a microSTX amount to display units.
func MicroToSTX(micro uint64) float64 {
	return float64(micro) / MicroSTXPerSTX
}

// STXToMicro converts a display amount to microSTX, truncating any
// fractional microSTX toward zero.
func STXToMicro(stx float64) (uint64, error) {
	if math.IsNaN(stx) || math.IsInf(stx, 0) || stx < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, stx)
	}
	return uint64(math.Floor(stx * MicroSTXPerSTX)), nil
}

// FormatSTX formats a microSTX amount for display with 2 to 6 fractional
// digits and comma-separated integer groups.
func FormatSTX(micro uint64) string {
	whole := micro / MicroSTXPerSTX
	frac := micro % MicroSTXPerSTX

	fracStr := fmt.Sprintf("%06d", frac)
	// Trim trailing zeros down to a minimum of two fractional digits.
	for len(fracStr) > 2 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}

	return groupThousands(whole) + "." + fracStr
}

// groupThousands renders n with comma separators ("1234567" -> "1,234,567").
func groupThousands(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// TruncateAddress shortens a Stacks address for display:
// first six characters, an ellipsis, then the last four.
// Addresses too short to truncate (and the empty string) are
// returned unchanged.
func TruncateAddress(address string) string {
	if address == "" {
		return ""
	}
	if len(address) < 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
