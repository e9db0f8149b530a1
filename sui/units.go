package sui

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"
)

// MistPerSui is the number of MIST in one SUI.
const MistPerSui = 1_000_000_000

const suiDecimals = 9

// CoinTypeSUI is the native coin type.
const CoinTypeSUI = "0x2::sui::SUI"

// ErrInvalidAmount is returned by ParseAmount for amounts that cannot be
// sent.
var ErrInvalidAmount = errors.New("invalid amount")

var amountRE = regexp.MustCompile(`^([0-9]+)(?:\.([0-9]+))?$`)

// ParseAmount converts a SUI display amount such as "1.5" into MIST. The
// amount must be positive and representable without fractional loss.
func ParseAmount(s string) (uint64, error) {
	m := amountRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q is not a positive decimal number", ErrInvalidAmount, s)
	}
	whole, frac := m[1], strings.TrimRight(m[2], "0")
	if len(frac) > suiDecimals {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, suiDecimals)
	}
	frac += strings.Repeat("0", suiDecimals-len(frac))
	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	if n.Sign() <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if n.Cmp(new(big.Int).SetUint64(math.MaxUint64)) > 0 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, s)
	}
	return n.Uint64(), nil
}

// FormatAmount renders MIST as a SUI display amount.
func FormatAmount(mist uint64) string {
	whole := mist / MistPerSui
	frac := mist % MistPerSui
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	return strings.TrimRight(fmt.Sprintf("%d.%09d", whole, frac), "0")
}
