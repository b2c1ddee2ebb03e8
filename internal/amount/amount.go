// amount.go - Signed fixed-point amounts for value balances, fees and rewards.
//
// An Amount counts microcredits. Arithmetic is checked: any result outside the int64 range
// fails with ErrOverflow instead of wrapping, so every aggregate over amounts fails the same way.

package amount

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// OneCredit is the number of microcredits in one credit.
const OneCredit Amount = 1_000_000

// ErrOverflow is returned when an operation leaves the representable range.
var ErrOverflow = errors.New("amount overflow")

// Amount is a signed quantity of microcredits.
type Amount int64

// FromCredits converts a whole number of credits into an Amount.
func FromCredits(credits int64) (Amount, error) {
	if credits > math.MaxInt64/int64(OneCredit) || credits < math.MinInt64/int64(OneCredit) {
		return 0, errors.Wrapf(ErrOverflow, "%d credits", credits)
	}
	return Amount(credits) * OneCredit, nil
}

// Add returns a+b.
func (a Amount) Add(b Amount) (Amount, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, errors.Wrapf(ErrOverflow, "%d + %d", int64(a), int64(b))
	}
	return a + b, nil
}

// Sub returns a-b.
func (a Amount) Sub(b Amount) (Amount, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, errors.Wrapf(ErrOverflow, "%d - %d", int64(a), int64(b))
	}
	return a - b, nil
}

// Neg returns -a. The minimum int64 has no positive counterpart.
func (a Amount) Neg() (Amount, error) {
	if a == math.MinInt64 {
		return 0, errors.Wrap(ErrOverflow, "negate minimum amount")
	}
	return -a, nil
}

// IsNegative reports whether a creates value (a coinbase balance).
func (a Amount) IsNegative() bool {
	return a < 0
}

// Int64 returns the raw microcredit count.
func (a Amount) Int64() int64 {
	return int64(a)
}

// String renders the amount in credits with six decimals, e.g. "-1.500000 credits".
func (a Amount) String() string {
	sign := ""
	u := uint64(a)
	if a < 0 {
		sign = "-"
		u = uint64(-(a + 1)) + 1
	}
	whole := u / uint64(OneCredit)
	frac := u % uint64(OneCredit)
	return fmt.Sprintf("%s%d.%06d credits", sign, whole, frac)
}

// Sum adds all amounts with checked arithmetic. An empty list sums to zero.
func Sum(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Parse reads an integer number of microcredits, optionally suffixed with "uc".
func Parse(s string) (Amount, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "uc")
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, errors.Wrapf(ErrOverflow, "parse %q", s)
		}
		return 0, errors.Wrapf(err, "parse amount %q", s)
	}
	return Amount(v), nil
}
