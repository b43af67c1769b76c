package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is a fixed-point amount expressed in minor units (two decimals).
type Money int64

// ErrInvalidMoney is returned when a textual amount cannot be parsed.
var ErrInvalidMoney = errors.New("money: invalid amount")

// Cents constructs Money from a count of minor units.
func Cents(v int64) Money { return Money(v) }

// ParseMoney parses decimal strings such as "20", "20.5" or "20.00". Only ASCII digits are
// accepted around the point, with one optional leading minus. More than two fractional digits
// is rejected rather than rounded.
func ParseMoney(raw string) (Money, error) {
	value := strings.TrimSpace(raw)
	negative := false
	if rest, ok := strings.CutPrefix(value, "-"); ok {
		negative, value = true, rest
	}
	whole, frac, hasFrac := strings.Cut(value, ".")
	switch {
	case whole == "" && frac == "",
		!isDigits(whole) || !isDigits(frac),
		hasFrac && (frac == "" || len(frac) > 2):
		return 0, fmt.Errorf("%w: %q", ErrInvalidMoney, raw)
	}
	if whole == "" {
		whole = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > math.MaxInt64/100-1 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidMoney, raw)
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)
	total := units*100 + cents
	if negative {
		total = -total
	}
	return Money(total), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Minor returns the amount in minor units.
func (m Money) Minor() int64 { return int64(m) }

// Times multiplies the amount by a quantity.
func (m Money) Times(qty int) Money { return m * Money(qty) }

// ClampZero returns zero for negative amounts.
func (m Money) ClampZero() Money {
	if m < 0 {
		return 0
	}
	return m
}

// String renders the amount with exactly two decimals.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Format renders the amount for humans using the currency's symbol, e.g. "$ 20.00".
func (m Money) Format(code string) string {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return m.String()
	}
	p := message.NewPrinter(language.English)
	return p.Sprint(currency.Symbol(unit.Amount(float64(m) / 100)))
}

// MarshalJSON encodes money as a two-decimal string to avoid float drift on clients.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts "12.34" strings; bare JSON numbers are read as decimal text.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
