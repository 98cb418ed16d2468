// Package money represents amounts in integer minor units (cents) so that
// settlement arithmetic is exact and fee + net always equals gross.
package money

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Cents is a monetary amount in the currency's minor unit.
type Cents int64

// PlatformFeeBps is the platform's cut of provider earnings, in basis points.
const PlatformFeeBps = 500 // 5%

// Parse converts a decimal string such as "150", "150.5" or "150.00" into
// cents. At most two fractional digits are accepted.
func Parse(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("money: negative amount %q", s)
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("money: too many decimal places in %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q", s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q", s)
	}
	return Cents(units*100 + cents), nil
}

// String renders the amount as a decimal with two fractional digits.
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(c.String())), nil
}

// UnmarshalJSON accepts either a JSON string ("150.00") or a bare number.
func (c *Cents) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "null" {
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Fee returns the platform fee on gross, rounded half-up to the minor unit.
func Fee(gross Cents) Cents {
	return Cents((int64(gross)*PlatformFeeBps + 5000) / 10000)
}

// Split divides gross into platform fee and net provider earnings.
// fee + net == gross holds for every input.
func Split(gross Cents) (fee, net Cents) {
	fee = Fee(gross)
	return fee, gross - fee
}
