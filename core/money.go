package core

import (
	"database/sql/driver"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Money is an amount in cents.
type Money int64

func MoneyFromFloat(f float64) Money {
	return Money(math.Round(f * 100))
}

// ParseMoney accepts "550", "550.5", "550.50" and "550,50".
func ParseMoney(s string) (Money, error) {
	s = strings.ReplaceAll(CleanString(s), ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("invalid amount %q", s)
	}
	return MoneyFromFloat(f), nil
}

func (m Money) Float() float64 { return float64(m) / 100 }

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := strconv.FormatInt(v%100, 10)
	if len(cents) == 1 {
		cents = "0" + cents
	}
	return sign + strconv.FormatInt(v/100, 10) + "." + cents
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*m = 0
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}

func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*m = Money(v)
	case float64:
		*m = Money(v)
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return err
		}
		*m = Money(n)
	default:
		return errors.Errorf("cannot scan %T into core.Money", src)
	}
	return nil
}
