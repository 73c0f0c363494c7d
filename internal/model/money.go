package model

import (
	"encoding/json"
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in BRL cents.
type Money int64

var brPrinter = message.NewPrinter(language.BrazilianPortuguese)

func MoneyFromFloat(v float64) Money {
	return Money(math.Round(v * 100))
}

func (m Money) Float() float64 {
	return float64(m) / 100
}

// Split divides the amount by n, rounding to the nearest cent.
func (m Money) Split(n int) Money {
	if n <= 0 {
		return 0
	}
	return Money(math.Round(float64(m) / float64(n)))
}

// Decimal renders the amount the way PSP APIs expect it ("12.50").
func (m Money) Decimal() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// String renders the amount for display, e.g. "R$ 12,50".
func (m Money) String() string {
	return brPrinter.Sprintf("R$ %.2f", m.Float())
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Float())
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("money must be a number: %w", err)
	}
	if v < 0 {
		return fmt.Errorf("money must not be negative")
	}
	*m = MoneyFromFloat(v)
	return nil
}
