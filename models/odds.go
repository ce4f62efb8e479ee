package models

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// AmericanToDecimal converts an American price to decimal odds.
// Positive prices yield price/100 + 1, negative prices 100/|price| + 1.
// A nil or zero price has no decimal equivalent.
func AmericanToDecimal(price *int) decimal.NullDecimal {
	if price == nil || *price == 0 {
		return decimal.NullDecimal{}
	}
	american := decimal.NewFromInt(int64(*price))
	var d decimal.Decimal
	if american.IsPositive() {
		d = american.Div(hundred).Add(one)
	} else {
		d = hundred.Div(american.Abs()).Add(one)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// FormatDecimalOdds renders decimal odds rounded to places, or "" when absent.
func FormatDecimalOdds(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(places)
}
