package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

var moneyReplacer = strings.NewReplacer(
	"£", "",
	"$", "",
	"€", "",
	"GBP", "",
	",", "",
	" ", "",
	" ", "",
)

// Money parses an amount such as "£5,000.00". Empty or unparseable input
// gives an invalid NullDecimal.
func Money(s string) decimal.NullDecimal {
	cleaned := moneyReplacer.Replace(strings.TrimSpace(s))
	if cleaned == "" || cleaned == "-" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d.Round(2))
}

// MoneyPtr is Money for optional input.
func MoneyPtr(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	return Money(*s)
}
