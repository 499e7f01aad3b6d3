package domain

import "github.com/shopspring/decimal"

func init() {
	// API consumers expect prices as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Money rounds to pence, half away from zero.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
