package orders

import (
	"unimarket-backend/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	feeRate      = decimal.RequireFromString("0.10")
	cashbackRate = decimal.RequireFromString("0.02")
	cashbackCap  = decimal.NewFromInt(10)
)

// Fees is the settlement breakdown fixed at order creation.
type Fees struct {
	AppFeeRaw      decimal.Decimal `json:"app_fee_raw"`
	CreditsApplied decimal.Decimal `json:"credits_applied"`
	AppFeeFinal    decimal.Decimal `json:"app_fee_final"`
	SellerPayout   decimal.Decimal `json:"seller_payout"`
}

// ComputeFees charges 10% of the price appreciation over the start price.
// Buyer credits offset the fee only, so SellerPayout + AppFeeFinal == finalPrice.
func ComputeFees(finalPrice, startPrice, buyerCredits decimal.Decimal) Fees {
	finalPrice = domain.Money(finalPrice)
	raw := domain.Money(finalPrice.Sub(startPrice).Mul(feeRate))
	if raw.IsNegative() {
		raw = decimal.Zero
	}
	credits := domain.Money(buyerCredits)
	if credits.IsNegative() {
		credits = decimal.Zero
	}
	applied := decimal.Min(raw, credits)
	fee := raw.Sub(applied)
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	return Fees{
		AppFeeRaw:      raw,
		CreditsApplied: applied,
		AppFeeFinal:    fee,
		SellerPayout:   finalPrice.Sub(fee),
	}
}

// Cashback is 2% of the final price, capped at 10 credits.
func Cashback(finalPrice decimal.Decimal) decimal.Decimal {
	return decimal.Min(cashbackCap, domain.Money(finalPrice.Mul(cashbackRate)))
}
