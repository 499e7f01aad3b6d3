package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeFees_Scenario(t *testing.T) {
	f := ComputeFees(d("100.00"), d("50.00"), d("3.00"))
	assert.True(t, f.AppFeeRaw.Equal(d("5")), f.AppFeeRaw.String())
	assert.True(t, f.CreditsApplied.Equal(d("3")))
	assert.True(t, f.AppFeeFinal.Equal(d("2")))
	assert.True(t, f.SellerPayout.Equal(d("98")))
}

func TestComputeFees_Cases(t *testing.T) {
	cases := []struct {
		name                      string
		final, start, credits     string
		raw, applied, fee, payout string
	}{
		{"no appreciation", "40", "40", "5", "0", "0", "0", "40"},
		{"below start", "30", "40", "5", "0", "0", "0", "30"},
		{"no credits", "25", "10", "0", "1.5", "0", "1.5", "23.5"},
		{"credits exceed fee", "25", "10", "100", "1.5", "1.5", "0", "25"},
		{"rounds half away from zero", "10.05", "10", "0", "0.01", "0", "0.01", "10.04"},
		{"negative credits ignored", "20", "10", "-4", "1", "0", "1", "19"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := ComputeFees(d(tc.final), d(tc.start), d(tc.credits))
			assert.True(t, f.AppFeeRaw.Equal(d(tc.raw)), "raw %s", f.AppFeeRaw)
			assert.True(t, f.CreditsApplied.Equal(d(tc.applied)), "applied %s", f.CreditsApplied)
			assert.True(t, f.AppFeeFinal.Equal(d(tc.fee)), "fee %s", f.AppFeeFinal)
			assert.True(t, f.SellerPayout.Equal(d(tc.payout)), "payout %s", f.SellerPayout)
		})
	}
}

func TestCashback(t *testing.T) {
	assert.True(t, Cashback(d("100")).Equal(d("2")))
	assert.True(t, Cashback(d("12.34")).Equal(d("0.25")))
	assert.True(t, Cashback(d("900")).Equal(d("10")))
}

func TestProperty_PayoutPlusFeeEqualsFinalPrice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		startPence := rapid.Int64Range(1, 1_000_000).Draw(t, "startPence")
		finalPence := rapid.Int64Range(1, 2_000_000).Draw(t, "finalPence")
		creditPence := rapid.Int64Range(0, 100_000).Draw(t, "creditPence")

		final := decimal.New(finalPence, -2)
		start := decimal.New(startPence, -2)
		credits := decimal.New(creditPence, -2)
		f := ComputeFees(final, start, credits)

		if !f.SellerPayout.Add(f.AppFeeFinal).Equal(final) {
			t.Fatalf("payout %s + fee %s != final %s", f.SellerPayout, f.AppFeeFinal, final)
		}
		if f.AppFeeRaw.IsNegative() || f.AppFeeFinal.IsNegative() || f.CreditsApplied.IsNegative() {
			t.Fatalf("negative component in %+v", f)
		}
		if f.CreditsApplied.GreaterThan(credits) || f.CreditsApplied.GreaterThan(f.AppFeeRaw) {
			t.Fatalf("credits applied %s exceeds min(raw %s, credits %s)", f.CreditsApplied, f.AppFeeRaw, credits)
		}
		if !f.AppFeeFinal.Equal(f.AppFeeRaw.Sub(f.CreditsApplied)) {
			t.Fatalf("fee final %s != raw %s - applied %s", f.AppFeeFinal, f.AppFeeRaw, f.CreditsApplied)
		}
		if f.AppFeeRaw.Exponent() < -2 {
			t.Fatalf("raw fee %s not rounded to pence", f.AppFeeRaw)
		}
	})
}

func TestProperty_CashbackBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		final := decimal.New(rapid.Int64Range(0, 10_000_000).Draw(t, "finalPence"), -2)
		c := Cashback(final)
		if c.IsNegative() || c.GreaterThan(d("10")) {
			t.Fatalf("cashback %s out of range for %s", c, final)
		}
	})
}
