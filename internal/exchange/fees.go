package exchange

import "github.com/shopspring/decimal"

// Buy orders pay a flat 1.5% surcharge on notional value. Sell orders pay
// nothing.
var feeRate = decimal.NewFromFloat(0.015)

// TotalCost is the fee-inclusive debit for a buy: notional plus the 1.5%
// surcharge, rounded to cents as one figure. Cancellation refunds the same
// expression, so a place/cancel pair is balance-neutral.
func TotalCost(amount, rate decimal.Decimal) decimal.Decimal {
	notional := amount.Mul(rate)
	return notional.Add(notional.Mul(feeRate)).Round(2)
}

// Proceeds is the seller's credit for a fill: notional at the execution
// price, rounded to cents.
func Proceeds(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}
