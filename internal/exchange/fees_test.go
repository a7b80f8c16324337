package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTotalCost(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		rate   string
		want   string
	}{
		// 0.1 * 500 = 50 notional, 0.75 fee
		{name: "RoundNotional", amount: "0.1", rate: "500", want: "50.75"},
		// fee forces rounding: 0.861 + 0.012915 = 0.873915
		{name: "RoundsToCents", amount: "0.123", rate: "7", want: "0.87"},
		{name: "MinimalOrder", amount: "0.001", rate: "1", want: "0"},
		{name: "LargeOrder", amount: "2", rate: "60000", want: "121800"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			rate := decimal.RequireFromString(tt.rate)
			got := TotalCost(amount, rate)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestProceeds(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		rate   string
		want   string
	}{
		{name: "NoFeeOnSellSide", amount: "0.1", rate: "500", want: "50"},
		{name: "RoundsToCents", amount: "0.123", rate: "7", want: "0.86"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			rate := decimal.RequireFromString(tt.rate)
			assert.Equal(t, tt.want, Proceeds(amount, rate).String())
		})
	}
}

// A cancelled buy must refund exactly what placement debited, at any
// amount/price combination that survives validation.
func TestTotalCost_RefundSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"0.1", "500"},
		{"0.001", "1"},
		{"0.333", "149.99"},
		{"1.23456789", "42"},
	}
	for _, p := range pairs {
		amount := decimal.RequireFromString(p[0])
		price := decimal.RequireFromString(p[1])
		debit := TotalCost(amount, price)
		refund := TotalCost(amount, price)
		assert.True(t, debit.Equal(refund), "debit %s != refund %s", debit, refund)
	}
}
