package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Side
		expectErr bool
	}{
		{name: "Buy", input: "buy", want: SideBuy},
		{name: "Sell", input: "sell", want: SideSell},
		{name: "UppercaseBuy", input: "BUY", want: SideBuy},
		{name: "MixedCaseSell", input: "Sell", want: SideSell},
		{name: "Short", input: "short", expectErr: true},
		{name: "Empty", input: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSide(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Status
		expectErr bool
	}{
		{name: "Open", input: "open", want: StatusOpen},
		{name: "Filled", input: "filled", want: StatusFilled},
		{name: "Cancelled", input: "cancelled", want: StatusCancelled},
		{name: "UppercaseOpen", input: "OPEN", want: StatusOpen},
		{name: "Canceled", input: "canceled", expectErr: true},
		{name: "Empty", input: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSide_Opposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell {
		t.Error("opposite of buy should be sell")
	}
	if SideSell.Opposite() != SideBuy {
		t.Error("opposite of sell should be buy")
	}
}

func TestOrder_Notional(t *testing.T) {
	order := Order{
		Amount: decimal.NewFromFloat(0.1),
		Price:  decimal.NewFromInt(500),
	}
	if !order.Notional().Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected notional 50, got %s", order.Notional())
	}
}
