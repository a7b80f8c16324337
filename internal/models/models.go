package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide normalizes and validates a side string.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(s)) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("side must be 'buy' or 'sell'")
}

// Opposite returns the counterparty side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Status is the lifecycle state of an order. An order is created open and
// transitions exactly once to filled or cancelled; terminal states never
// change again.
type Status string

const (
	StatusOpen      Status = "open"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
)

// ParseStatus normalizes and validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(s)) {
	case StatusOpen:
		return StatusOpen, nil
	case StatusFilled:
		return StatusFilled, nil
	case StatusCancelled:
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("status must be 'open', 'filled' or 'cancelled'")
}

// User represents a registered user and their cash balance in USD.
type User struct {
	ID           int             `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Asset is a user's holding of one symbol. Amount is free to sell;
// LockedAmount is reserved against open sell orders.
type Asset struct {
	ID           int             `json:"id"`
	UserID       int             `json:"user_id"`
	Symbol       string          `json:"symbol"`
	Amount       decimal.Decimal `json:"amount"`
	LockedAmount decimal.Decimal `json:"locked_amount"`
}

// Order is a limit order resting in or passing through the book.
type Order struct {
	ID        int             `json:"id"`
	UserID    int             `json:"user_id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Notional is amount * price, unrounded.
func (o Order) Notional() decimal.Decimal {
	return o.Amount.Mul(o.Price)
}
