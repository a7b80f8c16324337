// Package exchange implements the order core: placement, matching,
// settlement and cancellation against a Postgres store of record.
//
// Every state change runs in one transaction. Row locks are taken in a fixed
// order on every path - order rows, then user rows in ascending id, then
// asset rows - so two cross-matching placements serialize on the lower user
// id instead of deadlocking. There is no background matching loop: a resting
// order only ever fills when an opposing order arrives.
package exchange

import (
	"context"
	"fmt"

	"github.com/spotex/exchange/internal/db"
	"github.com/spotex/exchange/internal/models"
	"github.com/spotex/exchange/internal/notify"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service is the order placement, matching and settlement core.
type Service struct {
	db       *db.DB
	notifier notify.Notifier
	log      *zap.Logger
}

// NewService creates the core service. A nil notifier disables event
// delivery.
func NewService(database *db.DB, notifier notify.Notifier, log *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{db: database, notifier: notifier, log: log}
}

// PlaceOrderInput is a pre-validated placement request. The service still
// enforces balance and holding invariants under lock.
type PlaceOrderInput struct {
	UserID int
	Symbol string
	Side   models.Side
	Amount decimal.Decimal
	Price  decimal.Decimal
}

// PlaceOrder persists a new order, matches it against at most one resting
// counter-order and settles the trade, all in one transaction.
//
// Matching is strict time priority among eligible candidates and executes at
// the resting order's price. Buy orders are debited the fee-inclusive cost at
// placement whether or not they match; sell orders only move the sold
// quantity from free to locked.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be positive")
	}
	if in.Price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("price must be positive")
	}
	if in.Side != models.SideBuy && in.Side != models.SideSell {
		return nil, fmt.Errorf("side must be 'buy' or 'sell'")
	}

	var placed, matched *models.Order
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		order := &models.Order{
			UserID: in.UserID,
			Symbol: in.Symbol,
			Side:   in.Side,
			Amount: in.Amount,
			Price:  in.Price,
			Status: models.StatusOpen,
		}
		saved, err := s.db.InsertOrder(ctx, tx, order)
		if err != nil {
			return err
		}

		// Locks the candidate row. The inserted row is already ours for
		// the duration of the transaction.
		match, err := s.db.FindMatch(ctx, tx, saved)
		if err != nil {
			return err
		}

		userIDs := []int{saved.UserID}
		if match != nil {
			userIDs = append(userIDs, match.UserID)
		}
		users, err := s.db.LockUsers(ctx, tx, userIDs...)
		if err != nil {
			return err
		}

		if saved.Side == models.SideSell {
			if err := s.db.ReserveAsset(ctx, tx, saved.UserID, saved.Symbol, saved.Amount); err != nil {
				return err
			}
		}

		// Execution price is always the resting order's price. Unmatched
		// buys are still debited, at their own limit.
		rate := saved.Price
		if match != nil {
			rate = match.Price
		}

		if saved.Side == models.SideBuy {
			cost := TotalCost(saved.Amount, rate)
			if users[saved.UserID].Balance.LessThan(cost) {
				return db.ErrInsufficientFunds
			}
			if err := s.db.DebitBalance(ctx, tx, saved.UserID, cost); err != nil {
				return err
			}
		}

		if match != nil {
			buyOrder, sellOrder := saved, match
			if saved.Side == models.SideSell {
				buyOrder, sellOrder = match, saved
			}
			if err := s.settle(ctx, tx, buyOrder, sellOrder, rate); err != nil {
				return err
			}
		}

		placed, matched = saved, match
		return nil
	})
	if err != nil {
		return nil, mapStorageErr(err)
	}

	if matched != nil {
		s.notifier.OrderMatched(*placed)
		s.notifier.OrderMatched(*matched)
		s.log.Info("orders matched",
			zap.Int("order_id", placed.ID),
			zap.Int("counter_order_id", matched.ID),
			zap.String("symbol", placed.Symbol),
			zap.String("price", matched.Price.String()),
			zap.String("amount", placed.Amount.String()))
	}
	return placed, nil
}

// settle applies a matched pair to both ledgers and moves both orders to
// filled. Caller holds the order and user row locks.
func (s *Service) settle(ctx context.Context, tx pgx.Tx, buyOrder, sellOrder *models.Order, rate decimal.Decimal) error {
	if err := s.db.CreditBalance(ctx, tx, sellOrder.UserID, Proceeds(sellOrder.Amount, rate)); err != nil {
		return err
	}
	if err := s.db.CreditAsset(ctx, tx, buyOrder.UserID, buyOrder.Symbol, buyOrder.Amount); err != nil {
		return err
	}
	if err := s.db.DebitLockedAsset(ctx, tx, sellOrder.UserID, sellOrder.Symbol, sellOrder.Amount); err != nil {
		return err
	}
	if err := s.db.UpdateOrderStatus(ctx, tx, buyOrder.ID, models.StatusFilled); err != nil {
		return err
	}
	if err := s.db.UpdateOrderStatus(ctx, tx, sellOrder.ID, models.StatusFilled); err != nil {
		return err
	}
	buyOrder.Status = models.StatusFilled
	sellOrder.Status = models.StatusFilled
	return nil
}

// CancelOrder cancels an open order owned by userID and reverses its
// placement reservation: buy orders get the fee-inclusive debit refunded,
// sell orders get the locked quantity released. Missing, foreign, filled and
// already-cancelled orders all report db.ErrOrderNotFound.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID int) error {
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		order, err := s.db.GetOpenOrderForUpdate(ctx, tx, orderID, userID)
		if err != nil {
			return err
		}
		if _, err := s.db.LockUsers(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.db.UpdateOrderStatus(ctx, tx, order.ID, models.StatusCancelled); err != nil {
			return err
		}
		if order.Side == models.SideBuy {
			return s.db.CreditBalance(ctx, tx, userID, TotalCost(order.Amount, order.Price))
		}
		return s.db.ReleaseAsset(ctx, tx, userID, order.Symbol, order.Amount)
	})
	return mapStorageErr(err)
}

// ListOrders returns the caller's orders, newest activity first. Status
// defaults to open when the filter leaves it empty.
func (s *Service) ListOrders(ctx context.Context, userID int, filter db.OrderFilter) ([]models.Order, error) {
	if filter.Status == "" {
		filter.Status = models.StatusOpen
	}
	return s.db.ListOrders(ctx, userID, filter)
}

// Profile returns a user's balance and holdings sorted by symbol.
func (s *Service) Profile(ctx context.Context, userID int) (*models.User, []models.Asset, error) {
	user, err := s.db.GetUser(ctx, s.db.Pool, userID)
	if err != nil {
		return nil, nil, err
	}
	assets, err := s.db.ListAssets(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, assets, nil
}
