package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/spotex/exchange/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds means a balance debit would go negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientAsset means a sell reservation exceeds the free amount.
	ErrInsufficientAsset = errors.New("insufficient asset")
	// ErrOrderNotFound means no open order matches id and owner.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUserNotFound means a referenced user row does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so read helpers can
// run inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. Every state-changing operation in the core goes through
// here; nothing commits partially.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateUser inserts a new user with a starting balance.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string, balance decimal.Decimal) (*models.User, error) {
	row := db.Pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, balance) VALUES ($1, $2, $3)
		 RETURNING id, username, password_hash, balance::text, created_at`,
		username, passwordHash, balance.String())
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT id, username, password_hash, balance::text, created_at FROM users WHERE username = $1`,
		username)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by id.
func (db *DB) GetUser(ctx context.Context, q Querier, userID int) (*models.User, error) {
	row := q.QueryRow(ctx,
		`SELECT id, username, password_hash, balance::text, created_at FROM users WHERE id = $1`,
		userID)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// LockUsers acquires exclusive locks on the given user rows in ascending id
// order. Every code path that touches more than one account locks through
// here, so two cross-matching placements always contend on the lower id first
// and cannot deadlock.
func (db *DB) LockUsers(ctx context.Context, tx pgx.Tx, userIDs ...int) (map[int]*models.User, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, username, password_hash, balance::text, created_at
		 FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
		userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to lock users: %w", err)
	}
	defer rows.Close()

	users := make(map[int]*models.User, len(userIDs))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range userIDs {
		if _, ok := users[id]; !ok {
			return nil, ErrUserNotFound
		}
	}
	return users, nil
}

// DebitBalance subtracts amount from a user's balance. The caller must hold
// the user row lock; the balance >= amount guard is a defensive backstop.
func (db *DB) DebitBalance(ctx context.Context, tx pgx.Tx, userID int, amount decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users SET balance = balance - $2 WHERE id = $1 AND balance >= $2`,
		userID, amount.String())
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// CreditBalance adds amount to a user's balance.
func (db *DB) CreditBalance(ctx context.Context, tx pgx.Tx, userID int, amount decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		`UPDATE users SET balance = balance + $2 WHERE id = $1`,
		userID, amount.String())
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}

// GetAsset retrieves one asset row, or nil if the user holds none of the
// symbol.
func (db *DB) GetAsset(ctx context.Context, q Querier, userID int, symbol string) (*models.Asset, error) {
	row := q.QueryRow(ctx,
		`SELECT id, user_id, symbol, amount::text, locked_amount::text
		 FROM assets WHERE user_id = $1 AND symbol = $2`,
		userID, symbol)
	asset, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return asset, nil
}

// ListAssets returns all of a user's assets ordered by symbol.
func (db *DB) ListAssets(ctx context.Context, userID int) ([]models.Asset, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, symbol, amount::text, locked_amount::text
		 FROM assets WHERE user_id = $1 ORDER BY symbol`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

// ReserveAsset moves amount from free to locked for an open sell order. Fails
// with ErrInsufficientAsset when the free amount does not cover it (also when
// no asset row exists at all).
func (db *DB) ReserveAsset(ctx context.Context, tx pgx.Tx, userID int, symbol string, amount decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		`UPDATE assets SET amount = amount - $3, locked_amount = locked_amount + $3
		 WHERE user_id = $1 AND symbol = $2 AND amount >= $3`,
		userID, symbol, amount.String())
	if err != nil {
		return fmt.Errorf("failed to reserve asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientAsset
	}
	return nil
}

// ReleaseAsset moves amount back from locked to free on cancellation.
func (db *DB) ReleaseAsset(ctx context.Context, tx pgx.Tx, userID int, symbol string, amount decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		`UPDATE assets SET amount = amount + $3, locked_amount = locked_amount - $3
		 WHERE user_id = $1 AND symbol = $2 AND locked_amount >= $3`,
		userID, symbol, amount.String())
	if err != nil {
		return fmt.Errorf("failed to release asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no locked amount to release for user %d %s", userID, symbol)
	}
	return nil
}

// CreditAsset adds amount to a user's free holding, creating the asset row
// with zero locked amount when absent.
func (db *DB) CreditAsset(ctx context.Context, q Querier, userID int, symbol string, amount decimal.Decimal) error {
	_, err := q.Exec(ctx,
		`INSERT INTO assets (user_id, symbol, amount, locked_amount) VALUES ($1, $2, $3, 0)
		 ON CONFLICT (user_id, symbol) DO UPDATE SET amount = assets.amount + EXCLUDED.amount`,
		userID, symbol, amount.String())
	if err != nil {
		return fmt.Errorf("failed to credit asset: %w", err)
	}
	return nil
}

// DebitLockedAsset removes amount from a seller's locked holding when their
// resting order fills.
func (db *DB) DebitLockedAsset(ctx context.Context, tx pgx.Tx, userID int, symbol string, amount decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		`UPDATE assets SET locked_amount = locked_amount - $3
		 WHERE user_id = $1 AND symbol = $2 AND locked_amount >= $3`,
		userID, symbol, amount.String())
	if err != nil {
		return fmt.Errorf("failed to debit locked asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("locked amount below fill quantity for user %d %s", userID, symbol)
	}
	return nil
}

// InsertOrder persists a new open order.
func (db *DB) InsertOrder(ctx context.Context, tx pgx.Tx, order *models.Order) (*models.Order, error) {
	row := tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, symbol, side, amount, price, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, user_id, symbol, side, amount::text, price::text, status, created_at, updated_at`,
		order.UserID, order.Symbol, order.Side, order.Amount.String(), order.Price.String(), order.Status)
	saved, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return saved, nil
}

// FindMatch locks and returns the single best counter-order for the incoming
// order: same symbol and amount, opposite side, open, price crossing the
// incoming limit, different owner, earliest created first. Returns nil when
// nothing is eligible. The FOR UPDATE is what stops two concurrent placements
// from filling the same resting order twice.
func (db *DB) FindMatch(ctx context.Context, tx pgx.Tx, incoming *models.Order) (*models.Order, error) {
	cmp := "<="
	if incoming.Side == models.SideSell {
		cmp = ">="
	}
	row := tx.QueryRow(ctx,
		`SELECT id, user_id, symbol, side, amount::text, price::text, status, created_at, updated_at
		 FROM orders
		 WHERE symbol = $1 AND side = $2 AND status = 'open'
		   AND price `+cmp+` $3 AND user_id <> $4 AND amount = $5
		 ORDER BY created_at ASC
		 LIMIT 1
		 FOR UPDATE`,
		incoming.Symbol, incoming.Side.Opposite(), incoming.Price.String(), incoming.UserID, incoming.Amount.String())
	match, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find matching order: %w", err)
	}
	return match, nil
}

// GetOpenOrderForUpdate locks an open order owned by userID. Missing, foreign
// and non-open orders are indistinguishable to the caller.
func (db *DB) GetOpenOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID, userID int) (*models.Order, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, user_id, symbol, side, amount::text, price::text, status, created_at, updated_at
		 FROM orders
		 WHERE id = $1 AND user_id = $2 AND status = 'open'
		 FOR UPDATE`,
		orderID, userID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// UpdateOrderStatus moves an order into a terminal state and bumps
// updated_at. Caller must hold the row lock.
func (db *DB) UpdateOrderStatus(ctx context.Context, tx pgx.Tx, orderID int, status models.Status) error {
	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 AND status = 'open'`,
		orderID, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d is not open", orderID)
	}
	return nil
}

// OrderFilter narrows ListOrders. Zero values mean no filter; Status defaults
// to open in the caller.
type OrderFilter struct {
	Symbol string
	Side   models.Side
	Status models.Status
}

// ListOrders returns a user's orders, newest activity first.
func (db *DB) ListOrders(ctx context.Context, userID int, filter OrderFilter) ([]models.Order, error) {
	query := `SELECT id, user_id, symbol, side, amount::text, price::text, status, created_at, updated_at
		 FROM orders WHERE user_id = $1`
	args := []any{userID}

	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		query += fmt.Sprintf(" AND symbol = $%d", len(args))
	}
	if filter.Side != "" {
		args = append(args, filter.Side)
		query += fmt.Sprintf(" AND side = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY updated_at DESC"

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	var balance string
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &balance, &user.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	user.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	return user, nil
}

func scanAsset(row pgx.Row) (*models.Asset, error) {
	asset := &models.Asset{}
	var amount, locked string
	if err := row.Scan(&asset.ID, &asset.UserID, &asset.Symbol, &amount, &locked); err != nil {
		return nil, err
	}
	var err error
	asset.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	asset.LockedAmount, err = decimal.NewFromString(locked)
	if err != nil {
		return nil, fmt.Errorf("parse locked amount: %w", err)
	}
	return asset, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	var amount, price string
	if err := row.Scan(&order.ID, &order.UserID, &order.Symbol, &order.Side,
		&amount, &price, &order.Status, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	order.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	order.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	return order, nil
}
