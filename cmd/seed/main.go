package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spotex/exchange/internal/auth"
	"github.com/spotex/exchange/internal/config"
	"github.com/spotex/exchange/internal/db"
	"github.com/spotex/exchange/internal/exchange"
	"github.com/spotex/exchange/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Seed the database with a demo user, holdings and two resting orders.
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(ctx)

	if _, err := database.GetUserByUsername(ctx, "trader1"); err == nil {
		fmt.Println("Database already seeded.")
		return
	}

	logger := zap.NewNop()
	authService := auth.NewAuthService(database, cfg.JWTSecret)
	core := exchange.NewService(database, nil, logger)

	user, err := authService.Register(ctx, "trader1", "password1")
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}
	if err := grantBalance(ctx, database, user.ID, decimal.NewFromInt(1000)); err != nil {
		log.Fatalf("Failed to grant balance: %v", err)
	}
	if err := database.CreditAsset(ctx, database.Pool, user.ID, "BTC", decimal.NewFromFloat(0.55)); err != nil {
		log.Fatalf("Failed to grant BTC: %v", err)
	}
	if err := database.CreditAsset(ctx, database.Pool, user.ID, "ETH", decimal.NewFromInt(10)); err != nil {
		log.Fatalf("Failed to grant ETH: %v", err)
	}

	orders := []exchange.PlaceOrderInput{
		{UserID: user.ID, Symbol: "BTC", Side: models.SideSell, Amount: decimal.NewFromFloat(0.1), Price: decimal.NewFromInt(550)},
		{UserID: user.ID, Symbol: "ETH", Side: models.SideBuy, Amount: decimal.NewFromFloat(0.5), Price: decimal.NewFromInt(550)},
	}
	for _, in := range orders {
		if _, err := core.PlaceOrder(ctx, in); err != nil {
			log.Fatalf("Failed to place seed order: %v", err)
		}
	}

	fmt.Println("Seeded demo user 'trader1' with balance, assets and two open orders.")
}

func grantBalance(ctx context.Context, database *db.DB, userID int, amount decimal.Decimal) error {
	_, err := database.Pool.Exec(ctx,
		"UPDATE users SET balance = balance + $2 WHERE id = $1", userID, amount.String())
	return err
}
