package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/spotex/exchange/internal/auth"
	"github.com/spotex/exchange/internal/config"
	"github.com/spotex/exchange/internal/db"
	"github.com/spotex/exchange/internal/exchange"
	"github.com/spotex/exchange/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

// Placement bounds enforced before the core is invoked.
var (
	minAmount = decimal.NewFromFloat(0.001)
	minPrice  = decimal.NewFromInt(1)
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Exchange    *exchange.Service
	DB          *db.DB
	AuthService *auth.AuthService
	Config      *config.Config
	Log         *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(ex *exchange.Service, database *db.DB, authService *auth.AuthService, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{Exchange: ex, DB: database, AuthService: authService, Config: cfg, Log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.Log.Error("failed to register user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		userID, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestUserID(r *http.Request) (int, bool) {
	userID, ok := r.Context().Value(userIDKey).(int)
	return userID, ok
}

// PlaceOrder validates a placement request and hands it to the core. The
// balance and holding pre-checks here mirror what the core re-enforces under
// lock.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Symbol string          `json:"symbol"`
		Side   string          `json:"side"`
		Amount decimal.Decimal `json:"amount"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if !h.Config.SymbolAllowed(symbol) {
		writeError(w, http.StatusUnprocessableEntity, "Symbol is not available for trading")
		return
	}
	side, err := models.ParseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Side must be 'buy' or 'sell'")
		return
	}
	if req.Amount.LessThan(minAmount) {
		writeError(w, http.StatusUnprocessableEntity, "Amount must be at least 0.001")
		return
	}
	if req.Price.LessThan(minPrice) {
		writeError(w, http.StatusUnprocessableEntity, "Price must be at least 1")
		return
	}

	switch side {
	case models.SideBuy:
		user, err := h.DB.GetUser(r.Context(), h.DB.Pool, userID)
		if err != nil {
			h.Log.Error("failed to load user", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to place order")
			return
		}
		if user.Balance.LessThan(exchange.TotalCost(req.Amount, req.Price)) {
			writeError(w, http.StatusUnprocessableEntity, "Insufficient balance to place this buy order")
			return
		}
	case models.SideSell:
		asset, err := h.DB.GetAsset(r.Context(), h.DB.Pool, userID, symbol)
		if err != nil {
			h.Log.Error("failed to load asset", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to place order")
			return
		}
		if asset == nil || asset.Amount.LessThan(req.Amount) {
			writeError(w, http.StatusUnprocessableEntity, "Insufficient asset amount to place this sell order")
			return
		}
	}

	order, err := h.Exchange.PlaceOrder(r.Context(), exchange.PlaceOrderInput{
		UserID: userID,
		Symbol: symbol,
		Side:   side,
		Amount: req.Amount,
		Price:  req.Price,
	})
	if err != nil {
		h.writeCoreError(w, err, "Failed to place order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Order placed successfully",
		"order":   order,
	})
}

// GetUserOrders retrieves the caller's orders, filtered by symbol, side and
// status. Status defaults to open.
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	filter := db.OrderFilter{}
	if v := r.URL.Query().Get("symbol"); v != "" {
		filter.Symbol = strings.ToUpper(v)
	}
	if v := r.URL.Query().Get("side"); v != "" {
		if side, err := models.ParseSide(v); err == nil {
			filter.Side = side
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		if status, err := models.ParseStatus(v); err == nil {
			filter.Status = status
		}
	}

	orders, err := h.Exchange.ListOrders(r.Context(), userID, filter)
	if err != nil {
		h.Log.Error("failed to list orders", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve orders")
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// CancelOrder cancels an open order owned by the caller. Foreign and
// terminal orders get the same response, so callers cannot probe other
// users' order ids.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	orderID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	if err := h.Exchange.CancelOrder(r.Context(), userID, orderID); err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			writeError(w, http.StatusForbidden, "Order not found or cannot be cancelled")
			return
		}
		h.writeCoreError(w, err, "Failed to cancel order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Order cancelled successfully",
		"cancelled": true,
	})
}

// Profile returns the caller's balance and holdings keyed by symbol.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, assets, err := h.Exchange.Profile(r.Context(), userID)
	if err != nil {
		h.Log.Error("failed to load profile", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve profile")
		return
	}

	holdings := make(map[string]decimal.Decimal, len(assets))
	for _, a := range assets {
		holdings[a.Symbol] = a.Amount
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"balance":  user.Balance,
		"assets":   holdings,
	})
}

func (h *Handler) writeCoreError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, db.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient balance to place this buy order")
	case errors.Is(err, db.ErrInsufficientAsset):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient asset amount to place this sell order")
	case errors.Is(err, exchange.ErrConflict):
		writeError(w, http.StatusConflict, "Conflicting update, please retry")
	default:
		h.Log.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
