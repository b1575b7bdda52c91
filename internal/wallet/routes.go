package wallet

import (
	"net/http"

	"github.com/feltstack/pokerwallet/internal/common/middleware"
)

// RegisterRoutes wires every endpoint named in §6 onto mux. Player-owned
// operations require a verified bearer token identifying the caller;
// batch operations that touch many wallets at once are gated by the
// shared operator key instead.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, jwtSecret, operatorKeyHash string) {
	player := middleware.JWTAuth(jwtSecret)
	operator := middleware.OperatorAuth(operatorKeyHash)

	mux.Handle("POST /api/v1/wallets/initialize", player(http.HandlerFunc(h.Initialize)))
	mux.Handle("GET /api/v1/wallets/me", player(http.HandlerFunc(h.GetWallet)))
	mux.Handle("GET /api/v1/wallets/me/transactions", player(http.HandlerFunc(h.GetTransactions)))
	mux.Handle("POST /api/v1/wallets/me/buy-in", player(http.HandlerFunc(h.BuyIn)))
	mux.Handle("POST /api/v1/wallets/me/cash-out", player(http.HandlerFunc(h.CashOut)))
	mux.Handle("POST /api/v1/wallets/me/deposit", player(http.HandlerFunc(h.Deposit)))
	mux.Handle("POST /api/v1/wallets/me/withdraw", player(http.HandlerFunc(h.Withdraw)))
	mux.Handle("POST /api/v1/wallets/me/transfer", player(http.HandlerFunc(h.Transfer)))

	mux.HandleFunc("GET /health", h.Health)

	mux.Handle("GET /api/v1/stats", operator(http.HandlerFunc(h.GetStats)))
	mux.Handle("GET /api/v1/rake", operator(http.HandlerFunc(h.GetRakeStats)))
	mux.Handle("POST /api/v1/batch/process-winnings", operator(http.HandlerFunc(h.ProcessWinnings)))
	mux.Handle("POST /api/v1/batch/rollback-buyin", operator(http.HandlerFunc(h.RollbackBuyIn)))
	mux.Handle("POST /api/v1/batch/rollback-hand", operator(http.HandlerFunc(h.RollbackHand)))
	mux.Handle("POST /api/v1/batch/collect-rake", operator(http.HandlerFunc(h.CollectRake)))
}
