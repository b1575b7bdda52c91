package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/feltstack/pokerwallet/internal/common/logger"
	"github.com/feltstack/pokerwallet/internal/common/middleware"
	"github.com/feltstack/pokerwallet/internal/walletcore"
)

// ServiceInterface is the contract the handler depends on, so handler
// tests can substitute a fake without standing up Postgres/Redis/Kafka.
type ServiceInterface interface {
	Initialize(ctx context.Context, playerID string, initialBalance int64) (*walletcore.Wallet, error)
	GetWallet(playerID string) (*walletcore.WalletView, error)
	GetTransactions(playerID string, filter walletcore.TransactionFilter) ([]*walletcore.JournalEntry, error)
	GetStats() *walletcore.Stats
	Health() *walletcore.HealthSnapshot
	GetRakeStats(kind, label string) (*walletcore.RakeStats, error)
	BuyIn(ctx context.Context, playerID, tableID string, amount int64) (*walletcore.BuyInResult, error)
	CashOut(ctx context.Context, playerID, tableID string, chipAmount int64) (*walletcore.CashOutResult, error)
	Deposit(ctx context.Context, playerID string, amount int64, description string) (*walletcore.DepositResult, error)
	Withdraw(ctx context.Context, playerID string, amount int64, description string) (*walletcore.WithdrawResult, error)
	Transfer(ctx context.Context, fromID, toID string, amount int64, description string) (*walletcore.TransferResult, error)
	ProcessWinnings(ctx context.Context, tableID, handID string, winners, losers []walletcore.PlayerAmount) (*walletcore.ProcessWinningsResult, error)
	RollbackBuyIn(ctx context.Context, playerID, tableID string, amount int64, reason string) (*walletcore.Wallet, error)
	RollbackHand(ctx context.Context, tableID, handID string, refunds []walletcore.PlayerRefund, reason string) (map[string]*walletcore.Wallet, error)
	CollectRake(ctx context.Context, tableID, handID string, potAmount, rakePercentage, maxRake int64, winnerPlayerID string, winners []walletcore.RakeWinner) (*walletcore.RakeResult, error)
	GetCachedReply(ctx context.Context, key string) ([]byte, int, bool)
	CacheReply(ctx context.Context, key string, status int, body []byte)
}

type Handler struct {
	service    ServiceInterface
	logger     *logger.Logger
	instanceID string
}

func NewHandler(service ServiceInterface, log *logger.Logger, instanceID string) *Handler {
	return &Handler{service: service, logger: log, instanceID: instanceID}
}

// statusForError maps the walletcore error taxonomy onto HTTP status
// codes (§7). Anything not one of the four named types is treated as
// unexpected and reported as a 500 without leaking its text.
func statusForError(err error) (int, string) {
	switch err.(type) {
	case *walletcore.ValidationError, *walletcore.ConflictError, *walletcore.LimitError:
		return http.StatusBadRequest, err.Error()
	case *walletcore.NotFoundError:
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	data, err := json.Marshal(body)
	if err != nil {
		h.logger.Errorf("failed to marshal response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if key := r.Header.Get("Idempotency-Key"); key != "" && status < http.StatusInternalServerError {
		h.service.CacheReply(r.Context(), key, status, data)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// respondRaw writes body verbatim (no {success,data,error} wrapping),
// still participating in idempotency caching. Used only for buy-in's
// flattened backward-compatible shape (§6).
func (h *Handler) respondRaw(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		h.logger.Errorf("failed to marshal response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if key := r.Header.Get("Idempotency-Key"); key != "" && status < http.StatusInternalServerError {
		h.service.CacheReply(r.Context(), key, status, data)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusForError(err)
	h.respond(w, r, status, fail(msg))
}

// tryCachedReply replays a previously cached response verbatim when the
// caller retried a request with a known Idempotency-Key (§4.3). Returns
// true if it handled the response.
func (h *Handler) tryCachedReply(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return false
	}
	body, status, found := h.service.GetCachedReply(r.Context(), key)
	if !found {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotent-Replayed", "true")
	w.WriteHeader(status)
	w.Write(body)
	return true
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond(w, r, http.StatusBadRequest, fail("invalid request body"))
		return
	}

	playerID, _ := middleware.GetPlayerIDFromContext(r.Context())
	if req.PlayerID != "" && req.PlayerID != playerID {
		h.respond(w, r, http.StatusForbidden, fail("cannot initialize another player's wallet"))
		return
	}
	req.PlayerID = playerID

	wallet, err := h.service.Initialize(r.Context(), req.PlayerID, req.InitialBalance)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, ok(wallet))
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	playerID, ok2 := middleware.GetPlayerIDFromContext(r.Context())
	if !ok2 {
		h.respond(w, r, http.StatusUnauthorized, fail("unauthorized"))
		return
	}

	view, err := h.service.GetWallet(playerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, ok(view))
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	playerID, ok2 := middleware.GetPlayerIDFromContext(r.Context())
	if !ok2 {
		h.respond(w, r, http.StatusUnauthorized, fail("unauthorized"))
		return
	}

	filter := walletcore.TransactionFilter{
		Kind:    r.URL.Query().Get("kind"),
		TableID: r.URL.Query().Get("tableId"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		if n, err := strconv.ParseInt(sinceStr, 10, 64); err == nil {
			filter.Since = &n
		}
	}

	entries, err := h.service.GetTransactions(playerID, filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, ok(entries))
}

func (h *Handler) BuyIn(w http.ResponseWriter, r *http.Request) {
	if h.tryCachedReply(w, r) {
		return
	}
	playerID, ok2 := middleware.GetPlayerIDFromContext(r.Context())
	if !ok2 {
		h.respond(w, r, http.StatusUnauthorized, fail("unauthorized"))
		return
	}

	var req buyInRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond(w, r, http.StatusBadRequest, fail("invalid request body"))
		return
	}

	result, err := h.service.BuyIn(r.Context(), playerID, req.TableID, req.Amount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondRaw(w, r, http.StatusOK, buyInResponse{
		Success:       true,
		ChipCount:     req.Amount,
		WalletBalance: result.Available,
	})
}

func (h *Handler) CashOut(w http.ResponseWriter, r *http.Request) {
	if h.tryCachedReply(w, r) {
		return
	}
	playerID, ok2 := middleware.GetPlayerIDFromContext(r.Context())
	if !ok2 {
		h.respond(w, r, http.StatusUnauthorized, fail("unauthorized"))
		return
	}

	var req cashOutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond(w, r, http.StatusBadRequest, fail("invalid request body"))
		return
	}

	result, err := h.service.CashOut(r.Context(), playerID, req.TableID, req.ChipAmount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, ok(cashOutResponse{
		PlayerID:  playerID,
		TableID:   req.TableID,
		NetChange: result.NetChange,
		Balance:   result.Wallet.Balance,
	}))
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	if h.tryCachedReply(w, r) {
		return
	}
	playerID, ok2 := middleware.GetPlayerIDFromContext(r.Context())
	if !ok2 {
		h.respond(w, r, http.StatusUnauthorized, fail("unauthorized"))
		return
	}

	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond(w, r, http.StatusBadRequest, fail("invalid request body"))
		return
	}

	result, err := h.service.Deposit(r.Context(), playerID, req.Amount, req.Description)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, ok(result.Wallet))
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	if h.tryCachedReply(w, r) {
		return
	}
	playerID, ok2 := middleware.GetPlayerIDFromContext(r.Context())
	if !ok2 {
		h.respond(w, r, http.StatusUnauthorized, fail("unauthorized"))
		return
	}

	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond(w, r, http.StatusBadRequest, fail("invalid request body"))
		return
	}

	result, err := h.service.Withdraw(r.Context(), playerID, req.Amount, req.Description)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, ok(result.Wallet))
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	if h.tryCachedReply(w, r) {
		return
	}
	playerID, ok2 := middleware.GetPlayerIDFromContext(r.Context())
	if !ok2 {
		h.respond(w, r, http.StatusUnauthorized, fail("unauthorized"))
		return
	}

	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond(w, r, http.StatusBadRequest, fail("invalid request body"))
		return
	}

	result, err := h.service.Transfer(r.Context(), playerID, req.ToPlayerID, req.Amount, req.Description)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, ok(transferResponse{
		TransferID: result.TransferID,
		From:       result.From.PlayerID,
		To:         result.To.PlayerID,
		Amount:     req.Amount,
	}))
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, ok(h.service.GetStats()))
}

// Health reports a liveness snapshot: uptime, wallet/journal/frozen
// totals, this instance's identifier, and the probe's own response time
// (§4.4). It takes no wallet lock, same as every other query.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap := h.service.Health()
	h.respondRaw(w, r, http.StatusOK, healthResponse{
		Status:            "healthy",
		UptimeSeconds:     snap.Uptime.Seconds(),
		WalletCount:       snap.WalletCount,
		TotalTransactions: snap.TotalTransactions,
		TotalFrozen:       snap.TotalFrozen,
		InstanceID:        h.instanceID,
		ResponseTimeMs:    float64(time.Since(start).Microseconds()) / 1000.0,
	})
}

// periodAliases accepts the §6 query values (daily/monthly/yearly)
// alongside the walletcore.PeriodKind spellings (day/month/year).
var periodAliases = map[string]string{
	"daily": "day", "monthly": "month", "yearly": "year",
}

func (h *Handler) GetRakeStats(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("period")
	if kind == "" {
		kind = "day"
	}
	if alias, ok := periodAliases[kind]; ok {
		kind = alias
	}
	label := r.URL.Query().Get("label")

	stats, err := h.service.GetRakeStats(kind, label)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, ok(toRakeStatsResponse(stats)))
}

// ProcessWinnings, RollbackBuyIn, RollbackHand and CollectRake are batch
// operations with no single owning player, gated by the operator key
// middleware rather than JWT (§6).

func (h *Handler) ProcessWinnings(w http.ResponseWriter, r *http.Request) {
	if h.tryCachedReply(w, r) {
		return
	}

	var req processWinningsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond(w, r, http.StatusBadRequest, fail("invalid request body"))
		return
	}

	result, err := h.service.ProcessWinnings(r.Context(), req.TableID, req.HandID, toPlayerAmounts(req.Winners), toPlayerAmounts(req.Losers))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, ok(result.Wallets))
}

func (h *Handler) RollbackBuyIn(w http.ResponseWriter, r *http.Request) {
	if h.tryCachedReply(w, r) {
		return
	}

	var req rollbackBuyInRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond(w, r, http.StatusBadRequest, fail("invalid request body"))
		return
	}

	wallet, err := h.service.RollbackBuyIn(r.Context(), req.PlayerID, req.TableID, req.Amount, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, ok(wallet))
}

func (h *Handler) RollbackHand(w http.ResponseWriter, r *http.Request) {
	if h.tryCachedReply(w, r) {
		return
	}

	var req rollbackHandRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond(w, r, http.StatusBadRequest, fail("invalid request body"))
		return
	}

	wallets, err := h.service.RollbackHand(r.Context(), req.TableID, req.HandID, toPlayerRefunds(req.Players), req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, ok(wallets))
}

func (h *Handler) CollectRake(w http.ResponseWriter, r *http.Request) {
	if h.tryCachedReply(w, r) {
		return
	}

	var req collectRakeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond(w, r, http.StatusBadRequest, fail("invalid request body"))
		return
	}

	result, err := h.service.CollectRake(r.Context(), req.TableID, req.HandID, req.PotAmount, req.RakePercentage, req.MaxRake, req.WinnerPlayerID, toRakeWinners(req.Winners))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respond(w, r, http.StatusOK, ok(collectRakeResponse{
		TableID:    req.TableID,
		HandID:     req.HandID,
		RakeAmount: result.RakeAmount,
		NetPot:     result.NetPot,
		Payouts:    result.Payouts,
	}))
}
