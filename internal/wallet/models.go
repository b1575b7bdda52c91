package wallet

import "github.com/feltstack/pokerwallet/internal/walletcore"

// envelope wraps every response in the {success, data, error} shape
// (§6). Only one of Data/Error is ever populated.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(data interface{}) envelope { return envelope{Success: true, Data: data} }
func fail(msg string) envelope     { return envelope{Success: false, Error: msg} }

// healthResponse is the flat liveness shape returned by /health (§4.4,
// §6) — not wrapped in the {success,data,error} envelope, the same
// treatment buy-in gets.
type healthResponse struct {
	Status            string  `json:"status"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
	WalletCount       int     `json:"walletCount"`
	TotalTransactions int64   `json:"totalTransactions"`
	TotalFrozen       int64   `json:"totalFrozen"`
	InstanceID        string  `json:"instanceId"`
	ResponseTimeMs    float64 `json:"responseTimeMs"`
}

type initializeRequest struct {
	PlayerID       string `json:"playerId"`
	InitialBalance int64  `json:"initialBalance"`
}

type buyInRequest struct {
	TableID string `json:"tableId"`
	Amount  int64  `json:"amount"`
}

// buyInResponse is the flat { success, chipCount, walletBalance } shape
// §6 carries forward for backward compatibility, bypassing the usual
// {success,data,error} envelope.
type buyInResponse struct {
	Success       bool  `json:"success"`
	ChipCount     int64 `json:"chipCount"`
	WalletBalance int64 `json:"walletBalance"`
}

type cashOutRequest struct {
	TableID    string `json:"tableId"`
	ChipAmount int64  `json:"chipAmount"`
}

type cashOutResponse struct {
	PlayerID  string `json:"playerId"`
	TableID   string `json:"tableId"`
	NetChange int64  `json:"netChange"`
	Balance   int64  `json:"balance"`
}

type depositRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

type withdrawRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

type transferRequest struct {
	ToPlayerID  string `json:"toPlayerId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

type transferResponse struct {
	TransferID string `json:"transferId"`
	From       string `json:"fromPlayerId"`
	To         string `json:"toPlayerId"`
	Amount     int64  `json:"amount"`
}

type playerAmountRequest struct {
	PlayerID string `json:"playerId"`
	Amount   int64  `json:"amount"`
}

type processWinningsRequest struct {
	TableID string                `json:"tableId"`
	HandID  string                `json:"handId"`
	Winners []playerAmountRequest `json:"winners"`
	Losers  []playerAmountRequest `json:"losers"`
}

type rollbackBuyInRequest struct {
	PlayerID string `json:"playerId"`
	TableID  string `json:"tableId"`
	Amount   int64  `json:"amount,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type playerRefundRequest struct {
	PlayerID     string `json:"playerId"`
	RefundAmount int64  `json:"refundAmount"`
}

type rollbackHandRequest struct {
	TableID string                `json:"tableId"`
	HandID  string                `json:"handId"`
	Players []playerRefundRequest `json:"players"`
	Reason  string                `json:"reason,omitempty"`
}

type rakeWinnerRequest struct {
	PlayerID string  `json:"playerId"`
	Share    float64 `json:"share"`
}

type collectRakeRequest struct {
	TableID        string              `json:"tableId"`
	HandID         string              `json:"handId"`
	PotAmount      int64               `json:"potAmount"`
	RakePercentage int64               `json:"rakePercentage"`
	MaxRake        int64               `json:"maxRake"`
	WinnerPlayerID string              `json:"winnerPlayerId,omitempty"`
	Winners        []rakeWinnerRequest `json:"winners,omitempty"`
}

type collectRakeResponse struct {
	TableID    string           `json:"tableId"`
	HandID     string           `json:"handId"`
	RakeAmount int64            `json:"rakeAmount"`
	NetPot     int64            `json:"netPot"`
	Payouts    map[string]int64 `json:"payouts"`
}

// rakeStatsResponse adds the derived averageRake the handler computes on
// top of the raw rolling totals (§4.4: "averageRake = totalRake /
// handCount when handCount > 0").
type rakeStatsResponse struct {
	PeriodLabel string  `json:"periodLabel"`
	TotalRake   int64   `json:"totalRake"`
	HandCount   int64   `json:"handCount"`
	AverageRake float64 `json:"averageRake"`
}

func toRakeStatsResponse(stats *walletcore.RakeStats) rakeStatsResponse {
	return rakeStatsResponse{
		PeriodLabel: stats.PeriodLabel,
		TotalRake:   stats.TotalRake,
		HandCount:   stats.HandCount,
		AverageRake: walletcore.AverageRake(stats),
	}
}

func toRakeWinners(in []rakeWinnerRequest) []walletcore.RakeWinner {
	out := make([]walletcore.RakeWinner, len(in))
	for i, w := range in {
		out[i] = walletcore.RakeWinner{PlayerID: w.PlayerID, Share: w.Share}
	}
	return out
}

func toPlayerAmounts(in []playerAmountRequest) []walletcore.PlayerAmount {
	out := make([]walletcore.PlayerAmount, len(in))
	for i, pa := range in {
		out[i] = walletcore.PlayerAmount{PlayerID: pa.PlayerID, Amount: pa.Amount}
	}
	return out
}

func toPlayerRefunds(in []playerRefundRequest) []walletcore.PlayerRefund {
	out := make([]walletcore.PlayerRefund, len(in))
	for i, p := range in {
		out[i] = walletcore.PlayerRefund{PlayerID: p.PlayerID, RefundAmount: p.RefundAmount}
	}
	return out
}
