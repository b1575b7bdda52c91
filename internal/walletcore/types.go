// Package walletcore is the pure, in-memory heart of the wallet/ledger
// service: the wallet registry, frozen-funds ledger, per-wallet journal,
// daily limit counters, rake aggregator, and the lock manager that
// serializes access to all of them. Nothing in this package performs
// I/O — durability, caching, and eventing are the concern of the
// internal/store, internal/common/redis, and pkg/outbox packages that
// wrap an Engine.
package walletcore

import "time"

// Journal entry kinds, per §3.
const (
	KindBuyIn      = "buy_in"
	KindCashOut    = "cash_out"
	KindWin        = "win"
	KindLoss       = "loss"
	KindDeposit    = "deposit"
	KindWithdrawal = "withdrawal"
	KindTransfer   = "transfer"
	KindRefund     = "refund"
	KindRake       = "rake"
)

// TransferDirection tags one leg of a transfer's pair of journal entries.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

const (
	// HouseWallet is the sentinel wallet id rake is credited to.
	HouseWallet = "house"

	// FrozenReasonBuyIn is the only escrow reason this service currently issues.
	FrozenReasonBuyIn = "buy_in"
)

// Wallet is the authoritative balance record for one player (or the
// house sentinel).
type Wallet struct {
	PlayerID    string    `json:"playerId"`
	Balance     int64     `json:"balance"`
	Currency    string    `json:"currency"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// FrozenEntry is escrow tied to a seat at a table (§3). At most one
// exists per (playerId, tableId) at any time.
type FrozenEntry struct {
	ID       string    `json:"id"`
	PlayerID string    `json:"playerId"`
	TableID  string    `json:"tableId"`
	Amount   int64     `json:"amount"`
	FrozenAt time.Time `json:"frozenAt"`
	Reason   string    `json:"reason"`
}

// JournalEntry is one money-movement record in a wallet's ordered,
// capped journal (§3).
type JournalEntry struct {
	ID              string                 `json:"id"`
	PlayerID        string                 `json:"playerId"`
	Kind            string                 `json:"kind"`
	Amount          int64                  `json:"amount"`
	PostBalance     int64                  `json:"postBalance"`
	TableID         string                 `json:"tableId,omitempty"`
	HandID          string                 `json:"handId,omitempty"`
	RelatedPlayerID string                 `json:"relatedPlayerId,omitempty"`
	Description     string                 `json:"description,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

// DailyLimit tracks the three running totals compared against the
// configured daily caps for one (playerId, localDate) pair.
type DailyLimit struct {
	PlayerID    string    `json:"playerId"`
	LocalDate   string    `json:"localDate"` // YYYY-MM-DD
	Deposits    int64     `json:"deposits"`
	Withdrawals int64     `json:"withdrawals"`
	BuyIns      int64     `json:"buyIns"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RakeStats is the rolling total for one period label (day/month/year).
type RakeStats struct {
	PeriodLabel string    `json:"periodLabel"`
	TotalRake   int64     `json:"totalRake"`
	HandCount   int64     `json:"handCount"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// ServiceState is the full atomic snapshot unit persisted by
// internal/store (§3, §4.1).
type ServiceState struct {
	Wallets           map[string]*Wallet        `json:"wallets"`
	Frozen            map[string][]*FrozenEntry `json:"frozen"`   // keyed by playerId
	Journals          map[string][]*JournalEntry `json:"journals"` // keyed by playerId
	DailyLimits       map[string]*DailyLimit    `json:"dailyLimits"` // keyed by playerId|localDate
	RakeStats         map[string]*RakeStats     `json:"rakeStats"`   // keyed by periodLabel
	CreatedAt         time.Time                 `json:"createdAt"`
	LastUpdated       time.Time                 `json:"lastUpdated"`
	TotalTransactions int64                     `json:"totalTransactions"`
}

func newServiceState() *ServiceState {
	now := time.Now()
	return &ServiceState{
		Wallets:     make(map[string]*Wallet),
		Frozen:      make(map[string][]*FrozenEntry),
		Journals:    make(map[string][]*JournalEntry),
		DailyLimits: make(map[string]*DailyLimit),
		RakeStats:   make(map[string]*RakeStats),
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// WalletView is the read model returned by wallet queries: balance,
// frozen total, and the derived available balance (§4.2).
type WalletView struct {
	Wallet    *Wallet `json:"wallet"`
	Frozen    int64   `json:"frozen"`
	Available int64   `json:"available"`
}
