package walletcore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feltstack/pokerwallet/internal/common/config"
	"github.com/feltstack/pokerwallet/internal/common/logger"
)

// DefaultCurrency is used for every wallet; the service runs one
// currency per deployment (§3).
const DefaultCurrency = "USD"

// DomainEvent is an outbox-ready domain event produced by a mutating
// operation. The Engine never publishes these itself — it hands them to
// the PersistFunc supplied by the caller, which writes them to the
// outbox in the same transaction as the state snapshot (§4.3, §9).
type DomainEvent struct {
	Type        string
	AggregateID string
	Topic       string
	Payload     map[string]interface{}
}

// PersistFunc durably commits state and events. It is invoked while the
// operation's wallet lock(s) are still held, and its error (if any)
// triggers an in-memory rollback to the pre-operation snapshot before
// the lock is released (§7, §9).
type PersistFunc func(ctx context.Context, state *ServiceState, events []DomainEvent) error

// Engine is the single, in-process actor that owns all wallet state for
// this shard. It is safe for concurrent use: LockManager enforces the
// one-logical-actor-per-wallet semantics the domain requires, while an
// internal RWMutex guards the Go maps and slices backing ServiceState
// against concurrent structural mutation (map writes are never safe to
// race with map reads, even across unrelated keys).
type Engine struct {
	mu    sync.RWMutex
	state *ServiceState

	locks  *LockManager
	cfg    config.WalletConfig
	logger *logger.Logger
	now    func() time.Time
}

func NewEngine(cfg config.WalletConfig, log *logger.Logger) *Engine {
	return &Engine{
		state:  newServiceState(),
		locks:  NewLockManager(cfg.LockTimeout, log),
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

func (e *Engine) nextID() string { return uuid.NewString() }

// LoadState replaces the engine's in-memory state wholesale, used once
// at startup to restore the last durable snapshot (§4.1). Must be
// called before the engine is exposed to any request traffic.
func (e *Engine) LoadState(state *ServiceState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state == nil {
		state = newServiceState()
	}
	e.state = state
}

// WithSnapshot runs fn with a read lock held over the current state,
// for callers that need a consistent view to serialize without racing a
// concurrent mutation.
func (e *Engine) WithSnapshot(fn func(*ServiceState) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(e.state)
}

// playerSnapshot is a pre-image of the parts of ServiceState one
// operation is about to touch, captured before Apply runs and restored
// verbatim if PersistFunc fails (§7, §9). nil map entries distinguish
// "didn't exist before" from "existed and is unchanged".
type playerSnapshot struct {
	wallets     map[string]*Wallet
	frozen      map[string][]*FrozenEntry
	journals    map[string][]*JournalEntry
	dailyLimits map[string]*DailyLimit
	rakeStats   map[string]*RakeStats
	totalTx     int64
}

func snapshotFor(state *ServiceState, players []string, dailyKeys []string, withRake bool) playerSnapshot {
	snap := playerSnapshot{
		wallets:     make(map[string]*Wallet, len(players)),
		frozen:      make(map[string][]*FrozenEntry, len(players)),
		journals:    make(map[string][]*JournalEntry, len(players)),
		dailyLimits: make(map[string]*DailyLimit, len(dailyKeys)),
		totalTx:     state.TotalTransactions,
	}

	for _, id := range players {
		if w, ok := state.Wallets[id]; ok {
			cp := *w
			snap.wallets[id] = &cp
		} else {
			snap.wallets[id] = nil
		}
		snap.frozen[id] = append([]*FrozenEntry(nil), state.Frozen[id]...)
		snap.journals[id] = append([]*JournalEntry(nil), state.Journals[id]...)
	}

	for _, key := range dailyKeys {
		if dl, ok := state.DailyLimits[key]; ok {
			cp := *dl
			snap.dailyLimits[key] = &cp
		} else {
			snap.dailyLimits[key] = nil
		}
	}

	if withRake {
		snap.rakeStats = make(map[string]*RakeStats, len(state.RakeStats))
		for label, rs := range state.RakeStats {
			cp := *rs
			snap.rakeStats[label] = &cp
		}
	}

	return snap
}

func restoreFrom(state *ServiceState, snap playerSnapshot) {
	for id, w := range snap.wallets {
		if w == nil {
			delete(state.Wallets, id)
		} else {
			state.Wallets[id] = w
		}
	}
	for id, entries := range snap.frozen {
		if len(entries) == 0 {
			delete(state.Frozen, id)
		} else {
			state.Frozen[id] = entries
		}
	}
	for id, entries := range snap.journals {
		if len(entries) == 0 {
			delete(state.Journals, id)
		} else {
			state.Journals[id] = entries
		}
	}
	for key, dl := range snap.dailyLimits {
		if dl == nil {
			delete(state.DailyLimits, key)
		} else {
			state.DailyLimits[key] = dl
		}
	}
	if snap.rakeStats != nil {
		state.RakeStats = make(map[string]*RakeStats, len(snap.rakeStats))
		for label, rs := range snap.rakeStats {
			state.RakeStats[label] = rs
		}
	}
	state.TotalTransactions = snap.totalTx
}

// runLocked is the common shape behind every mutating operation (§4.4):
// acquire the lock(s), snapshot the substructures apply is about to
// touch, run apply, and on success hand the result to persist while
// still holding the lock; if persist fails, roll the in-memory mutation
// back before returning. The lock is released last, whatever happened.
func (e *Engine) runLocked(ctx context.Context, players []string, dailyKeys []string, withRake bool, persist PersistFunc, apply func(*ServiceState) ([]DomainEvent, error)) error {
	unlock, lockErr := e.lockPlayers(ctx, players)
	if lockErr != nil {
		return NewInternalError("acquiring wallet lock: %v", lockErr)
	}
	defer unlock()

	e.mu.Lock()
	pre := snapshotFor(e.state, players, dailyKeys, withRake)
	events, applyErr := apply(e.state)
	if applyErr != nil {
		restoreFrom(e.state, pre)
		e.mu.Unlock()
		return applyErr
	}
	e.mu.Unlock()

	e.mu.RLock()
	persistErr := persist(ctx, e.state, events)
	e.mu.RUnlock()
	if persistErr != nil {
		e.mu.Lock()
		restoreFrom(e.state, pre)
		e.mu.Unlock()
		e.logger.Errorf("persist failed, rolled back in-memory mutation for %v: %v", players, persistErr)
		return NewInternalError("failed to persist state: %v", persistErr)
	}

	return nil
}

func (e *Engine) lockPlayers(ctx context.Context, players []string) (func(), error) {
	if len(players) == 0 {
		return nil, NewInternalError("runLocked: no players to lock")
	}
	return e.locks.LockMany(ctx, players)
}

// Initialize creates a wallet with an explicit starting balance,
// failing if one already exists for playerID (§4.4).
func (e *Engine) Initialize(ctx context.Context, playerID string, initialBalance int64, persist PersistFunc) (*Wallet, error) {
	if playerID == "" {
		return nil, NewValidationError("playerId is required")
	}
	if initialBalance < 0 {
		return nil, NewValidationError("initialBalance must be non-negative")
	}

	var wallet *Wallet
	err := e.runLocked(ctx, []string{playerID}, nil, false, persist, func(state *ServiceState) ([]DomainEvent, error) {
		now := e.now()
		w, err := createWallet(state, playerID, initialBalance, DefaultCurrency, e.cfg.JournalCap, now, e.nextID)
		if err != nil {
			return nil, err
		}
		wallet = w
		state.LastUpdated = now
		return []DomainEvent{{
			Type:        "wallet.initialized",
			AggregateID: playerID,
			Topic:       "wallet-events",
			Payload: map[string]interface{}{
				"playerId":       playerID,
				"initialBalance": initialBalance,
			},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// GetWallet returns the current read model for playerID (§4.4). Queries
// never take a wallet lock; a brief read lock over the engine's maps is
// enough to make the map access itself memory-safe (§5).
func (e *Engine) GetWallet(playerID string) (*WalletView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return viewWallet(e.state, playerID)
}

// GetTransactions returns playerID's journal, newest first, filtered (§4.4).
func (e *Engine) GetTransactions(playerID string, filter TransactionFilter) ([]*JournalEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.state.Wallets[playerID]; !ok {
		return nil, NewNotFoundError("wallet for player %q not found", playerID)
	}
	return filterJournal(e.state, playerID, filter), nil
}

// GetRakeStats resolves a day/month/year rake query (§4.4).
func (e *Engine) GetRakeStats(kind, label string) (*RakeStats, error) {
	pk, err := validatePeriodKind(kind)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return rakeStatsFor(e.state, pk, label, e.now())
}

// Stats is the service-wide summary returned by getStats (§4.4, §6).
type Stats struct {
	WalletCount       int       `json:"walletCount"`
	ActiveWallets     int       `json:"activeWallets"`
	TotalBalance      int64     `json:"totalBalance"`
	TotalFrozen       int64     `json:"totalFrozen"`
	TotalTransactions int64     `json:"totalTransactions"`
	CreatedAt         time.Time `json:"createdAt"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// GetStats computes the service-wide summary, including the count of
// wallets with at least one journal entry in the last 24h (§4.4). Like
// every query, it takes no wallet lock (only the engine's read lock over
// its maps) and may observe different wallets at slightly different
// points in time (§5, §9).
func (e *Engine) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &Stats{
		WalletCount:       len(e.state.Wallets),
		TotalTransactions: e.state.TotalTransactions,
		CreatedAt:         e.state.CreatedAt,
		LastUpdated:       e.state.LastUpdated,
	}
	for _, w := range e.state.Wallets {
		stats.TotalBalance += w.Balance
	}
	for _, entries := range e.state.Frozen {
		for _, f := range entries {
			stats.TotalFrozen += f.Amount
		}
	}

	cutoff := e.now().Add(-24 * time.Hour)
	for _, entries := range e.state.Journals {
		if len(entries) > 0 && entries[len(entries)-1].Timestamp.After(cutoff) {
			stats.ActiveWallets++
		}
	}
	return stats
}

// HealthSnapshot is the liveness view returned by /health (§4.4, §6).
type HealthSnapshot struct {
	Uptime            time.Duration `json:"uptime"`
	WalletCount       int           `json:"walletCount"`
	TotalTransactions int64         `json:"totalTransactions"`
	TotalFrozen       int64         `json:"totalFrozen"`
}

// Health reports the liveness snapshot an operator probe needs: wallet
// count, total journal entries across every wallet, and the sum of all
// open frozen entries, as of now (§4.4).
func (e *Engine) Health() *HealthSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := &HealthSnapshot{
		Uptime:      e.now().Sub(e.state.CreatedAt),
		WalletCount: len(e.state.Wallets),
	}
	for _, entries := range e.state.Journals {
		snap.TotalTransactions += int64(len(entries))
	}
	for _, entries := range e.state.Frozen {
		for _, f := range entries {
			snap.TotalFrozen += f.Amount
		}
	}
	return snap
}

// GC runs the periodic housekeeping sweep (daily limit retention, §3/§5).
// Intended to be called on a ticker from cmd/walletd, not per-request.
func (e *Engine) GC() {
	e.mu.Lock()
	defer e.mu.Unlock()
	gcDailyLimits(e.state, e.now())
}
