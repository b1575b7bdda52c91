package walletcore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/feltstack/pokerwallet/internal/common/logger"
)

// LockManager serializes access to wallets: one logical actor per
// wallet, fully parallel across disjoint wallets (§5). A two-wallet
// operation (transfer) always acquires both locks in lexicographic
// playerId order regardless of direction, which prevents deadlock
// between two transfers touching the same pair concurrently in
// opposite directions.
//
// Each lock carries a safety timeout; if a holder exceeds it, the lock
// is forcibly cleared and the event logged. That path indicates a bug
// upstream (a handler that suspended forever on I/O without releasing)
// — it exists so one stuck request cannot wedge a wallet permanently,
// not as a substitute for correct unlock discipline.
type LockManager struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	timeout time.Duration
	logger  *logger.Logger
}

func NewLockManager(timeout time.Duration, log *logger.Logger) *LockManager {
	return &LockManager{
		locks:   make(map[string]chan struct{}),
		timeout: timeout,
		logger:  log,
	}
}

func (m *LockManager) tokenFor(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		m.locks[key] = ch
	}
	return ch
}

// Lock acquires the lock for key, blocking until it is free or ctx is
// cancelled. The returned unlock func must be called exactly once.
func (m *LockManager) Lock(ctx context.Context, key string) (unlock func(), err error) {
	ch := m.tokenFor(key)

	select {
	case <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := time.AfterFunc(m.timeout, func() {
		m.logger.Warnf("lock %q held past the %s safety timeout; forcibly clearing. This indicates a stuck handler, not a supported recovery path.", key, m.timeout)
		select {
		case ch <- struct{}{}:
		default:
		}
	})

	var once sync.Once
	unlock = func() {
		once.Do(func() {
			timer.Stop()
			select {
			case ch <- struct{}{}:
			default:
				// the watchdog already force-cleared this lock.
			}
		})
	}

	return unlock, nil
}

// LockPlayer acquires the single-wallet lock for playerID.
func (m *LockManager) LockPlayer(ctx context.Context, playerID string) (func(), error) {
	return m.Lock(ctx, "player:"+playerID)
}

// LockPair acquires locks for two distinct players in sorted order, as
// required for transfer (§5). Locking the same player twice (a==b) is
// rejected by validation before this is ever called.
func (m *LockManager) LockPair(ctx context.Context, a, b string) (func(), error) {
	return m.LockMany(ctx, []string{a, b})
}

// LockMany acquires locks for an arbitrary set of players, always in
// sorted order, so that any two operations sharing one or more players
// (a transfer and a hand settlement touching the same seat, say) always
// request their locks in the same relative order and cannot deadlock.
// Duplicate keys are acquired once. On failure, locks already taken are
// released before returning.
func (m *LockManager) LockMany(ctx context.Context, keys []string) (func(), error) {
	ordered := dedupeSorted(keys)

	unlocks := make([]func(), 0, len(ordered))
	for _, k := range ordered {
		unlock, err := m.LockPlayer(ctx, k)
		if err != nil {
			for i := len(unlocks) - 1; i >= 0; i-- {
				unlocks[i]()
			}
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}

	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}, nil
}

func dedupeSorted(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
