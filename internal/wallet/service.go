package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/feltstack/pokerwallet/internal/common/logger"
	redisclient "github.com/feltstack/pokerwallet/internal/common/redis"
	"github.com/feltstack/pokerwallet/internal/store"
	"github.com/feltstack/pokerwallet/internal/walletcore"
	"github.com/feltstack/pokerwallet/pkg/outbox"
)

// Service is the thin orchestration layer between HTTP and the engine:
// it wires persistence and outbox publishing into every mutating call
// and exposes the idempotent-reply cache to the handler (§4.3, §4.4).
type Service struct {
	engine     *walletcore.Engine
	store      *store.Store
	outboxRepo *outbox.Repository
	redis      *redisclient.Client
	idempTTL   time.Duration
	logger     *logger.Logger
}

func NewService(engine *walletcore.Engine, st *store.Store, outboxRepo *outbox.Repository, redis *redisclient.Client, idempTTL time.Duration, log *logger.Logger) *Service {
	return &Service{
		engine:     engine,
		store:      st,
		outboxRepo: outboxRepo,
		redis:      redis,
		idempTTL:   idempTTL,
		logger:     log,
	}
}

// persist is passed to every mutating walletcore.Engine call: it writes
// the full state snapshot and the operation's domain events to Postgres
// in one transaction (§4.3, §9).
func (s *Service) persist(ctx context.Context, state *walletcore.ServiceState, events []walletcore.DomainEvent) error {
	return s.store.Save(ctx, state, func(ctx context.Context, tx *sql.Tx) error {
		for _, e := range events {
			oe := &outbox.OutboxEvent{
				AggregateID: e.AggregateID,
				EventType:   e.Type,
				Topic:       e.Topic,
				Payload:     e.Payload,
			}
			if err := s.outboxRepo.SaveEvent(ctx, tx, oe); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetCachedReply returns a previously cached byte-for-byte response for
// an Idempotency-Key, if one exists (§4.3).
func (s *Service) GetCachedReply(ctx context.Context, key string) ([]byte, int, bool) {
	raw, err := s.redis.GetIdempotency(ctx, key)
	if err != nil {
		if !redisclient.IsNotFound(err) {
			s.logger.Warnf("idempotency lookup failed for key %q: %v", key, err)
		}
		return nil, 0, false
	}

	var reply redisclient.CachedReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		s.logger.Warnf("failed to decode cached reply for key %q: %v", key, err)
		return nil, 0, false
	}
	return reply.Body, reply.Status, true
}

// CacheReply stores a response under an Idempotency-Key so a retried
// request replays it byte-for-byte instead of re-executing (§4.3).
func (s *Service) CacheReply(ctx context.Context, key string, status int, body []byte) {
	reply := redisclient.CachedReply{Status: status, Body: body, CreatedAt: time.Now().Unix()}
	payload, err := json.Marshal(reply)
	if err != nil {
		s.logger.Errorf("failed to marshal cached reply for key %q: %v", key, err)
		return
	}
	if err := s.redis.SetIdempotency(ctx, key, payload, s.idempTTL); err != nil {
		s.logger.Warnf("failed to cache idempotent reply for key %q: %v", key, err)
	}
}

func (s *Service) Initialize(ctx context.Context, playerID string, initialBalance int64) (*walletcore.Wallet, error) {
	return s.engine.Initialize(ctx, playerID, initialBalance, s.persist)
}

func (s *Service) GetWallet(playerID string) (*walletcore.WalletView, error) {
	return s.engine.GetWallet(playerID)
}

func (s *Service) GetTransactions(playerID string, filter walletcore.TransactionFilter) ([]*walletcore.JournalEntry, error) {
	return s.engine.GetTransactions(playerID, filter)
}

func (s *Service) GetStats() *walletcore.Stats {
	return s.engine.GetStats()
}

func (s *Service) Health() *walletcore.HealthSnapshot {
	return s.engine.Health()
}

func (s *Service) GetRakeStats(kind, label string) (*walletcore.RakeStats, error) {
	return s.engine.GetRakeStats(kind, label)
}

// rateGateLimit and rateGateWindow bound how many buy-in/deposit/
// withdrawal requests one player can issue in a short window, a
// defense-in-depth guard against retry storms that isn't itself the
// source of truth for daily caps (§9 "rate limiter for error-callback
// storms"; §11). Failing open on a Redis outage is handled inside
// redisclient.Client.AllowRate.
const (
	rateGateLimit  = 20
	rateGateWindow = 10 * time.Second
)

func (s *Service) checkRateGate(ctx context.Context, kind, playerID string) error {
	if !s.redis.AllowRate(ctx, kind+":"+playerID, rateGateLimit, rateGateWindow) {
		return walletcore.NewLimitError("too many %s requests for player %q, slow down", kind, playerID)
	}
	return nil
}

func (s *Service) BuyIn(ctx context.Context, playerID, tableID string, amount int64) (*walletcore.BuyInResult, error) {
	if err := s.checkRateGate(ctx, "buyin", playerID); err != nil {
		return nil, err
	}
	return s.engine.BuyIn(ctx, playerID, tableID, amount, s.persist)
}

func (s *Service) CashOut(ctx context.Context, playerID, tableID string, chipAmount int64) (*walletcore.CashOutResult, error) {
	return s.engine.CashOut(ctx, playerID, tableID, chipAmount, s.persist)
}

func (s *Service) Deposit(ctx context.Context, playerID string, amount int64, description string) (*walletcore.DepositResult, error) {
	if err := s.checkRateGate(ctx, "deposit", playerID); err != nil {
		return nil, err
	}
	return s.engine.Deposit(ctx, playerID, amount, description, s.persist)
}

func (s *Service) Withdraw(ctx context.Context, playerID string, amount int64, description string) (*walletcore.WithdrawResult, error) {
	if err := s.checkRateGate(ctx, "withdraw", playerID); err != nil {
		return nil, err
	}
	return s.engine.Withdraw(ctx, playerID, amount, description, s.persist)
}

func (s *Service) Transfer(ctx context.Context, fromID, toID string, amount int64, description string) (*walletcore.TransferResult, error) {
	return s.engine.Transfer(ctx, fromID, toID, amount, description, s.persist)
}

func (s *Service) ProcessWinnings(ctx context.Context, tableID, handID string, winners, losers []walletcore.PlayerAmount) (*walletcore.ProcessWinningsResult, error) {
	return s.engine.ProcessWinnings(ctx, tableID, handID, winners, losers, s.persist)
}

func (s *Service) RollbackBuyIn(ctx context.Context, playerID, tableID string, amount int64, reason string) (*walletcore.Wallet, error) {
	return s.engine.RollbackBuyIn(ctx, playerID, tableID, amount, reason, s.persist)
}

func (s *Service) RollbackHand(ctx context.Context, tableID, handID string, refunds []walletcore.PlayerRefund, reason string) (map[string]*walletcore.Wallet, error) {
	return s.engine.RollbackHand(ctx, tableID, handID, refunds, reason, s.persist)
}

func (s *Service) CollectRake(ctx context.Context, tableID, handID string, potAmount, rakePercentage, maxRake int64, winnerPlayerID string, winners []walletcore.RakeWinner) (*walletcore.RakeResult, error) {
	return s.engine.CollectRake(ctx, tableID, handID, potAmount, rakePercentage, maxRake, winnerPlayerID, winners, s.persist)
}
