package walletcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/feltstack/pokerwallet/internal/common/config"
	"github.com/feltstack/pokerwallet/internal/common/logger"
)

func newTestEngine() *Engine {
	cfg := config.WalletConfig{
		DefaultInitialBalance: 0,
		DailyDepositLimit:     1_000_000,
		DailyWithdrawalLimit:  1_000_000,
		DailyBuyInLimit:       1_000_000,
		MinTransferAmount:     1,
		MaxTransferAmount:     1_000_000,
		LockTimeout:           time.Second,
		JournalCap:            50,
	}
	return NewEngine(cfg, logger.New("test"))
}

func noopPersist(ctx context.Context, state *ServiceState, events []DomainEvent) error {
	return nil
}

var errPersistFailed = errors.New("simulated persist failure")

func failingPersist(ctx context.Context, state *ServiceState, events []DomainEvent) error {
	return errPersistFailed
}

func TestInitializeThenDuplicateFails(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	wallet, err := e.Initialize(ctx, "alice", 500, noopPersist)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if wallet.Balance != 500 {
		t.Fatalf("expected balance 500, got %d", wallet.Balance)
	}

	if _, err := e.Initialize(ctx, "alice", 100, noopPersist); err == nil {
		t.Fatal("expected duplicate Initialize to fail")
	} else if _, ok := err.(*ConflictError); !ok {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}
}

func TestBuyInCashOutRoundTrip(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "bob", 1000, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	buyIn, err := e.BuyIn(ctx, "bob", "table-1", 300, noopPersist)
	if err != nil {
		t.Fatalf("BuyIn: %v", err)
	}
	if buyIn.Wallet.Balance != 1000 {
		t.Fatalf("buy-in must not touch balance, got %d", buyIn.Wallet.Balance)
	}
	if buyIn.Frozen.Amount != 300 {
		t.Fatalf("expected frozen amount 300, got %d", buyIn.Frozen.Amount)
	}

	view, err := e.GetWallet("bob")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if view.Available != 700 {
		t.Fatalf("expected available 700, got %d", view.Available)
	}

	// A second buy-in at the same table while one is open must fail.
	if _, err := e.BuyIn(ctx, "bob", "table-1", 50, noopPersist); err == nil {
		t.Fatal("expected second buy-in at the same table to fail")
	}

	cashOut, err := e.CashOut(ctx, "bob", "table-1", 450, noopPersist)
	if err != nil {
		t.Fatalf("CashOut: %v", err)
	}
	if cashOut.NetChange != 150 {
		t.Fatalf("expected net change 150, got %d", cashOut.NetChange)
	}
	if cashOut.Wallet.Balance != 1150 {
		t.Fatalf("expected balance 1150, got %d", cashOut.Wallet.Balance)
	}

	view, err = e.GetWallet("bob")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if view.Frozen != 0 {
		t.Fatalf("expected no frozen funds left, got %d", view.Frozen)
	}

	// Cash-out with no matching freeze must fail.
	if _, err := e.CashOut(ctx, "bob", "table-1", 100, noopPersist); err == nil {
		t.Fatal("expected cash-out with no open freeze to fail")
	}
}

func TestBuyInInsufficientAvailableBalance(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "carol", 100, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if _, err := e.BuyIn(ctx, "carol", "table-1", 200, noopPersist); err == nil {
		t.Fatal("expected buy-in beyond available balance to fail")
	} else if _, ok := err.(*LimitError); !ok {
		t.Fatalf("expected LimitError, got %T: %v", err, err)
	}

	view, err := e.GetWallet("carol")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if view.Wallet.Balance != 100 || view.Frozen != 0 {
		t.Fatalf("failed buy-in must leave wallet untouched, got balance=%d frozen=%d", view.Wallet.Balance, view.Frozen)
	}
}

func TestTransferMovesBalanceAtomically(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "dave", 500, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	result, err := e.Transfer(ctx, "dave", "erin", 200, "gift", noopPersist)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if result.From.Balance != 300 {
		t.Fatalf("expected sender balance 300, got %d", result.From.Balance)
	}
	if result.To.Balance != 200 {
		t.Fatalf("expected recipient balance 200, got %d", result.To.Balance)
	}

	fromTx, err := e.GetTransactions("dave", TransactionFilter{})
	if err != nil {
		t.Fatalf("GetTransactions(dave): %v", err)
	}
	toTx, err := e.GetTransactions("erin", TransactionFilter{})
	if err != nil {
		t.Fatalf("GetTransactions(erin): %v", err)
	}
	if len(fromTx) == 0 || fromTx[0].Amount != -200 {
		t.Fatalf("expected dave's latest entry to be -200, got %+v", fromTx)
	}
	if len(toTx) == 0 || toTx[0].Amount != 200 {
		t.Fatalf("expected erin's latest entry to be +200, got %+v", toTx)
	}
}

func TestTransferRejectsSelfAndOutOfRangeAmounts(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "frank", 500, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if _, err := e.Transfer(ctx, "frank", "frank", 10, "", noopPersist); err == nil {
		t.Fatal("expected self-transfer to fail")
	}
	if _, err := e.Transfer(ctx, "frank", "gina", 0, "", noopPersist); err == nil {
		t.Fatal("expected zero transfer to fail")
	}
	if _, err := e.Transfer(ctx, "frank", "gina", e.cfg.MaxTransferAmount+1, "", noopPersist); err == nil {
		t.Fatal("expected over-max transfer to fail")
	}
}

// TestConcurrentTransfersNoLostUpdates fires many concurrent transfers
// back and forth between two wallets and checks the final balances are
// exactly what a sequential run would produce — the lock manager's
// sorted-pair acquisition is what prevents a lost update here.
func TestConcurrentTransfersNoLostUpdates(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "hank", 10_000, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := e.Initialize(ctx, "iris", 10_000, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	const rounds = 100
	var wg sync.WaitGroup
	wg.Add(rounds * 2)
	for i := 0; i < rounds; i++ {
		go func() {
			defer wg.Done()
			if _, err := e.Transfer(ctx, "hank", "iris", 10, "", noopPersist); err != nil {
				t.Errorf("hank->iris transfer: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := e.Transfer(ctx, "iris", "hank", 10, "", noopPersist); err != nil {
				t.Errorf("iris->hank transfer: %v", err)
			}
		}()
	}
	wg.Wait()

	hank, err := e.GetWallet("hank")
	if err != nil {
		t.Fatalf("GetWallet(hank): %v", err)
	}
	iris, err := e.GetWallet("iris")
	if err != nil {
		t.Fatalf("GetWallet(iris): %v", err)
	}
	if hank.Wallet.Balance != 10_000 {
		t.Errorf("expected hank's balance to net out to 10000, got %d", hank.Wallet.Balance)
	}
	if iris.Wallet.Balance != 10_000 {
		t.Errorf("expected iris's balance to net out to 10000, got %d", iris.Wallet.Balance)
	}
}

func TestProcessWinningsAbortsWithNoSideEffectsOnInsufficientLoserBalance(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "loser1", 50, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := e.Initialize(ctx, "winner1", 0, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	winners := []PlayerAmount{{PlayerID: "winner1", Amount: 100}}
	losers := []PlayerAmount{{PlayerID: "loser1", Amount: 200}}

	if _, err := e.ProcessWinnings(ctx, "table-9", "hand-1", winners, losers, noopPersist); err == nil {
		t.Fatal("expected ProcessWinnings to fail when a loser lacks sufficient balance")
	}

	winnerView, err := e.GetWallet("winner1")
	if err != nil {
		t.Fatalf("GetWallet(winner1): %v", err)
	}
	if winnerView.Wallet.Balance != 0 {
		t.Fatalf("winner must not be credited when the batch aborts, got balance %d", winnerView.Wallet.Balance)
	}

	loserView, err := e.GetWallet("loser1")
	if err != nil {
		t.Fatalf("GetWallet(loser1): %v", err)
	}
	if loserView.Wallet.Balance != 50 {
		t.Fatalf("loser's balance must be untouched, got %d", loserView.Wallet.Balance)
	}
}

func TestProcessWinningsSettlesBothSides(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "loser2", 500, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	winners := []PlayerAmount{{PlayerID: "winner2", Amount: 300}}
	losers := []PlayerAmount{{PlayerID: "loser2", Amount: 300}}

	result, err := e.ProcessWinnings(ctx, "table-9", "hand-2", winners, losers, noopPersist)
	if err != nil {
		t.Fatalf("ProcessWinnings: %v", err)
	}
	if result.Wallets["winner2"].Balance != 300 {
		t.Fatalf("expected winner2 balance 300, got %d", result.Wallets["winner2"].Balance)
	}
	if result.Wallets["loser2"].Balance != 200 {
		t.Fatalf("expected loser2 balance 200, got %d", result.Wallets["loser2"].Balance)
	}
}

func TestRunLockedRollsBackOnApplyError(t *testing.T) {
	// A fresh player: getOrCreateWallet inside BuyIn creates the wallet
	// as part of the same apply() that then fails validation further
	// down (insufficient daily limit). The rollback path must erase the
	// newly-created wallet along with everything else, not just leave
	// it behind because persist was never reached.
	e := newTestEngine()
	e.cfg.DefaultInitialBalance = 1000
	e.cfg.DailyBuyInLimit = 100
	ctx := context.Background()

	if _, err := e.BuyIn(ctx, "fresh-player", "table-1", 500, noopPersist); err == nil {
		t.Fatal("expected buy-in over the daily cap to fail")
	}

	if _, err := e.GetWallet("fresh-player"); err == nil {
		t.Fatal("expected the wallet created mid-apply to be rolled back, but it exists")
	}
}

func TestRunLockedRollsBackOnPersistError(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "jill", 500, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if _, err := e.Deposit(ctx, "jill", 100, "bonus", failingPersist); err == nil {
		t.Fatal("expected Deposit to surface the persist failure")
	}

	view, err := e.GetWallet("jill")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if view.Wallet.Balance != 500 {
		t.Fatalf("expected balance to be rolled back to 500, got %d", view.Wallet.Balance)
	}
}

func TestRollbackBuyIn(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "ken", 1000, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := e.BuyIn(ctx, "ken", "table-1", 400, noopPersist); err != nil {
		t.Fatalf("BuyIn: %v", err)
	}

	// Mismatched amount must be rejected.
	if _, err := e.RollbackBuyIn(ctx, "ken", "table-1", 999, "hand never started", noopPersist); err == nil {
		t.Fatal("expected mismatched rollback amount to fail")
	}

	wallet, err := e.RollbackBuyIn(ctx, "ken", "table-1", 400, "hand never started", noopPersist)
	if err != nil {
		t.Fatalf("RollbackBuyIn: %v", err)
	}
	if wallet.Balance != 1000 {
		t.Fatalf("balance must be unaffected by rollback, got %d", wallet.Balance)
	}

	view, err := e.GetWallet("ken")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if view.Frozen != 0 {
		t.Fatalf("expected freeze to be released, got %d still frozen", view.Frozen)
	}
}

func TestRollbackHandCreditsEveryPlayer(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "liam", 100, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := e.Initialize(ctx, "maya", 50, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	refunds := []PlayerRefund{
		{PlayerID: "liam", RefundAmount: 40},
		{PlayerID: "maya", RefundAmount: 60},
	}
	wallets, err := e.RollbackHand(ctx, "table-2", "hand-3", refunds, "hand voided", noopPersist)
	if err != nil {
		t.Fatalf("RollbackHand: %v", err)
	}
	if wallets["liam"].Balance != 140 {
		t.Fatalf("expected liam's balance 140, got %d", wallets["liam"].Balance)
	}
	if wallets["maya"].Balance != 110 {
		t.Fatalf("expected maya's balance 110, got %d", wallets["maya"].Balance)
	}
}

func TestRollbackHandIsAllOrNothing(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "noah", 100, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// "olive" was never initialized, so the batch must fail and leave
	// noah's refund un-applied.
	refunds := []PlayerRefund{
		{PlayerID: "noah", RefundAmount: 40},
		{PlayerID: "olive", RefundAmount: 40},
	}
	if _, err := e.RollbackHand(ctx, "table-2", "hand-4", refunds, "", noopPersist); err == nil {
		t.Fatal("expected RollbackHand to fail when one player has no wallet")
	}

	view, err := e.GetWallet("noah")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if view.Wallet.Balance != 100 {
		t.Fatalf("expected noah's refund to be rolled back, got balance %d", view.Wallet.Balance)
	}
}

func TestCollectRakeSingleWinnerBoundary(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	result, err := e.CollectRake(ctx, "table-1", "hand-5", 100, 5, 3, "winner3", nil, noopPersist)
	if err != nil {
		t.Fatalf("CollectRake: %v", err)
	}
	// floor(100*5/100) = 5, capped at maxRake=3.
	if result.RakeAmount != 3 {
		t.Fatalf("expected rake 3, got %d", result.RakeAmount)
	}
	if result.NetPot != 97 {
		t.Fatalf("expected net pot 97, got %d", result.NetPot)
	}
	if result.Payouts["winner3"] != 97 {
		t.Fatalf("expected winner3 payout 97, got %d", result.Payouts["winner3"])
	}
	if result.HouseWallet.Balance != 3 {
		t.Fatalf("expected house balance 3, got %d", result.HouseWallet.Balance)
	}

	stats, err := e.GetRakeStats("day", "")
	if err != nil {
		t.Fatalf("GetRakeStats: %v", err)
	}
	if stats.TotalRake != 3 || stats.HandCount != 1 {
		t.Fatalf("expected day bucket {rake:3 hands:1}, got %+v", stats)
	}
}

func TestCollectRakeMultiWinnerShares(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	winners := []RakeWinner{
		{PlayerID: "alpha", Share: 0.6},
		{PlayerID: "beta", Share: 0.4},
	}
	result, err := e.CollectRake(ctx, "table-2", "hand-6", 1000, 10, 0, "", winners, noopPersist)
	if err != nil {
		t.Fatalf("CollectRake: %v", err)
	}
	if result.RakeAmount != 100 {
		t.Fatalf("expected rake 100, got %d", result.RakeAmount)
	}
	if result.NetPot != 900 {
		t.Fatalf("expected net pot 900, got %d", result.NetPot)
	}
	if result.Payouts["alpha"] != 540 {
		t.Fatalf("expected alpha payout 540, got %d", result.Payouts["alpha"])
	}
	if result.Payouts["beta"] != 360 {
		t.Fatalf("expected beta payout 360, got %d", result.Payouts["beta"])
	}
}

func TestCollectRakeRejectsBothOrNeitherWinnerForm(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.CollectRake(ctx, "table-1", "hand-7", 100, 5, 0, "", nil, noopPersist); err == nil {
		t.Fatal("expected CollectRake with neither winner form to fail")
	}
	winners := []RakeWinner{{PlayerID: "x", Share: 0.5}}
	if _, err := e.CollectRake(ctx, "table-1", "hand-7", 100, 5, 0, "y", winners, noopPersist); err == nil {
		t.Fatal("expected CollectRake with both winner forms set to fail")
	}
}

func TestJournalIsCappedFIFO(t *testing.T) {
	e := newTestEngine()
	e.cfg.JournalCap = 3
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "penny", 0, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := e.Deposit(ctx, "penny", 10, "", noopPersist); err != nil {
			t.Fatalf("Deposit #%d: %v", i, err)
		}
	}

	entries, err := e.GetTransactions("penny", TransactionFilter{})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected journal capped at 3 entries, got %d", len(entries))
	}
	// Newest-first: the most recent deposit left postBalance 50 (0 initial + 5*10).
	if entries[0].PostBalance != 50 {
		t.Fatalf("expected newest entry postBalance 50, got %d", entries[0].PostBalance)
	}
}

func TestFrozenEntryAtMostOnePerPlayerTable(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "quinn", 1000, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := e.BuyIn(ctx, "quinn", "table-a", 100, noopPersist); err != nil {
		t.Fatalf("BuyIn table-a: %v", err)
	}
	if _, err := e.BuyIn(ctx, "quinn", "table-a", 100, noopPersist); err == nil {
		t.Fatal("expected a second buy-in at table-a to fail while one is open")
	}
	// A second buy-in at a different table is fine; it's the same
	// (player, table) pair that must be unique.
	if _, err := e.BuyIn(ctx, "quinn", "table-b", 100, noopPersist); err != nil {
		t.Fatalf("BuyIn table-b: %v", err)
	}
	view, err := e.GetWallet("quinn")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if view.Frozen != 200 {
		t.Fatalf("expected 200 frozen across two tables, got %d", view.Frozen)
	}
}

func TestStatsAndHealthReflectActivity(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	if _, err := e.Initialize(ctx, "rex", 500, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := e.BuyIn(ctx, "rex", "table-1", 100, noopPersist); err != nil {
		t.Fatalf("BuyIn: %v", err)
	}

	stats := e.GetStats()
	if stats.WalletCount != 1 {
		t.Fatalf("expected 1 wallet, got %d", stats.WalletCount)
	}
	if stats.ActiveWallets != 1 {
		t.Fatalf("expected 1 active wallet within the last 24h, got %d", stats.ActiveWallets)
	}
	if stats.TotalFrozen != 100 {
		t.Fatalf("expected total frozen 100, got %d", stats.TotalFrozen)
	}

	health := e.Health()
	if health.WalletCount != 1 {
		t.Fatalf("expected health wallet count 1, got %d", health.WalletCount)
	}
	if health.TotalFrozen != 100 {
		t.Fatalf("expected health total frozen 100, got %d", health.TotalFrozen)
	}
	if health.TotalTransactions == 0 {
		t.Fatal("expected at least one journal entry counted")
	}
}

func TestLoadStateReplacesWholesale(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	if _, err := e.Initialize(ctx, "sam", 10, noopPersist); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	fresh := newServiceState()
	e.LoadState(fresh)

	if _, err := e.GetWallet("sam"); err == nil {
		t.Fatal("expected sam's wallet to be gone after LoadState replaced the engine state")
	}
}
