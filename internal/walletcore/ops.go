package walletcore

import (
	"context"
	"fmt"
)

// PlayerAmount is one leg of a multi-player settlement: a player id and
// a positive magnitude, direction given by the operation that consumes it.
type PlayerAmount struct {
	PlayerID string
	Amount   int64
}

// BuyInResult is the outcome of BuyIn (§4.4).
type BuyInResult struct {
	Wallet    *Wallet
	Frozen    *FrozenEntry
	Available int64
}

// BuyIn escrows amount out of playerID's available balance for a seat
// at tableId. Balance itself is untouched — the money is still theirs,
// just reserved — so the journal entry is recorded for audit with no
// balance movement (§3, §4.4).
func (e *Engine) BuyIn(ctx context.Context, playerID, tableID string, amount int64, persist PersistFunc) (*BuyInResult, error) {
	if playerID == "" || tableID == "" {
		return nil, NewValidationError("playerId and tableId are required")
	}
	if amount <= 0 {
		return nil, NewValidationError("amount must be positive")
	}

	var result *BuyInResult
	now := e.now()
	dateKey := dailyLimitKey(playerID, LocalDate(now))

	err := e.runLocked(ctx, []string{playerID}, []string{dateKey}, false, persist, func(state *ServiceState) ([]DomainEvent, error) {
		wallet, _ := getOrCreateWallet(state, playerID, e.cfg.DefaultInitialBalance, DefaultCurrency, e.cfg.JournalCap, now, e.nextID)

		available := wallet.Balance - sumFrozen(state, playerID)
		if amount > available {
			return nil, NewLimitError("insufficient available balance: have %d, need %d", available, amount)
		}

		dl := getOrCreateDailyLimit(state, playerID, LocalDate(now), now)
		used, err := checkAndReserveLimit(dl.BuyIns, amount, e.cfg.DailyBuyInLimit, "buy-in")
		if err != nil {
			return nil, err
		}
		dl.BuyIns = used
		dl.UpdatedAt = now

		frozen, err := freeze(state, playerID, tableID, amount, FrozenReasonBuyIn, now, e.nextID)
		if err != nil {
			return nil, err
		}

		appendJournal(state, e.cfg.JournalCap, &JournalEntry{
			ID: e.nextID(), PlayerID: playerID, Kind: KindBuyIn, Amount: -amount,
			PostBalance: wallet.Balance, TableID: tableID, Timestamp: now,
			Description: fmt.Sprintf("buy-in at table %s", tableID),
		})

		wallet.LastUpdated = now
		state.LastUpdated = now
		result = &BuyInResult{Wallet: wallet, Frozen: frozen, Available: wallet.Balance - sumFrozen(state, playerID)}

		return []DomainEvent{{
			Type: "wallet.buyin", AggregateID: playerID, Topic: "wallet-events",
			Payload: map[string]interface{}{"playerId": playerID, "tableId": tableID, "amount": amount},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CashOutResult is the outcome of CashOut (§4.4).
type CashOutResult struct {
	Wallet    *Wallet
	NetChange int64
}

// CashOut releases the frozen seat at tableId and settles the net
// change between the final chip count and what was escrowed into
// playerID's balance (§3, §4.4).
func (e *Engine) CashOut(ctx context.Context, playerID, tableID string, chipAmount int64, persist PersistFunc) (*CashOutResult, error) {
	if playerID == "" || tableID == "" {
		return nil, NewValidationError("playerId and tableId are required")
	}
	if chipAmount < 0 {
		return nil, NewValidationError("chipAmount must be non-negative")
	}

	var result *CashOutResult
	now := e.now()

	err := e.runLocked(ctx, []string{playerID}, nil, false, persist, func(state *ServiceState) ([]DomainEvent, error) {
		wallet, ok := state.Wallets[playerID]
		if !ok {
			return nil, NewNotFoundError("wallet for player %q not found", playerID)
		}

		frozen, err := release(state, playerID, tableID)
		if err != nil {
			if _, ok := err.(*NotFoundError); ok {
				return nil, NewConflictError("no open freeze for player %q at table %q", playerID, tableID)
			}
			return nil, err
		}

		netChange := chipAmount - frozen.Amount
		wallet.Balance += netChange
		wallet.LastUpdated = now

		appendJournal(state, e.cfg.JournalCap, &JournalEntry{
			ID: e.nextID(), PlayerID: playerID, Kind: KindCashOut, Amount: netChange,
			PostBalance: wallet.Balance, TableID: tableID, Timestamp: now,
			Description: fmt.Sprintf("cash-out at table %s", tableID),
			Metadata:    map[string]interface{}{"originalBuyIn": frozen.Amount, "netChange": netChange},
		})

		state.LastUpdated = now
		result = &CashOutResult{Wallet: wallet, NetChange: netChange}

		return []DomainEvent{{
			Type: "wallet.cashout", AggregateID: playerID, Topic: "wallet-events",
			Payload: map[string]interface{}{"playerId": playerID, "tableId": tableID, "chipAmount": chipAmount, "netChange": netChange},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProcessWinningsResult maps every touched player id to its post-settlement wallet.
type ProcessWinningsResult struct {
	Wallets map[string]*Wallet
}

// ProcessWinnings settles a finished hand: credits each winner, debits
// each loser (§4.4). A batch operation, gated upstream by the operator
// key rather than per-player ownership.
func (e *Engine) ProcessWinnings(ctx context.Context, tableID, handID string, winners, losers []PlayerAmount, persist PersistFunc) (*ProcessWinningsResult, error) {
	if tableID == "" || handID == "" {
		return nil, NewValidationError("tableId and handId are required")
	}
	if len(winners) == 0 && len(losers) == 0 {
		return nil, NewValidationError("at least one winner or loser is required")
	}

	players := make([]string, 0, len(winners)+len(losers))
	for _, w := range winners {
		if w.Amount <= 0 {
			return nil, NewValidationError("winner amount must be positive")
		}
		players = append(players, w.PlayerID)
	}
	for _, l := range losers {
		if l.Amount <= 0 {
			return nil, NewValidationError("loser amount must be positive")
		}
		players = append(players, l.PlayerID)
	}

	var result *ProcessWinningsResult
	now := e.now()

	err := e.runLocked(ctx, players, nil, false, persist, func(state *ServiceState) ([]DomainEvent, error) {
		// Pre-check every loser's balance before mutating anything: a
		// batch settlement is all-or-nothing (§4.4, §7).
		for _, l := range losers {
			wallet, ok := state.Wallets[l.PlayerID]
			if !ok {
				return nil, NewNotFoundError("wallet for player %q not found", l.PlayerID)
			}
			if wallet.Balance < l.Amount {
				return nil, NewLimitError("player %q balance %d is less than loss amount %d", l.PlayerID, wallet.Balance, l.Amount)
			}
		}

		wallets := make(map[string]*Wallet, len(players))
		events := make([]DomainEvent, 0, len(players))

		for _, w := range winners {
			wallet, _ := getOrCreateWallet(state, w.PlayerID, e.cfg.DefaultInitialBalance, DefaultCurrency, e.cfg.JournalCap, now, e.nextID)
			wallet.Balance += w.Amount
			wallet.LastUpdated = now
			appendJournal(state, e.cfg.JournalCap, &JournalEntry{
				ID: e.nextID(), PlayerID: w.PlayerID, Kind: KindWin, Amount: w.Amount,
				PostBalance: wallet.Balance, TableID: tableID, HandID: handID, Timestamp: now,
			})
			wallets[w.PlayerID] = wallet
			events = append(events, DomainEvent{
				Type: "wallet.win", AggregateID: w.PlayerID, Topic: "wallet-events",
				Payload: map[string]interface{}{"playerId": w.PlayerID, "handId": handID, "amount": w.Amount},
			})
		}

		for _, l := range losers {
			wallet, ok := state.Wallets[l.PlayerID]
			if !ok {
				return nil, NewNotFoundError("wallet for player %q not found", l.PlayerID)
			}
			wallet.Balance -= l.Amount
			wallet.LastUpdated = now
			appendJournal(state, e.cfg.JournalCap, &JournalEntry{
				ID: e.nextID(), PlayerID: l.PlayerID, Kind: KindLoss, Amount: -l.Amount,
				PostBalance: wallet.Balance, TableID: tableID, HandID: handID, Timestamp: now,
			})
			wallets[l.PlayerID] = wallet
			events = append(events, DomainEvent{
				Type: "wallet.loss", AggregateID: l.PlayerID, Topic: "wallet-events",
				Payload: map[string]interface{}{"playerId": l.PlayerID, "handId": handID, "amount": l.Amount},
			})
		}

		state.LastUpdated = now
		result = &ProcessWinningsResult{Wallets: wallets}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DepositResult is the outcome of Deposit (§4.4).
type DepositResult struct{ Wallet *Wallet }

// Deposit adds external funds to playerID's wallet, subject to the
// daily deposit cap (§4.4, §6).
func (e *Engine) Deposit(ctx context.Context, playerID string, amount int64, description string, persist PersistFunc) (*DepositResult, error) {
	if playerID == "" {
		return nil, NewValidationError("playerId is required")
	}
	if amount <= 0 {
		return nil, NewValidationError("amount must be positive")
	}

	var result *DepositResult
	now := e.now()
	dateKey := dailyLimitKey(playerID, LocalDate(now))

	err := e.runLocked(ctx, []string{playerID}, []string{dateKey}, false, persist, func(state *ServiceState) ([]DomainEvent, error) {
		wallet, _ := getOrCreateWallet(state, playerID, e.cfg.DefaultInitialBalance, DefaultCurrency, e.cfg.JournalCap, now, e.nextID)

		dl := getOrCreateDailyLimit(state, playerID, LocalDate(now), now)
		used, err := checkAndReserveLimit(dl.Deposits, amount, e.cfg.DailyDepositLimit, "deposit")
		if err != nil {
			return nil, err
		}
		dl.Deposits = used
		dl.UpdatedAt = now

		wallet.Balance += amount
		wallet.LastUpdated = now
		appendJournal(state, e.cfg.JournalCap, &JournalEntry{
			ID: e.nextID(), PlayerID: playerID, Kind: KindDeposit, Amount: amount,
			PostBalance: wallet.Balance, Description: description, Timestamp: now,
		})

		state.LastUpdated = now
		result = &DepositResult{Wallet: wallet}

		return []DomainEvent{{
			Type: "wallet.deposit", AggregateID: playerID, Topic: "wallet-events",
			Payload: map[string]interface{}{"playerId": playerID, "amount": amount},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WithdrawResult is the outcome of Withdraw (§4.4).
type WithdrawResult struct{ Wallet *Wallet }

// Withdraw removes funds from playerID's available balance, subject to
// the daily withdrawal cap (§4.4, §6).
func (e *Engine) Withdraw(ctx context.Context, playerID string, amount int64, description string, persist PersistFunc) (*WithdrawResult, error) {
	if playerID == "" {
		return nil, NewValidationError("playerId is required")
	}
	if amount <= 0 {
		return nil, NewValidationError("amount must be positive")
	}

	var result *WithdrawResult
	now := e.now()
	dateKey := dailyLimitKey(playerID, LocalDate(now))

	err := e.runLocked(ctx, []string{playerID}, []string{dateKey}, false, persist, func(state *ServiceState) ([]DomainEvent, error) {
		wallet, ok := state.Wallets[playerID]
		if !ok {
			return nil, NewNotFoundError("wallet for player %q not found", playerID)
		}

		available := wallet.Balance - sumFrozen(state, playerID)
		if amount > available {
			return nil, NewLimitError("insufficient available balance: have %d, need %d", available, amount)
		}

		dl := getOrCreateDailyLimit(state, playerID, LocalDate(now), now)
		used, err := checkAndReserveLimit(dl.Withdrawals, amount, e.cfg.DailyWithdrawalLimit, "withdrawal")
		if err != nil {
			return nil, err
		}
		dl.Withdrawals = used
		dl.UpdatedAt = now

		wallet.Balance -= amount
		wallet.LastUpdated = now
		appendJournal(state, e.cfg.JournalCap, &JournalEntry{
			ID: e.nextID(), PlayerID: playerID, Kind: KindWithdrawal, Amount: -amount,
			PostBalance: wallet.Balance, Description: description, Timestamp: now,
		})

		state.LastUpdated = now
		result = &WithdrawResult{Wallet: wallet}

		return []DomainEvent{{
			Type: "wallet.withdrawal", AggregateID: playerID, Topic: "wallet-events",
			Payload: map[string]interface{}{"playerId": playerID, "amount": amount},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TransferResult is the outcome of Transfer (§4.4).
type TransferResult struct {
	TransferID string
	From       *Wallet
	To         *Wallet
}

// Transfer moves amount from fromID's available balance to toID's
// balance, both locked in sorted order regardless of direction (§5).
func (e *Engine) Transfer(ctx context.Context, fromID, toID string, amount int64, description string, persist PersistFunc) (*TransferResult, error) {
	if fromID == "" || toID == "" {
		return nil, NewValidationError("fromPlayerId and toPlayerId are required")
	}
	if fromID == toID {
		return nil, NewValidationError("cannot transfer to the same wallet")
	}
	if amount < e.cfg.MinTransferAmount || amount > e.cfg.MaxTransferAmount {
		return nil, NewValidationError("amount must be between %d and %d", e.cfg.MinTransferAmount, e.cfg.MaxTransferAmount)
	}

	var result *TransferResult
	now := e.now()
	transferID := e.nextID()

	err := e.runLocked(ctx, []string{fromID, toID}, nil, false, persist, func(state *ServiceState) ([]DomainEvent, error) {
		fromWallet, ok := state.Wallets[fromID]
		if !ok {
			return nil, NewNotFoundError("wallet for player %q not found", fromID)
		}
		available := fromWallet.Balance - sumFrozen(state, fromID)
		if amount > available {
			return nil, NewLimitError("insufficient available balance: have %d, need %d", available, amount)
		}

		toWallet, _ := getOrCreateWallet(state, toID, e.cfg.DefaultInitialBalance, DefaultCurrency, e.cfg.JournalCap, now, e.nextID)

		fromWallet.Balance -= amount
		fromWallet.LastUpdated = now
		toWallet.Balance += amount
		toWallet.LastUpdated = now

		appendJournal(state, e.cfg.JournalCap, &JournalEntry{
			ID: e.nextID(), PlayerID: fromID, Kind: KindTransfer, Amount: -amount,
			PostBalance: fromWallet.Balance, RelatedPlayerID: toID, Description: description, Timestamp: now,
			Metadata: map[string]interface{}{"transferId": transferID, "direction": DirectionOutgoing},
		})
		appendJournal(state, e.cfg.JournalCap, &JournalEntry{
			ID: e.nextID(), PlayerID: toID, Kind: KindTransfer, Amount: amount,
			PostBalance: toWallet.Balance, RelatedPlayerID: fromID, Description: description, Timestamp: now,
			Metadata: map[string]interface{}{"transferId": transferID, "direction": DirectionIncoming},
		})

		state.LastUpdated = now
		result = &TransferResult{TransferID: transferID, From: fromWallet, To: toWallet}

		return []DomainEvent{{
			Type: "wallet.transfer", AggregateID: transferID, Topic: "wallet-events",
			Payload: map[string]interface{}{"transferId": transferID, "fromPlayerId": fromID, "toPlayerId": toID, "amount": amount},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RollbackBuyIn reverses an open buy-in freeze, e.g. because the hand
// never started (§4.4). Balance was never touched by the original
// buy-in, so this only releases escrow and records the reversal. amount,
// if non-zero, must match the frozen entry's amount — a caller-supplied
// consistency check against client/server state drifting apart.
func (e *Engine) RollbackBuyIn(ctx context.Context, playerID, tableID string, amount int64, reason string, persist PersistFunc) (*Wallet, error) {
	if playerID == "" || tableID == "" {
		return nil, NewValidationError("playerId and tableId are required")
	}

	var wallet *Wallet
	now := e.now()

	err := e.runLocked(ctx, []string{playerID}, nil, false, persist, func(state *ServiceState) ([]DomainEvent, error) {
		w, ok := state.Wallets[playerID]
		if !ok {
			return nil, NewNotFoundError("wallet for player %q not found", playerID)
		}

		if existing, _ := findFrozen(state, playerID, tableID); existing != nil && amount != 0 && amount != existing.Amount {
			return nil, NewValidationError("amount %d does not match the frozen buy-in of %d", amount, existing.Amount)
		}

		frozen, err := release(state, playerID, tableID)
		if err != nil {
			return nil, err
		}

		appendJournal(state, e.cfg.JournalCap, &JournalEntry{
			ID: e.nextID(), PlayerID: playerID, Kind: KindRefund, Amount: frozen.Amount,
			PostBalance: w.Balance, TableID: tableID, Description: reason, Timestamp: now,
			Metadata: map[string]interface{}{"rolledBackAmount": frozen.Amount},
		})

		w.LastUpdated = now
		state.LastUpdated = now
		wallet = w

		return []DomainEvent{{
			Type: "wallet.rollback_buyin", AggregateID: playerID, Topic: "wallet-events",
			Payload: map[string]interface{}{"playerId": playerID, "tableId": tableID, "amount": frozen.Amount, "reason": reason},
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// PlayerRefund names one player's share of a voided hand's refund: the
// amount credited back to them (§4.4).
type PlayerRefund struct {
	PlayerID     string
	RefundAmount int64
}

// RollbackHand voids a previously processed hand: every named player is
// credited their refundAmount and gets a refund journal entry tagged
// with the handId (§4.4). A batch operation, gated upstream by the
// operator key, all-or-nothing across every named player.
func (e *Engine) RollbackHand(ctx context.Context, tableID, handID string, refunds []PlayerRefund, reason string, persist PersistFunc) (map[string]*Wallet, error) {
	if tableID == "" || handID == "" {
		return nil, NewValidationError("tableId and handId are required")
	}
	if len(refunds) == 0 {
		return nil, NewValidationError("at least one player refund is required")
	}

	players := make([]string, 0, len(refunds))
	for _, r := range refunds {
		if r.PlayerID == "" {
			return nil, NewValidationError("playerId is required")
		}
		if r.RefundAmount <= 0 {
			return nil, NewValidationError("refundAmount must be positive")
		}
		players = append(players, r.PlayerID)
	}

	var wallets map[string]*Wallet
	now := e.now()

	err := e.runLocked(ctx, players, nil, false, persist, func(state *ServiceState) ([]DomainEvent, error) {
		wallets = make(map[string]*Wallet, len(refunds))
		events := make([]DomainEvent, 0, len(refunds))

		for _, r := range refunds {
			wallet, ok := state.Wallets[r.PlayerID]
			if !ok {
				return nil, NewNotFoundError("wallet for player %q not found", r.PlayerID)
			}

			wallet.Balance += r.RefundAmount
			wallet.LastUpdated = now
			appendJournal(state, e.cfg.JournalCap, &JournalEntry{
				ID: e.nextID(), PlayerID: r.PlayerID, Kind: KindRefund, Amount: r.RefundAmount,
				PostBalance: wallet.Balance, TableID: tableID, HandID: handID, Description: reason, Timestamp: now,
			})
			wallets[r.PlayerID] = wallet
			events = append(events, DomainEvent{
				Type: "wallet.rollback_hand", AggregateID: r.PlayerID, Topic: "wallet-events",
				Payload: map[string]interface{}{"playerId": r.PlayerID, "handId": handID, "refundAmount": r.RefundAmount, "reason": reason},
			})
		}

		state.LastUpdated = now
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

// RakeWinner is one payout share in a multi-winner CollectRake call: the
// split of netPot credited to playerID is floor(netPot * Share) (§4.4).
type RakeWinner struct {
	PlayerID string
	Share    float64
}

// RakeResult is the outcome of CollectRake (§4.4).
type RakeResult struct {
	RakeAmount  int64
	NetPot      int64
	HouseWallet *Wallet
	Payouts     map[string]int64
}

// CollectRake computes the house's cut of a finished hand's pot, credits
// the house wallet, pays the remaining netPot out to either a single
// winner in full or a set of winners by fractional share, and folds the
// rake into the day/month/year rake buckets (§4.4). Exactly one of
// winnerPlayerID or winners must be set. Any rounding remainder left
// over from per-winner truncation is not credited anywhere — the house
// float silently retains it (§9).
func (e *Engine) CollectRake(ctx context.Context, tableID, handID string, potAmount, rakePercentage, maxRake int64, winnerPlayerID string, winners []RakeWinner, persist PersistFunc) (*RakeResult, error) {
	if tableID == "" || handID == "" {
		return nil, NewValidationError("tableId and handId are required")
	}
	if potAmount <= 0 {
		return nil, NewValidationError("potAmount must be positive")
	}
	if rakePercentage < 0 || rakePercentage > 100 {
		return nil, NewValidationError("rakePercentage must be between 0 and 100")
	}
	if (winnerPlayerID == "") == (len(winners) == 0) {
		return nil, NewValidationError("exactly one of winnerPlayerId or winners must be provided")
	}
	for _, w := range winners {
		if w.PlayerID == "" {
			return nil, NewValidationError("winner playerId is required")
		}
		if w.Share <= 0 {
			return nil, NewValidationError("winner share must be positive")
		}
	}

	rake := potAmount * rakePercentage / 100
	if maxRake > 0 && rake > maxRake {
		rake = maxRake
	}
	netPot := potAmount - rake

	players := make([]string, 0, len(winners)+1)
	players = append(players, HouseWallet)
	if winnerPlayerID != "" {
		players = append(players, winnerPlayerID)
	}
	for _, w := range winners {
		players = append(players, w.PlayerID)
	}

	var result *RakeResult
	now := e.now()

	err := e.runLocked(ctx, players, nil, true, persist, func(state *ServiceState) ([]DomainEvent, error) {
		house, _ := getOrCreateWallet(state, HouseWallet, 0, DefaultCurrency, e.cfg.JournalCap, now, e.nextID)
		events := make([]DomainEvent, 0, len(players))

		if rake > 0 {
			house.Balance += rake
			house.LastUpdated = now
			appendJournal(state, e.cfg.JournalCap, &JournalEntry{
				ID: e.nextID(), PlayerID: HouseWallet, Kind: KindRake, Amount: rake,
				PostBalance: house.Balance, TableID: tableID, HandID: handID, Timestamp: now,
			})
		}

		payouts := make(map[string]int64, len(winners)+1)
		creditWinner := func(playerID string, amount int64) {
			if amount <= 0 {
				return
			}
			wallet, _ := getOrCreateWallet(state, playerID, e.cfg.DefaultInitialBalance, DefaultCurrency, e.cfg.JournalCap, now, e.nextID)
			wallet.Balance += amount
			wallet.LastUpdated = now
			appendJournal(state, e.cfg.JournalCap, &JournalEntry{
				ID: e.nextID(), PlayerID: playerID, Kind: KindWin, Amount: amount,
				PostBalance: wallet.Balance, TableID: tableID, HandID: handID, Timestamp: now,
			})
			payouts[playerID] += amount
			events = append(events, DomainEvent{
				Type: "wallet.win", AggregateID: playerID, Topic: "wallet-events",
				Payload: map[string]interface{}{"playerId": playerID, "handId": handID, "amount": amount},
			})
		}

		if winnerPlayerID != "" {
			creditWinner(winnerPlayerID, netPot)
		} else {
			for _, w := range winners {
				creditWinner(w.PlayerID, int64(float64(netPot)*w.Share))
			}
		}

		recordRake(state, rake, now)
		state.LastUpdated = now
		result = &RakeResult{RakeAmount: rake, NetPot: netPot, HouseWallet: house, Payouts: payouts}

		events = append(events, DomainEvent{
			Type: "wallet.rake_collected", AggregateID: tableID, Topic: "wallet-events",
			Payload: map[string]interface{}{"tableId": tableID, "handId": handID, "amount": rake, "netPot": netPot},
		})
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
