package walletcore

import "time"

// getOrCreateWallet returns the existing wallet for playerID, or creates
// one with defaultInitial and, when defaultInitial is non-zero, a
// synthetic initial deposit journal entry (§4.2); a wallet created with
// a zero default gets no journal entry. Both branches assume the caller
// already holds that player's lock.
func getOrCreateWallet(state *ServiceState, playerID string, defaultInitial int64, currency string, journalCap int, now time.Time, nextID func() string) (*Wallet, bool) {
	if w, ok := state.Wallets[playerID]; ok {
		return w, false
	}

	w := &Wallet{
		PlayerID:    playerID,
		Balance:     defaultInitial,
		Currency:    currency,
		LastUpdated: now,
	}
	state.Wallets[playerID] = w

	if defaultInitial != 0 {
		entry := &JournalEntry{
			ID:          nextID(),
			PlayerID:    playerID,
			Kind:        KindDeposit,
			Amount:      defaultInitial,
			PostBalance: defaultInitial,
			Description: "initial balance",
			Timestamp:   now,
		}
		appendJournal(state, journalCap, entry)
	}

	return w, true
}

// createWallet explicitly initializes playerID's wallet; fails if one
// already exists (§4.4 initialize).
func createWallet(state *ServiceState, playerID string, initialBalance int64, currency string, journalCap int, now time.Time, nextID func() string) (*Wallet, error) {
	if _, ok := state.Wallets[playerID]; ok {
		return nil, NewConflictError("wallet for player %q already exists", playerID)
	}

	w := &Wallet{
		PlayerID:    playerID,
		Balance:     initialBalance,
		Currency:    currency,
		LastUpdated: now,
	}
	state.Wallets[playerID] = w

	entry := &JournalEntry{
		ID:          nextID(),
		PlayerID:    playerID,
		Kind:        KindDeposit,
		Amount:      initialBalance,
		PostBalance: initialBalance,
		Description: "initial balance",
		Timestamp:   now,
	}
	appendJournal(state, journalCap, entry)

	return w, nil
}

// viewWallet builds the read model for playerID (§4.2): balance, frozen
// total, available. Returns NotFoundError if the wallet has never been
// created.
func viewWallet(state *ServiceState, playerID string) (*WalletView, error) {
	w, ok := state.Wallets[playerID]
	if !ok {
		return nil, NewNotFoundError("wallet for player %q not found", playerID)
	}

	frozen := sumFrozen(state, playerID)
	return &WalletView{
		Wallet:    w,
		Frozen:    frozen,
		Available: w.Balance - frozen,
	}, nil
}
