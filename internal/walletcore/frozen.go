package walletcore

import "time"

// findFrozen returns the single frozen entry for (playerId, tableId), if any.
func findFrozen(state *ServiceState, playerID, tableID string) (*FrozenEntry, int) {
	for i, f := range state.Frozen[playerID] {
		if f.TableID == tableID {
			return f, i
		}
	}
	return nil, -1
}

// sumFrozen totals all escrow currently held for playerID, across every table.
func sumFrozen(state *ServiceState, playerID string) int64 {
	var total int64
	for _, f := range state.Frozen[playerID] {
		total += f.Amount
	}
	return total
}

// freeze escrows amount for (playerId, tableId). Fails if that seat
// already has an open freeze (at most one per pair, §3).
func freeze(state *ServiceState, playerID, tableID string, amount int64, reason string, now time.Time, nextID func() string) (*FrozenEntry, error) {
	if existing, _ := findFrozen(state, playerID, tableID); existing != nil {
		return nil, NewConflictError("player %q already has an open freeze at table %q", playerID, tableID)
	}

	f := &FrozenEntry{
		ID:       nextID(),
		PlayerID: playerID,
		TableID:  tableID,
		Amount:   amount,
		FrozenAt: now,
		Reason:   reason,
	}
	state.Frozen[playerID] = append(state.Frozen[playerID], f)
	return f, nil
}

// release removes and returns the frozen entry for (playerId, tableId).
// Fails if there is no matching freeze (cash-out with no buy-in, §4.4).
func release(state *ServiceState, playerID, tableID string) (*FrozenEntry, error) {
	f, idx := findFrozen(state, playerID, tableID)
	if f == nil {
		return nil, NewNotFoundError("no open freeze for player %q at table %q", playerID, tableID)
	}

	entries := state.Frozen[playerID]
	entries = append(entries[:idx], entries[idx+1:]...)
	if len(entries) == 0 {
		delete(state.Frozen, playerID)
	} else {
		state.Frozen[playerID] = entries
	}
	return f, nil
}
