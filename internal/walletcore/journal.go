package walletcore

// appendJournal appends entry to its player's journal, evicting the
// oldest entries once the configured per-wallet cap is exceeded (§3
// invariant 3: the journal is a bounded FIFO window, not a full ledger).
func appendJournal(state *ServiceState, cap int, entry *JournalEntry) {
	entries := append(state.Journals[entry.PlayerID], entry)
	if cap > 0 && len(entries) > cap {
		entries = entries[len(entries)-cap:]
	}
	state.Journals[entry.PlayerID] = entries
	state.TotalTransactions++
}

// TransactionFilter narrows getTransactions results (§4.4).
type TransactionFilter struct {
	Kind    string
	TableID string
	Since   *int64 // unix seconds
	Limit   int
}

// filterJournal returns playerID's journal newest-first, applying filter.
func filterJournal(state *ServiceState, playerID string, filter TransactionFilter) []*JournalEntry {
	entries := state.Journals[playerID]

	out := make([]*JournalEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.TableID != "" && e.TableID != filter.TableID {
			continue
		}
		if filter.Since != nil && e.Timestamp.Unix() < *filter.Since {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}
