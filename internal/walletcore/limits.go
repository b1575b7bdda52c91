package walletcore

import "time"

const dailyLimitRetention = 7 * 24 * time.Hour

// LocalDate formats now as the YYYY-MM-DD key daily limits are tracked
// under (§3). The service runs with a single configured location; callers
// pass an already-located time.Time.
func LocalDate(now time.Time) string {
	return now.Format("2006-01-02")
}

func dailyLimitKey(playerID, localDate string) string {
	return playerID + "|" + localDate
}

func getOrCreateDailyLimit(state *ServiceState, playerID, localDate string, now time.Time) *DailyLimit {
	key := dailyLimitKey(playerID, localDate)
	dl, ok := state.DailyLimits[key]
	if !ok {
		dl = &DailyLimit{PlayerID: playerID, LocalDate: localDate, UpdatedAt: now}
		state.DailyLimits[key] = dl
	}
	return dl
}

// checkAndReserveLimit verifies amount fits within cap for the given
// running total, then (only on success) adds it in. §4.4: validation and
// application of daily limits happen atomically under the wallet lock.
func checkAndReserveLimit(current, amount, cap int64, kind string) (int64, error) {
	if cap <= 0 {
		return current + amount, nil
	}
	if current+amount > cap {
		return current, NewLimitError("daily %s limit exceeded: %d + %d > %d", kind, current, amount, cap)
	}
	return current + amount, nil
}

// gcDailyLimits drops daily-limit rows older than the retention window,
// keeping the snapshot from growing unbounded over the life of a
// long-running shard (§3/§5).
func gcDailyLimits(state *ServiceState, now time.Time) {
	cutoff := now.Add(-dailyLimitRetention)
	for key, dl := range state.DailyLimits {
		parsed, err := time.Parse("2006-01-02", dl.LocalDate)
		if err != nil {
			continue
		}
		if parsed.Before(cutoff) {
			delete(state.DailyLimits, key)
		}
	}
}
