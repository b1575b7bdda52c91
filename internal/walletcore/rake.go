package walletcore

import "time"

// periodLabels returns the day/month/year keys rake is aggregated under
// (§4.4 collectRake / getRakeStats), all derived from the same instant so
// the three roll-ups never disagree about which bucket a hand lands in.
func periodLabels(now time.Time) (day, month, year string) {
	return now.Format("2006-01-02"), now.Format("2006-01"), now.Format("2006")
}

func addRakeForPeriod(state *ServiceState, label string, amount int64, now time.Time) {
	stats, ok := state.RakeStats[label]
	if !ok {
		stats = &RakeStats{PeriodLabel: label}
		state.RakeStats[label] = stats
	}
	stats.TotalRake += amount
	stats.HandCount++
	stats.LastUpdated = now
}

// recordRake folds one hand's rake into the day/month/year buckets.
func recordRake(state *ServiceState, amount int64, now time.Time) {
	day, month, year := periodLabels(now)
	addRakeForPeriod(state, day, amount, now)
	addRakeForPeriod(state, month, amount, now)
	addRakeForPeriod(state, year, amount, now)
}

// PeriodKind is the granularity requested from getRakeStats (§4.4, §6).
type PeriodKind string

const (
	PeriodDay   PeriodKind = "day"
	PeriodMonth PeriodKind = "month"
	PeriodYear  PeriodKind = "year"
)

// rakeStatsFor resolves a getRakeStats request: an explicit period label,
// or the current day/month/year bucket when label is empty.
func rakeStatsFor(state *ServiceState, kind PeriodKind, label string, now time.Time) (*RakeStats, error) {
	if label == "" {
		day, month, year := periodLabels(now)
		switch kind {
		case PeriodDay:
			label = day
		case PeriodMonth:
			label = month
		case PeriodYear:
			label = year
		default:
			return nil, NewValidationError("unknown rake period kind %q", kind)
		}
	}

	stats, ok := state.RakeStats[label]
	if !ok {
		return &RakeStats{PeriodLabel: label}, nil
	}
	return stats, nil
}

// AverageRake is the mean rake collected per hand over a period.
func AverageRake(stats *RakeStats) float64 {
	if stats.HandCount == 0 {
		return 0
	}
	return float64(stats.TotalRake) / float64(stats.HandCount)
}

func validatePeriodKind(kind string) (PeriodKind, error) {
	switch PeriodKind(kind) {
	case PeriodDay, PeriodMonth, PeriodYear:
		return PeriodKind(kind), nil
	default:
		return "", NewValidationError("period must be one of day, month, year, got %q", kind)
	}
}
