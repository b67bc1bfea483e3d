// Package report derives the dashboard aggregates from loaded transactions.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/sabadell-dashboard/internal/domain"
)

// MonthTotal is the net amount of one calendar month.
type MonthTotal struct {
	Month time.Time       `json:"month"`
	Net   decimal.Decimal `json:"net"`
}

// MonthlyNet sums amounts per month, ascending by month.
func MonthlyNet(txs []domain.Transaction) []MonthTotal {
	sums := make(map[time.Time]decimal.Decimal)
	for _, tx := range txs {
		m := monthStart(tx)
		sums[m] = sums[m].Add(tx.Amount)
	}

	out := make([]MonthTotal, 0, len(sums))
	for m, net := range sums {
		out = append(out, MonthTotal{Month: m, Net: net})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// monthStart normalizes the month to UTC midnight so map keys compare equal
// regardless of the location the driver attached.
func monthStart(tx domain.Transaction) time.Time {
	m := tx.Month
	if m.IsZero() {
		m = tx.Date
	}
	return time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Categories returns the distinct categories present, sorted by name.
func Categories(txs []domain.Transaction) []domain.Category {
	seen := make(map[domain.Category]bool)
	var out []domain.Category
	for _, tx := range txs {
		if !seen[tx.Category] {
			seen[tx.Category] = true
			out = append(out, tx.Category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// YearRange returns the smallest and largest year in txs. ok is false when
// txs is empty.
func YearRange(txs []domain.Transaction) (from, to int, ok bool) {
	for i, tx := range txs {
		if i == 0 || tx.Year < from {
			from = tx.Year
		}
		if i == 0 || tx.Year > to {
			to = tx.Year
		}
	}
	return from, to, len(txs) > 0
}
