package report

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/sabadell-dashboard/internal/domain"
)

// NetColumn names the derived Income + Expense column.
const NetColumn = "Net"

// Filter selects the transactions that feed the pivot.
type Filter struct {
	Categories []domain.Category `json:"categories"`
	FromYear   int               `json:"from_year"`
	ToYear     int               `json:"to_year"`
}

// DefaultFilter selects every category present over the data's full year range.
func DefaultFilter(txs []domain.Transaction) Filter {
	from, to, _ := YearRange(txs)
	return Filter{Categories: Categories(txs), FromYear: from, ToYear: to}
}

// Validate checks the year range.
func (f Filter) Validate() error {
	if f.FromYear > f.ToYear {
		return fmt.Errorf("year range %d..%d is empty", f.FromYear, f.ToYear)
	}
	return nil
}

// Match reports whether tx passes the filter. Both year bounds are inclusive.
func (f Filter) Match(tx domain.Transaction) bool {
	if tx.Year < f.FromYear || tx.Year > f.ToYear {
		return false
	}
	for _, c := range f.Categories {
		if c == tx.Category {
			return true
		}
	}
	return false
}

// PivotRow holds one year of the pivot.
type PivotRow struct {
	Year   int                                 `json:"year"`
	Totals map[domain.Category]decimal.Decimal `json:"totals"`
	Net    *decimal.Decimal                    `json:"net,omitempty"`
}

// PivotTable is the per-year, per-category sum of amounts.
type PivotTable struct {
	Filter  Filter            `json:"filter"`
	Columns []domain.Category `json:"columns"`
	HasNet  bool              `json:"has_net"`
	Rows    []PivotRow        `json:"rows"`
}

// SeriesPoint is one (year, column) value of the pivot in long form.
type SeriesPoint struct {
	Year   int             `json:"year"`
	Column string          `json:"column"`
	Value  decimal.Decimal `json:"value"`
}

// Pivot groups the filtered transactions by year and category. Columns are
// the categories present after filtering, sorted by name; missing cells are
// zero. Net is added only when both Income and Expense columns exist. Rows
// are ordered by year, newest first.
func Pivot(txs []domain.Transaction, f Filter) PivotTable {
	sums := make(map[int]map[domain.Category]decimal.Decimal)
	present := make(map[domain.Category]bool)
	for _, tx := range txs {
		if !f.Match(tx) {
			continue
		}
		row, ok := sums[tx.Year]
		if !ok {
			row = make(map[domain.Category]decimal.Decimal)
			sums[tx.Year] = row
		}
		row[tx.Category] = row[tx.Category].Add(tx.Amount)
		present[tx.Category] = true
	}

	table := PivotTable{Filter: f, Columns: make([]domain.Category, 0, len(present)), Rows: make([]PivotRow, 0, len(sums))}
	for c := range present {
		table.Columns = append(table.Columns, c)
	}
	sort.Slice(table.Columns, func(i, j int) bool { return table.Columns[i] < table.Columns[j] })
	table.HasNet = present[domain.CategoryIncome] && present[domain.CategoryExpense]

	for year, totals := range sums {
		row := PivotRow{Year: year, Totals: make(map[domain.Category]decimal.Decimal, len(table.Columns))}
		for _, c := range table.Columns {
			row.Totals[c] = totals[c]
		}
		if table.HasNet {
			net := row.Totals[domain.CategoryExpense].Add(row.Totals[domain.CategoryIncome])
			row.Net = &net
		}
		table.Rows = append(table.Rows, row)
	}
	sort.Slice(table.Rows, func(i, j int) bool { return table.Rows[i].Year > table.Rows[j].Year })

	return table
}

// Header returns the column titles: Year, each category, then Net if present.
func (p PivotTable) Header() []string {
	h := []string{"Year"}
	for _, c := range p.Columns {
		h = append(h, string(c))
	}
	if p.HasNet {
		h = append(h, NetColumn)
	}
	return h
}

// Melt flattens the table into (year, column, value) points, the shape a
// line chart per column consumes.
func (p PivotTable) Melt() []SeriesPoint {
	out := make([]SeriesPoint, 0, len(p.Rows)*(len(p.Columns)+1))
	for _, row := range p.Rows {
		for _, c := range p.Columns {
			out = append(out, SeriesPoint{Year: row.Year, Column: string(c), Value: row.Totals[c]})
		}
		if row.Net != nil {
			out = append(out, SeriesPoint{Year: row.Year, Column: NetColumn, Value: *row.Net})
		}
	}
	return out
}
