package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies a transaction by the sign of its amount.
type Category string

const (
	// CategoryIncome is any transaction with a strictly positive amount.
	CategoryIncome Category = "Income"
	// CategoryExpense is any transaction with a zero or negative amount.
	CategoryExpense Category = "Expense"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryIncome, CategoryExpense}

// ClassifyAmount returns Income for amount > 0 and Expense otherwise.
func ClassifyAmount(amount decimal.Decimal) Category {
	if amount.IsPositive() {
		return CategoryIncome
	}
	return CategoryExpense
}

// ParseCategory matches name against Categories, ignoring case.
func ParseCategory(name string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), name) {
			return c, true
		}
	}
	return "", false
}

// Transaction is one row of the bank statement table after the loader
// query derived its month, year and category.
type Transaction struct {
	Date         time.Time           `json:"date"`          // fecha_operativa
	Month        time.Time           `json:"month"`         // first day of Date's month
	Year         int                 `json:"year"`          // Date's year
	Description  string              `json:"description"`   // concepto
	Category     Category            `json:"category"`      // Income or Expense
	BalanceAfter decimal.NullDecimal `json:"balance_after"` // saldo, may be NULL
	Amount       decimal.Decimal     `json:"amount"`        // importe, positive = money in
}
