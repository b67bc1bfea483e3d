// Package ledger reads bank transactions out of the local DuckDB file.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"

	"github.com/dvloznov/sabadell-dashboard/internal/domain"
	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
	"github.com/dvloznov/sabadell-dashboard/internal/logger"
)

// TransactionsQuery is the single aggregation query run against the
// database. Numeric columns are cast to text so they scan into exact
// decimals. Rows without a date cannot be placed in a month and are skipped;
// a missing amount counts as zero, which classifies it as an expense.
const TransactionsQuery = `
	SELECT
		fecha_operativa AS date,
		date_trunc('month', fecha_operativa) AS month,
		extract('year' FROM fecha_operativa) AS year,
		coalesce(concepto, '') AS description,
		CASE WHEN importe > 0 THEN 'Income' ELSE 'Expense' END AS category,
		CAST(saldo AS VARCHAR) AS balance_after,
		coalesce(CAST(importe AS VARCHAR), '0') AS amount
	FROM raw.sabadell_transactions
	WHERE fecha_operativa IS NOT NULL
`

// Ledger is a read-only handle on one database file.
type Ledger struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Open opens path read-only. The file must exist.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Ledger, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, apperrors.Mark(fmt.Errorf("ledger.Open: %w", err), apperrors.ErrQuery)
	}

	db, err := sql.Open("duckdb", path+"?access_mode=read_only")
	if err != nil {
		return nil, apperrors.Mark(apperrors.Wrapf(err, "ledger.Open: opening %s", path), apperrors.ErrQuery)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperrors.Mark(apperrors.Wrapf(err, "ledger.Open: connecting to %s", path), apperrors.ErrQuery)
	}

	// a ledger lives as long as its session; keep the session's logger
	log = logger.FromContextOr(ctx, log)
	log.Debug().Str("path", path).Msg("Opened database read-only")
	return &Ledger{db: db, path: path, log: log}, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Transactions runs TransactionsQuery.
func (l *Ledger) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	txs, err := TransactionsWithDB(ctx, l.db)
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("path", l.path).Int("rows", len(txs)).Msg("Loaded transactions")
	return txs, nil
}

// TransactionsWithDB runs TransactionsQuery using the provided database handle.
func TransactionsWithDB(ctx context.Context, db *sql.DB) ([]domain.Transaction, error) {
	rows, err := db.QueryContext(ctx, TransactionsQuery)
	if err != nil {
		return nil, apperrors.Mark(apperrors.Wrapf(err, "TransactionsWithDB: running query"), apperrors.ErrQuery)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var (
			tx       domain.Transaction
			year     int64
			category string
		)
		if err := rows.Scan(&tx.Date, &tx.Month, &year, &tx.Description, &category, &tx.BalanceAfter, &tx.Amount); err != nil {
			return nil, apperrors.Mark(apperrors.Wrapf(err, "TransactionsWithDB: scanning row"), apperrors.ErrQuery)
		}
		tx.Year = int(year)
		c, ok := domain.ParseCategory(category)
		if !ok {
			c = domain.ClassifyAmount(tx.Amount)
		}
		tx.Category = c
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Mark(apperrors.Wrapf(err, "TransactionsWithDB: iterating rows"), apperrors.ErrQuery)
	}

	return txs, nil
}
