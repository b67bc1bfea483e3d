package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/sabadell-dashboard/internal/api/middleware"
	"github.com/dvloznov/sabadell-dashboard/internal/domain"
	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
	"github.com/dvloznov/sabadell-dashboard/internal/pipeline"
	"github.com/dvloznov/sabadell-dashboard/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SessionHandler handles session endpoints.
type SessionHandler struct {
	runner pipeline.Runner
	log    zerolog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(runner pipeline.Runner, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{runner: runner, log: log}
}

type sessionResponse struct {
	*pipeline.Result
	TransactionCount int `json:"transaction_count"`
}

// GetSession handles GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.Current(r.Context())
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sessionResponse{Result: res, TransactionCount: len(res.Transactions)})
}

// ReloadSession handles POST /api/session/reload
func (h *SessionHandler) ReloadSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.Reload(r.Context())
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sessionResponse{Result: res, TransactionCount: len(res.Transactions)})
}

// TransactionsHandler handles transaction and aggregate endpoints.
type TransactionsHandler struct {
	runner pipeline.Runner
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(runner pipeline.Runner, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{runner: runner, log: log}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var startDate, endDate time.Time
	var err error

	if s := query.Get("start_date"); s != "" {
		startDate, err = time.Parse("2006-01-02", s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
	}
	if s := query.Get("end_date"); s != "" {
		endDate, err = time.Parse("2006-01-02", s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
	}

	res, err := h.runner.Current(r.Context())
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}

	transactions := make([]domain.Transaction, 0, len(res.Transactions))
	for _, tx := range res.Transactions {
		day := tx.Date.Format("2006-01-02")
		if !startDate.IsZero() && day < startDate.Format("2006-01-02") {
			continue
		}
		if !endDate.IsZero() && day > endDate.Format("2006-01-02") {
			continue
		}
		transactions = append(transactions, tx)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// MonthlyNet handles GET /api/monthly
func (h *TransactionsHandler) MonthlyNet(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.Current(r.Context())
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"months": report.MonthlyNet(res.Transactions),
	})
}

// ListCategories handles GET /api/categories
func (h *TransactionsHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.Current(r.Context())
	if err != nil {
		writeFailure(w, r, h.log, err)
		return
	}

	categories := report.Categories(res.Transactions)
	if categories == nil {
		categories = []domain.Category{}
	}
	resp := map[string]interface{}{"categories": categories}
	if from, to, ok := report.YearRange(res.Transactions); ok {
		resp["years"] = map[string]int{"from": from, "to": to}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Pivot handles GET /api/pivot?types=Income,Expense&from=2013&to=2024
func (h *TransactionsHandler) Pivot(w http.ResponseWriter, r *http.Request) {
	table, ok := h.pivot(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pivot":  table,
		"series": table.Melt(),
	})
}

// PivotXLSX handles GET /api/pivot.xlsx with the same query as Pivot.
func (h *TransactionsHandler) PivotXLSX(w http.ResponseWriter, r *http.Request) {
	table, ok := h.pivot(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="pivot-%d-%d.xlsx"`, table.Filter.FromYear, table.Filter.ToYear))
	if err := report.WriteXLSX(w, table); err != nil {
		// headers are gone by now
		h.log.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("Failed to write pivot workbook")
	}
}

func (h *TransactionsHandler) pivot(w http.ResponseWriter, r *http.Request) (report.PivotTable, bool) {
	res, err := h.runner.Current(r.Context())
	if err != nil {
		writeFailure(w, r, h.log, err)
		return report.PivotTable{}, false
	}

	filter, err := ParseFilter(r, res.Transactions)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return report.PivotTable{}, false
	}
	return report.Pivot(res.Transactions, filter), true
}

// ParseFilter reads types, from and to from the query string. Missing
// parameters fall back to report.DefaultFilter; an empty types value
// selects no category.
func ParseFilter(r *http.Request, txs []domain.Transaction) (report.Filter, error) {
	filter := report.DefaultFilter(txs)
	query := r.URL.Query()

	if query.Has("types") {
		filter.Categories = []domain.Category{}
		for _, raw := range strings.Split(query.Get("types"), ",") {
			name := strings.TrimSpace(raw)
			if name == "" {
				continue
			}
			c, ok := domain.ParseCategory(name)
			if !ok {
				return report.Filter{}, fmt.Errorf("unknown type %q", name)
			}
			filter.Categories = append(filter.Categories, c)
		}
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"from", &filter.FromYear}, {"to", &filter.ToYear}} {
		s := query.Get(p.name)
		if s == "" {
			continue
		}
		year, err := strconv.Atoi(s)
		if err != nil {
			return report.Filter{}, fmt.Errorf("invalid %s year %q", p.name, s)
		}
		*p.dst = year
	}

	if err := filter.Validate(); err != nil {
		return report.Filter{}, err
	}
	return filter, nil
}

// writeFailure maps a session failure to its HTTP status.
func writeFailure(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	status, message := http.StatusInternalServerError, "Failed to load transactions"
	switch {
	case apperrors.Is(err, apperrors.ErrNoRemoteFile):
		status, message = http.StatusNotFound, "No file found in the remote folder"
	case apperrors.Is(err, apperrors.ErrAuthentication):
		status, message = http.StatusUnauthorized, "Authorization with the remote store failed"
	case apperrors.Is(err, apperrors.ErrNetwork):
		status, message = http.StatusBadGateway, "Remote store unavailable"
	}

	log.Error().
		Err(err).
		Str("request_id", middleware.GetRequestID(r.Context())).
		Int("status", status).
		Msg("Session failed")
	middleware.WriteError(w, status, message)
}
