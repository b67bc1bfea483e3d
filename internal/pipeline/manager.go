package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/sabadell-dashboard/internal/domain"
	"github.com/dvloznov/sabadell-dashboard/internal/ledger"
	"github.com/dvloznov/sabadell-dashboard/internal/logger"
	"github.com/dvloznov/sabadell-dashboard/internal/metrics"
	"github.com/dvloznov/sabadell-dashboard/internal/remote"
	"github.com/dvloznov/sabadell-dashboard/internal/session"
)

// Result is the output of a successful session run.
type Result struct {
	Session      session.Session       `json:"session"`
	File         remote.FileDescriptor `json:"file"`
	LocalPath    string                `json:"local_path"`
	Bytes        int64                 `json:"bytes"`
	LoadedAt     time.Time             `json:"loaded_at"`
	Transactions []domain.Transaction  `json:"-"`
}

// Runner is what the HTTP handlers need from the session manager.
type Runner interface {
	Session() session.Session
	Current(ctx context.Context) (*Result, error)
	Reload(ctx context.Context) (*Result, error)
}

// Manager owns the current session and its pipeline result. Runs are
// serialized, so a session's pipeline never executes twice concurrently.
type Manager struct {
	mu       sync.Mutex
	pipeline *Pipeline
	memo     *session.Memo
	sess     session.Session
	result   *Result
	ledger   *ledger.Ledger
	log      zerolog.Logger
}

// NewManager starts the first session. Nothing runs until Current is called.
func NewManager(p *Pipeline, memo *session.Memo, log zerolog.Logger) *Manager {
	return &Manager{pipeline: p, memo: memo, sess: session.New(), log: log}
}

// Session returns the current session.
func (m *Manager) Session() session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Current returns the result of the current session, running the pipeline
// if it has not completed yet. A failed run leaves no result; the next call
// runs again, reusing the steps that were memoized.
func (m *Manager) Current(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.result != nil {
		return m.result, nil
	}
	return m.run(ctx)
}

// Reload replaces the current session with a new one, dropping every memoized
// step of the old session, and runs the pipeline again.
func (m *Manager) Reload(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.sess
	removed := m.memo.InvalidateSession(old.ID)
	m.closeLedger()
	m.result = nil
	m.sess = session.New()

	m.log.Info().
		Str("old_session_id", old.ID).
		Str("session_id", m.sess.ID).
		Int("invalidated", removed).
		Msg("Session replaced")

	return m.run(ctx)
}

// Close releases the database handle of the current session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLedger()
}

func (m *Manager) run(ctx context.Context) (*Result, error) {
	log := logger.WithSession(m.log, m.sess.ID)
	start := time.Now()

	state := &PipelineState{Session: m.sess, Memo: m.memo}
	if err := m.pipeline.Execute(logger.WithContext(ctx, log), state); err != nil {
		if state.Ledger != nil {
			_ = state.Ledger.Close()
		}
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Session pipeline failed")
		return nil, fmt.Errorf("Manager.run: %w", err)
	}

	if state.Ledger != nil {
		m.closeLedger()
		m.ledger = state.Ledger
	}
	m.result = &Result{
		Session:      m.sess,
		File:         state.File,
		LocalPath:    state.LocalPath,
		Bytes:        state.Bytes,
		LoadedAt:     time.Now().UTC(),
		Transactions: state.Transactions,
	}
	metrics.PipelineRuns.WithLabelValues("ok").Inc()
	log.Info().
		Str("file", state.File.Name).
		Int("transactions", len(state.Transactions)).
		Dur("elapsed", time.Since(start)).
		Msg("Session pipeline completed")
	return m.result, nil
}

func (m *Manager) closeLedger() error {
	if m.ledger == nil {
		return nil
	}
	err := m.ledger.Close()
	m.ledger = nil
	return err
}

var _ Runner = (*Manager)(nil)
