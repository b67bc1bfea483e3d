package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/sabadell-dashboard/internal/domain"
	"github.com/dvloznov/sabadell-dashboard/internal/ledger"
	"github.com/dvloznov/sabadell-dashboard/internal/remote"
	"github.com/dvloznov/sabadell-dashboard/internal/session"
)

// Memo step names.
const (
	stepConnect  = "connect"
	stepList     = "list"
	stepDownload = "download"
	stepQuery    = "query"
)

// PipelineStep represents a single step in the session pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Session session.Session
	Memo    *session.Memo

	Store        remote.Store
	File         remote.FileDescriptor
	LocalPath    string
	Bytes        int64
	Ledger       *ledger.Ledger
	Transactions []domain.Transaction
}

// Step 1: ConnectStep resolves credentials and builds the remote store.
type ConnectStep struct {
	connector Connector
	backend   string
}

// NewConnectStep creates the connect step. backend only keys the memo.
func NewConnectStep(connector Connector, backend string) *ConnectStep {
	return &ConnectStep{connector: connector, backend: backend}
}

func (s *ConnectStep) Name() string { return stepConnect }

func (s *ConnectStep) Execute(ctx context.Context, state *PipelineState) error {
	store, err := session.Do(state.Memo, state.Session.ID, stepConnect, s.backend, func() (remote.Store, error) {
		return s.connector.Connect(ctx)
	})
	if err != nil {
		return err
	}
	state.Store = store
	return nil
}

// Step 2: LocateStep lists the folder and picks the latest file.
type LocateStep struct {
	folder string
	log    zerolog.Logger
}

// NewLocateStep creates the locate step for folder.
func NewLocateStep(folder string, log zerolog.Logger) *LocateStep {
	return &LocateStep{folder: folder, log: log}
}

func (s *LocateStep) Name() string { return stepList }

func (s *LocateStep) Execute(ctx context.Context, state *PipelineState) error {
	files, err := session.Do(state.Memo, state.Session.ID, stepList, s.folder, func() ([]remote.FileDescriptor, error) {
		return remote.NewLocator(state.Store, s.log).List(ctx, s.folder)
	})
	if err != nil {
		return err
	}

	latest, err := remote.SelectLatest(files)
	if err != nil {
		return fmt.Errorf("LocateStep: folder %q: %w", s.folder, err)
	}
	state.File = latest
	return nil
}

// Step 3: FetchStep downloads the selected file to the local database path.
type FetchStep struct {
	fetcher *remote.Fetcher
	dest    string
}

// NewFetchStep creates the fetch step writing to dest.
func NewFetchStep(fetcher *remote.Fetcher, dest string) *FetchStep {
	return &FetchStep{fetcher: fetcher, dest: dest}
}

func (s *FetchStep) Name() string { return stepDownload }

func (s *FetchStep) Execute(ctx context.Context, state *PipelineState) error {
	input := state.File.ID + "\x00" + s.dest
	n, err := session.Do(state.Memo, state.Session.ID, stepDownload, input, func() (int64, error) {
		return s.fetcher.Fetch(ctx, state.Store, state.File.ID, s.dest)
	})
	if err != nil {
		return err
	}
	state.LocalPath = s.dest
	state.Bytes = n
	return nil
}

// Step 4: LoadStep opens the local database and runs the transactions query.
type LoadStep struct {
	open func(ctx context.Context, path string) (*ledger.Ledger, error)
}

// NewLoadStep creates the load step. open is usually a closure over ledger.Open.
func NewLoadStep(open func(ctx context.Context, path string) (*ledger.Ledger, error)) *LoadStep {
	return &LoadStep{open: open}
}

func (s *LoadStep) Name() string { return stepQuery }

func (s *LoadStep) Execute(ctx context.Context, state *PipelineState) error {
	input := state.LocalPath + "\x00" + ledger.TransactionsQuery
	txs, err := session.Do(state.Memo, state.Session.ID, stepQuery, input, func() ([]domain.Transaction, error) {
		l, err := s.open(ctx, state.LocalPath)
		if err != nil {
			return nil, err
		}
		state.Ledger = l
		return l.Transactions(ctx)
	})
	if err != nil {
		return err
	}
	state.Transactions = txs
	return nil
}
