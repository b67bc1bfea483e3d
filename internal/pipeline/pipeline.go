// Package pipeline runs the per-session chain that turns a remote database
// file into loaded transactions: connect, locate, fetch, load.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/sabadell-dashboard/internal/config"
	"github.com/dvloznov/sabadell-dashboard/internal/credentials"
	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
	"github.com/dvloznov/sabadell-dashboard/internal/ledger"
	"github.com/dvloznov/sabadell-dashboard/internal/remote"
)

// Connector produces the remote store for a session.
type Connector interface {
	Connect(ctx context.Context) (remote.Store, error)
}

// DriveConnector resolves the OAuth token and opens a Drive store with it.
type DriveConnector struct {
	resolver *credentials.Resolver
	opts     []option.ClientOption
}

// NewDriveConnector creates a connector. Extra options are passed to the
// Drive client after the token source.
func NewDriveConnector(resolver *credentials.Resolver, opts ...option.ClientOption) *DriveConnector {
	return &DriveConnector{resolver: resolver, opts: opts}
}

// Connect implements Connector.
func (c *DriveConnector) Connect(ctx context.Context) (remote.Store, error) {
	tok, err := c.resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("DriveConnector.Connect: %w", err)
	}

	// the store outlives the request that created it
	ts := c.resolver.TokenSource(context.WithoutCancel(ctx), tok)
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, c.opts...)
	return remote.NewDriveStore(ctx, opts...)
}

// StaticConnector always returns the same store.
type StaticConnector struct {
	Store remote.Store
}

// Connect implements Connector.
func (c StaticConnector) Connect(ctx context.Context) (remote.Store, error) {
	return c.Store, nil
}

// NewConnector builds the connector for cfg.Remote.Backend. The drive
// backend regenerates the client descriptor from the secrets and logs in
// through a local callback server; prompt receives the consent URL (nil logs
// it). The returned close func releases backend clients.
func NewConnector(ctx context.Context, cfg *config.Config, prompt func(authURL string), log zerolog.Logger) (Connector, func() error, error) {
	switch cfg.Remote.Backend {
	case config.BackendGCS:
		store, err := remote.NewGCSStore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("NewConnector: %w", err)
		}
		return StaticConnector{Store: store}, store.Close, nil

	case config.BackendDrive:
		secrets := credentials.ClientSecrets{ClientID: cfg.Secrets.ClientID, ClientSecret: cfg.Secrets.ClientSecret}
		if err := credentials.WriteClientDescriptor(cfg.Paths.Credentials, secrets); err != nil {
			return nil, nil, fmt.Errorf("NewConnector: %w", err)
		}
		oauthCfg, err := credentials.LoadClientConfig(cfg.Paths.Credentials, cfg.Auth.Scopes...)
		if err != nil {
			return nil, nil, fmt.Errorf("NewConnector: %w", err)
		}

		authorizer := credentials.NewLocalServerAuthorizer(cfg.Auth.CallbackPort, prompt, log).
			WithTimeout(cfg.Auth.LoginTimeout)
		resolver := credentials.NewResolver(oauthCfg, credentials.NewFileTokenStore(cfg.Paths.Token), authorizer, log)
		return NewDriveConnector(resolver), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("NewConnector: %w: unknown backend %q", apperrors.ErrInvalidConfig, cfg.Remote.Backend)
	}
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
	log   zerolog.Logger
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(log zerolog.Logger, steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps, log: log}
}

// Execute runs all steps in the pipeline sequentially and stops at the
// first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		p.log.Debug().Int("step", i+1).Str("name", step.Name()).Msg("Running pipeline step")
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}

// NewSessionPipeline creates the standard 4-step pipeline for cfg.
func NewSessionPipeline(cfg *config.Config, connector Connector, log zerolog.Logger) *Pipeline {
	fetcher := remote.NewFetcher(cfg.Remote.ChunkSize, log)
	return NewPipeline(log,
		NewConnectStep(connector, cfg.Remote.Backend),
		NewLocateStep(cfg.Secrets.FolderID, log),
		NewFetchStep(fetcher, cfg.Paths.Database),
		NewLoadStep(func(ctx context.Context, path string) (*ledger.Ledger, error) {
			return ledger.Open(ctx, path, log)
		}),
	)
}

var (
	_ Connector = (*DriveConnector)(nil)
	_ Connector = StaticConnector{}
)
