// Package credentials resolves the OAuth token the dashboard uses to read
// the remote folder: cached on disk, refreshed, or acquired interactively.
package credentials

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
	"github.com/dvloznov/sabadell-dashboard/internal/metrics"
)

// Authorizer runs an interactive authorization flow and returns a new token.
type Authorizer interface {
	Authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)
}

// Resolver produces a valid token from the store, a refresh, or a new login.
type Resolver struct {
	config     *oauth2.Config
	store      TokenStore
	authorizer Authorizer
	log        zerolog.Logger
}

// NewResolver creates a Resolver. The authorizer is only invoked when no
// stored token is usable.
func NewResolver(cfg *oauth2.Config, store TokenStore, authorizer Authorizer, log zerolog.Logger) *Resolver {
	return &Resolver{
		config:     cfg,
		store:      store,
		authorizer: authorizer,
		log:        log.With().Str("component", "credentials").Logger(),
	}
}

// Resolve returns the stored token if it is still valid, refreshes it if it
// expired and carries a refresh token, and otherwise runs the interactive
// login. Every refresh or login overwrites the token file.
func (r *Resolver) Resolve(ctx context.Context) (*oauth2.Token, error) {
	tok, err := r.store.Load()
	if err != nil {
		r.log.Warn().Err(err).Msg("Ignoring unreadable token file")
		tok = nil
	}

	if tok.Valid() {
		r.log.Debug().Time("expiry", tok.Expiry).Msg("Using cached token")
		metrics.TokenResolutions.WithLabelValues("cached").Inc()
		return tok, nil
	}

	if tok != nil && tok.RefreshToken != "" {
		refreshed, err := r.refresh(ctx, tok)
		if err == nil {
			if err := r.store.Save(refreshed); err != nil {
				return nil, fmt.Errorf("Resolve: saving refreshed token: %w", err)
			}
			r.log.Info().Time("expiry", refreshed.Expiry).Msg("Refreshed expired token")
			metrics.TokenResolutions.WithLabelValues("refreshed").Inc()
			return refreshed, nil
		}
		r.log.Warn().Err(err).Msg("Token refresh failed, falling back to interactive login")
	}

	r.log.Info().Msg("No usable token, starting interactive login")
	tok, err = r.authorizer.Authorize(ctx, r.config)
	if err != nil {
		metrics.TokenResolutions.WithLabelValues("failed").Inc()
		return nil, apperrors.Mark(fmt.Errorf("Resolve: interactive login: %w", err), loginFailure(err))
	}
	if !tok.Valid() {
		metrics.TokenResolutions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("Resolve: %w: login returned an unusable token", apperrors.ErrAuthentication)
	}

	if err := r.store.Save(tok); err != nil {
		return nil, fmt.Errorf("Resolve: saving new token: %w", err)
	}
	metrics.TokenResolutions.WithLabelValues("login").Inc()
	return tok, nil
}

// TokenSource returns a source that starts from tok, refreshes it when it
// expires mid-session, and writes every refreshed token back to the store.
func (r *Resolver) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return NewPersistingTokenSource(r.config.TokenSource(ctx, tok), tok, r.store, r.log)
}

// loginFailure classifies an interactive login error. Requests that never got
// an answer from the token endpoint are network failures.
func loginFailure(err error) error {
	var uerr *url.Error
	if apperrors.As(err, &uerr) {
		return apperrors.ErrNetwork
	}
	return apperrors.ErrAuthentication
}

func (r *Resolver) refresh(ctx context.Context, expired *oauth2.Token) (*oauth2.Token, error) {
	// Drop the stale access token so the source goes straight to the
	// refresh grant.
	seed := &oauth2.Token{RefreshToken: expired.RefreshToken}

	tok, err := r.config.TokenSource(ctx, seed).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = expired.RefreshToken
	}
	return tok, nil
}
