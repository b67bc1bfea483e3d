package credentials

import (
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	apperrors "github.com/dvloznov/sabadell-dashboard/internal/errors"
)

// PersistingTokenSource saves each new token its source hands out.
type PersistingTokenSource struct {
	src   oauth2.TokenSource
	store TokenStore
	log   zerolog.Logger

	mu        sync.Mutex
	lastSaved string
}

// NewPersistingTokenSource wraps src. initial is the token already on disk;
// it is not written again.
func NewPersistingTokenSource(src oauth2.TokenSource, initial *oauth2.Token, store TokenStore, log zerolog.Logger) *PersistingTokenSource {
	p := &PersistingTokenSource{src: src, store: store, log: log}
	if initial != nil {
		p.lastSaved = initial.AccessToken
	}
	return p
}

// Token implements oauth2.TokenSource.
func (p *PersistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, apperrors.Mark(err, apperrors.ErrAuthentication)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken != p.lastSaved {
		if err := p.store.Save(tok); err != nil {
			// the token is still good for this session
			p.log.Warn().Err(err).Msg("Failed to persist refreshed token")
		} else {
			p.log.Debug().Time("expiry", tok.Expiry).Msg("Persisted refreshed token")
		}
		p.lastSaved = tok.AccessToken
	}
	return tok, nil
}

var _ oauth2.TokenSource = (*PersistingTokenSource)(nil)
