package credentials

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// LocalServerAuthorizer runs the installed-app login: it serves the OAuth
// redirect on a loopback port and exchanges the returned code.
type LocalServerAuthorizer struct {
	port    int
	prompt  func(authURL string)
	timeout time.Duration
	log     zerolog.Logger
}

// NewLocalServerAuthorizer creates an authorizer listening on port (0 picks
// a free port). prompt receives the consent URL the user must open; nil logs it.
func NewLocalServerAuthorizer(port int, prompt func(authURL string), log zerolog.Logger) *LocalServerAuthorizer {
	a := &LocalServerAuthorizer{port: port, prompt: prompt, log: log}
	if a.prompt == nil {
		a.prompt = func(authURL string) {
			a.log.Warn().Str("url", authURL).Msg("Open this URL in a browser to authorize the dashboard")
		}
	}
	return a
}

// WithTimeout bounds how long Authorize waits for the browser. Zero means
// only the caller's context applies.
func (a *LocalServerAuthorizer) WithTimeout(d time.Duration) *LocalServerAuthorizer {
	a.timeout = d
	return a
}

type callbackResult struct {
	code string
	err  error
}

// Authorize implements Authorizer. It blocks until the browser hits the
// redirect, or ctx is done.
func (a *LocalServerAuthorizer) Authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", a.port))
	if err != nil {
		return nil, fmt.Errorf("Authorize: listening for callback: %w", err)
	}

	port := ln.Addr().(*net.TCPAddr).Port
	flow := *cfg
	flow.RedirectURL = fmt.Sprintf("http://localhost:%d/", port)

	state := uuid.NewString()
	results := make(chan callbackResult, 1)

	srv := &http.Server{
		Handler:           a.callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("Callback server stopped")
		}
	}()
	defer srv.Close()

	a.prompt(flow.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	var res callbackResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("Authorize: waiting for callback: %w", ctx.Err())
	case res = <-results:
	}
	if res.err != nil {
		return nil, fmt.Errorf("Authorize: %w", res.err)
	}

	tok, err := flow.Exchange(ctx, res.code)
	if err != nil {
		return nil, fmt.Errorf("Authorize: exchanging code: %w", err)
	}
	a.log.Info().Time("expiry", tok.Expiry).Msg("Interactive login completed")
	return tok, nil
}

func (a *LocalServerAuthorizer) callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		var res callbackResult
		switch {
		case r.FormValue("error") != "":
			res.err = fmt.Errorf("authorization denied: %s %s", r.FormValue("error"), r.FormValue("error_description"))
		case r.FormValue("state") != state:
			res.err = errors.New("callback state mismatch")
		case r.FormValue("code") == "":
			res.err = errors.New("callback without code")
		default:
			res.code = r.FormValue("code")
		}

		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Authentication complete. You may close this window.")
		}

		// only the first callback counts
		select {
		case results <- res:
		default:
		}
	})
}

var _ Authorizer = (*LocalServerAuthorizer)(nil)
