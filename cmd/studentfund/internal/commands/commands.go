// Package commands implements the studentfund CLI subcommands.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/studentfund/studentfund/internal/client"
	"github.com/studentfund/studentfund/internal/guard"
	"github.com/studentfund/studentfund/internal/provider"
	"github.com/studentfund/studentfund/internal/session"
)

const defaultTimeout = 30 * time.Second

// Globals carries the flags shared by every command.
type Globals struct {
	Endpoint    string
	APIKey      string
	SessionFile string
	Debug       bool
	Timeout     time.Duration
	Version     string

	// Provider overrides the HTTP client; tests set it.
	Provider provider.Provider
	// Out receives command output; nil means stdout.
	Out io.Writer
}

func (g *Globals) out() io.Writer {
	if g.Out != nil {
		return g.Out
	}
	return os.Stdout
}

// timeout bounds each provider request; zero means defaultTimeout.
func (g *Globals) timeout() time.Duration {
	if g.Timeout > 0 {
		return g.Timeout
	}
	return defaultTimeout
}

func (g *Globals) logger() *slog.Logger {
	level := slog.LevelWarn
	if g.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (g *Globals) provider() (provider.Provider, error) {
	if g.Provider != nil {
		return g.Provider, nil
	}
	file, err := client.NewSessionFile(g.SessionFile)
	if err != nil {
		return nil, err
	}
	return client.New(g.Endpoint, g.APIKey,
		client.WithHTTPClient(&http.Client{Timeout: g.timeout()}),
		client.WithSessionFile(file),
		client.WithLogger(g.logger()),
	), nil
}

// open starts a session store over the configured provider. The caller must
// Close it.
func (g *Globals) open(ctx context.Context) (*session.Store, provider.Provider, error) {
	p, err := g.provider()
	if err != nil {
		return nil, nil, err
	}
	store := session.New(p,
		session.WithLogger(g.logger()),
		session.WithProfileTimeout(guard.DefaultTimeout),
	)
	store.Initialize(ctx)
	return store, p, nil
}

// waitReady blocks until bootstrapping has resolved, ctx ends or the guard's
// timeout passes, whichever comes first.
func waitReady(ctx context.Context, store *session.Store) {
	timer := time.NewTimer(guard.DefaultTimeout)
	defer timer.Stop()
	select {
	case <-store.Ready():
	case <-ctx.Done():
	case <-timer.C:
	}
}

// settle waits until bootstrapping is over and no profile fetch is in flight,
// giving up after the guard's timeout.
func settle(ctx context.Context, store *session.Store) session.AuthState {
	ctx, cancel := context.WithTimeout(ctx, guard.DefaultTimeout)
	defer cancel()

	changed := make(chan struct{}, 1)
	unsubscribe := store.Subscribe(func(session.AuthState) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		st := store.State()
		if !st.Loading && !st.ProfilePending {
			return st
		}
		select {
		case <-ctx.Done():
			return store.State()
		case <-changed:
		}
	}
}

func describe(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", session.KindOf(err), err)
}

func printState(w io.Writer, st session.AuthState) {
	fmt.Fprintf(w, "status:    %s\n", st.Phase())
	if st.Identity != nil {
		fmt.Fprintf(w, "user:      %s (%s)\n", st.Identity.Email, st.Identity.ID)
	}
	if st.Session != nil && st.Session.Token != nil && !st.Session.Token.Expiry.IsZero() {
		fmt.Fprintf(w, "expires:   %s\n", st.Session.Token.Expiry.Local().Format(time.RFC1123))
	}
	if p := st.Profile; p != nil {
		fmt.Fprintf(w, "name:      %s %s\n", p.FirstName, p.LastName)
		fmt.Fprintf(w, "type:      %s\n", p.UserType)
		if p.Username != nil {
			fmt.Fprintf(w, "username:  %s\n", *p.Username)
		}
		if p.Bio != nil {
			fmt.Fprintf(w, "bio:       %s\n", *p.Bio)
		}
		if p.Location != nil {
			fmt.Fprintf(w, "location:  %s\n", *p.Location)
		}
		if len(p.Interests) > 0 {
			fmt.Fprintf(w, "interests: %v\n", p.Interests)
		}
	}
}
