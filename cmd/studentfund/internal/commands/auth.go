package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/session"
)

// SignupCmd creates an account and its profile.
type SignupCmd struct {
	Email     string `help:"Email address" required:""`
	Password  string `help:"Password (at least 6 characters)" required:"" env:"STUDENTFUND_PASSWORD"`
	FirstName string `help:"First name" required:""`
	LastName  string `help:"Last name" required:""`
	Type      string `help:"Account type" enum:"student,donor,admin" default:"student"`
	Username  string `help:"Public username, required for students"`
}

func (c *SignupCmd) Run(ctx context.Context, globals *Globals) error {
	store, _, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.Signup(ctx, session.SignupRequest{
		Email:     c.Email,
		Password:  c.Password,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		UserType:  profile.UserType(c.Type),
		Username:  c.Username,
	})
	if err != nil {
		return describe(err)
	}

	w := globals.out()
	fmt.Fprintf(w, "Account created for %s (%s)\n", c.Email, p.UserType)
	if !store.State().IsAuthenticated() {
		fmt.Fprintln(w, "Check your inbox to confirm your email address, then run: studentfund login")
	}
	return nil
}

// LoginCmd signs in with email and password.
type LoginCmd struct {
	Email    string `help:"Email address" required:""`
	Password string `help:"Password" required:"" env:"STUDENTFUND_PASSWORD"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	store, _, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Login(ctx, c.Email, c.Password); err != nil {
		return describe(err)
	}

	st := settle(ctx, store)
	w := globals.out()
	fmt.Fprintf(w, "Signed in as %s\n", c.Email)
	if st.Phase() == session.PhaseAuthenticatedNoProfile {
		fmt.Fprintln(w, "Warning: this account has no profile yet")
	}
	return nil
}

// LogoutCmd signs out and clears the stored session.
type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	store, _, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	// Signing out must not depend on session restore finishing.
	ctx, cancel := context.WithTimeout(ctx, globals.timeout())
	defer cancel()
	if err := store.Logout(ctx); err != nil {
		// The local session is gone either way.
		globals.logger().Warn("server sign out failed", "error", err)
	}
	fmt.Fprintln(globals.out(), "Signed out")
	return nil
}

// WhoamiCmd prints the signed-in user and profile.
type WhoamiCmd struct {
	JSON bool `help:"Print the state as JSON"`
}

type whoamiOutput struct {
	Status   string           `json:"status"`
	UserID   string           `json:"userId,omitempty"`
	Email    string           `json:"email,omitempty"`
	Profile  *profile.Profile `json:"profile,omitempty"`
	Expires  string           `json:"expiresAt,omitempty"`
	NavState string           `json:"nav"`
}

func (c *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	store, _, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	st := settle(ctx, store)
	w := globals.out()

	if !c.JSON {
		printState(w, st)
		return nil
	}

	out := whoamiOutput{Status: st.Phase().String(), Profile: st.Profile, NavState: navName(st)}
	if st.Identity != nil {
		out.UserID = st.Identity.ID.String()
		out.Email = st.Identity.Email
	}
	if st.Session != nil && st.Session.Token != nil && !st.Session.Token.Expiry.IsZero() {
		out.Expires = st.Session.Token.Expiry.UTC().Format("2006-01-02T15:04:05Z")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
