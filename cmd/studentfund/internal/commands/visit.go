package commands

import (
	"context"
	"fmt"

	"github.com/studentfund/studentfund/internal/guard"
	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/session"
)

// VisitCmd runs the route guard for a page and prints the decision.
type VisitCmd struct {
	Route string `arg:"" help:"User type the page requires, or any for any signed-in user" enum:"student,donor,admin,any"`
}

func (c *VisitCmd) required() profile.UserType {
	if c.Route == "any" {
		return ""
	}
	return profile.UserType(c.Route)
}

func (c *VisitCmd) Run(ctx context.Context, globals *Globals) error {
	store, _, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	g := guard.New(store, guard.WithLogger(globals.logger()))
	d, err := g.Await(ctx, c.required())
	if err != nil {
		return err
	}

	w := globals.out()
	switch d {
	case guard.Allow:
		fmt.Fprintln(w, "ALLOW")
	default:
		fmt.Fprintf(w, "REDIRECT %s\n", guard.RedirectPath)
	}
	return nil
}

func navName(st session.AuthState) string {
	return guard.Nav(st).String()
}
