package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/studentfund/studentfund/internal/profile"
)

// ProfileCmd updates the fields given on the command line.
type ProfileCmd struct {
	FirstName string   `help:"First name"`
	LastName  string   `help:"Last name"`
	Username  string   `help:"Public username"`
	Bio       string   `help:"Short biography"`
	Location  string   `help:"City or region"`
	Interests []string `help:"Interests, comma separated"`
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (c *ProfileCmd) update() profile.Update {
	u := profile.Update{
		FirstName: optional(c.FirstName),
		LastName:  optional(c.LastName),
		Username:  optional(c.Username),
		Bio:       optional(c.Bio),
		Location:  optional(c.Location),
	}
	if len(c.Interests) > 0 {
		interests := c.Interests
		u.Interests = &interests
	}
	return u
}

func (c *ProfileCmd) Run(ctx context.Context, globals *Globals) error {
	u := c.update()
	if u.Empty() {
		return fmt.Errorf("nothing to update; pass at least one field")
	}

	store, _, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	waitReady(ctx, store)
	if _, err := store.UpdateProfile(ctx, u); err != nil {
		return describe(err)
	}

	printState(globals.out(), store.State())
	return nil
}
