package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/studentfund/studentfund/cmd/studentfund/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Signup  commands.SignupCmd  `cmd:"" help:"Create an account and its profile"`
		Login   commands.LoginCmd   `cmd:"" help:"Sign in with email and password"`
		Logout  commands.LogoutCmd  `cmd:"" help:"Sign out and forget the stored session"`
		Whoami  commands.WhoamiCmd  `cmd:"" help:"Show the signed-in user and profile"`
		Profile commands.ProfileCmd `cmd:"" help:"Update your profile"`
		Visit   commands.VisitCmd   `cmd:"" help:"Check whether the current user may open a protected page"`
		Images  commands.ImagesCmd  `cmd:"" help:"Show or replace your profile and banner images"`

		Endpoint    string        `help:"Provider API base URL" default:"http://localhost:8080" env:"STUDENTFUND_URL"`
		APIKey      string        `help:"Public project API key" required:"" env:"STUDENTFUND_API_KEY" name:"api-key"`
		SessionFile string        `help:"Where the session is stored (default ~/.studentfund/session.json)" env:"STUDENTFUND_SESSION_FILE" type:"path"`
		Debug       bool          `help:"Enable debug logging."`
		Timeout     time.Duration `help:"Timeout for each request to the provider" default:"30s" env:"STUDENTFUND_TIMEOUT"`
		Version     kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("studentfund"),
		kong.Description("Command line client for the studentfund platform."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Endpoint:    cli.Endpoint,
		APIKey:      cli.APIKey,
		SessionFile: cli.SessionFile,
		Debug:       cli.Debug,
		Timeout:     cli.Timeout,
		Version:     version,
	})
	cmd.FatalIfErrorf(err)
}
