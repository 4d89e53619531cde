package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/go-authgate/climate-cli/api"
	"github.com/go-authgate/climate-cli/apierr"
	"github.com/go-authgate/climate-cli/cache"
	"github.com/go-authgate/climate-cli/session"
	"github.com/go-authgate/climate-cli/tui"
)

// ErrLoginRequired is returned by data commands run without a session.
var ErrLoginRequired = errors.New("login required")

// invocation is a parsed command line.
type invocation struct {
	cmd    *command
	creds  api.Credentials
	signup api.SignupForm

	region string
	years  int
	year   int
	top    int
}

type command struct {
	name      string
	summary   string
	needsAuth bool
	flags     func(fs *flag.FlagSet, inv *invocation, cfg *Config)
	run       func(ctx context.Context, a *app, inv *invocation) error
}

var commands []*command

func init() {
	commands = []*command{
		{name: "status", summary: "Show whether you are logged in (default)", run: runStatus},
		{name: "login", summary: "Log in with username and password", flags: credentialFlags, run: runLogin},
		{name: "signup", summary: "Create an account and log in", flags: signupFlags, run: runSignup},
		{name: "logout", summary: "End the session", run: runLogout},
		{name: "whoami", summary: "Show account details", needsAuth: true, run: runWhoami},
		{name: "temperature", summary: "Show temperature anomalies for a region", needsAuth: true, flags: temperatureFlags, run: runTemperature},
		{name: "co2", summary: "Show the largest CO2 emitters for a year", needsAuth: true, flags: co2Flags, run: runCO2},
		{name: "ping", summary: "Check that the API is reachable", run: runPing},
	}
}

func lookupCommand(name string) *command {
	for _, c := range commands {
		if c.name == name {
			return c
		}
	}
	return nil
}

// parseInvocation parses "<command> [flags]". An empty args runs status.
func parseInvocation(cfg *Config, args []string, stderr io.Writer) (*invocation, error) {
	name := "status"
	if len(args) > 0 {
		name, args = args[0], args[1:]
	}

	cmd := lookupCommand(name)
	if cmd == nil {
		return nil, fmt.Errorf("unknown command %q", name)
	}

	inv := &invocation{cmd: cmd}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	if cmd.flags != nil {
		cmd.flags(fs, inv, cfg)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%s: unexpected arguments: %v", name, fs.Args())
	}
	return inv, nil
}

func credentialFlags(fs *flag.FlagSet, inv *invocation, cfg *Config) {
	fs.StringVar(&inv.creds.Username, "username", cfg.Username, "Username (or CLIMATE_USERNAME env)")
	fs.StringVar(&inv.creds.Password, "password", cfg.Password, "Password (or CLIMATE_PASSWORD env; prompted when empty)")
}

func signupFlags(fs *flag.FlagSet, inv *invocation, cfg *Config) {
	fs.StringVar(&inv.signup.Username, "username", cfg.Username, "Username (or CLIMATE_USERNAME env)")
	fs.StringVar(&inv.signup.Email, "email", "", "Email address")
	fs.StringVar(&inv.signup.Password1, "password", cfg.Password, "Password (or CLIMATE_PASSWORD env; prompted when empty)")
}

func temperatureFlags(fs *flag.FlagSet, inv *invocation, _ *Config) {
	fs.StringVar(&inv.region, "region", "World", "Region to show")
	fs.IntVar(&inv.years, "years", 20, "Number of most recent years to show (0 for all)")
}

func co2Flags(fs *flag.FlagSet, inv *invocation, _ *Config) {
	fs.IntVar(&inv.year, "year", 0, "Year to show (default: latest available)")
	fs.IntVar(&inv.top, "top", 10, "Number of countries to show (0 for all)")
}

// run restores the session, waits until it is known, then runs inv.
func run(ctx context.Context, a *app, inv *invocation) error {
	a.errs.Navigate()
	a.d.Banner(a.cfg.APIURL)
	a.d.Restoring()

	if err := a.manager.Restore(ctx); err != nil && ctx.Err() == nil {
		a.d.AutoLoginFailed(err)
	}
	if err := a.manager.WaitReady(ctx); err != nil {
		return err
	}
	a.d.Restored(a.manager.CurrentUsername())

	if inv.cmd.needsAuth && a.manager.State() != session.Authenticated {
		a.d.LoginRequired()
		return ErrLoginRequired
	}

	err := inv.cmd.run(ctx, a, inv)
	if err != nil {
		a.logger.Debug("command failed", zap.String("command", inv.cmd.name), zap.Error(err))
	}
	return err
}

// showError puts err next to the form unless the global banner already shows it.
func showError(a *app, err error) {
	if errors.Is(err, session.ErrSessionSuperseded) || apierr.IsGlobal(err) {
		return
	}
	a.d.FormError(errors.New(apierr.Message(err)))
}

func runStatus(_ context.Context, a *app, _ *invocation) error {
	snap := a.manager.Snapshot()
	body := "Not logged in"
	if snap.State == session.Authenticated {
		body = "Logged in as " + snap.Username
	}
	a.d.Result("Session", fmt.Sprintf("%s\nAPI: %s\nSession file: %s", body, a.cfg.APIURL, a.marker.Path()))
	return nil
}

func runLogin(ctx context.Context, a *app, inv *invocation) error {
	a.d.Working("Logging in")
	if err := a.manager.Login(ctx, inv.creds); err != nil {
		showError(a, err)
		return err
	}
	a.d.SignedIn(a.manager.CurrentUsername())
	return nil
}

func runSignup(ctx context.Context, a *app, inv *invocation) error {
	a.d.Working("Creating account")
	if err := a.manager.Signup(ctx, inv.signup); err != nil {
		showError(a, err)
		return err
	}
	a.d.SignedIn(a.manager.CurrentUsername())
	return nil
}

func runLogout(ctx context.Context, a *app, _ *invocation) error {
	if a.manager.State() != session.Authenticated {
		a.d.Result("", "Not logged in.")
		return nil
	}

	a.d.Working("Logging out")
	err := a.manager.Logout(ctx)
	// local state is gone either way
	a.d.SignedOut()
	return err
}

func runWhoami(ctx context.Context, a *app, _ *invocation) error {
	a.d.Working("Loading account")
	u, err := cache.Fetch(ctx, a.cache, "user", a.client.CurrentUser)
	if err != nil {
		return err
	}
	a.d.Result("Account", tui.FormatUser(u))
	return nil
}

func runTemperature(ctx context.Context, a *app, inv *invocation) error {
	a.d.Working("Loading temperature data")
	data, err := cache.Fetch(ctx, a.cache, "temperature", a.client.Temperature)
	if err != nil {
		return err
	}

	out, err := tui.FormatTemperature(data, inv.region, inv.years)
	if err != nil {
		a.d.FormError(err)
		return err
	}
	a.d.Result("Temperature anomaly (°C), "+inv.region, out)
	return nil
}

func runCO2(ctx context.Context, a *app, inv *invocation) error {
	a.d.Working("Loading CO2 data")
	data, err := cache.Fetch(ctx, a.cache, "co2", a.client.CO2ByYear)
	if err != nil {
		return err
	}

	out, year, err := tui.FormatCO2(data, inv.year, inv.top)
	if err != nil {
		a.d.FormError(err)
		return err
	}
	a.d.Result(fmt.Sprintf("CO2 emissions %d", year), out)
	return nil
}

func runPing(ctx context.Context, a *app, _ *invocation) error {
	a.d.Working("Pinging API")
	msg, err := a.client.Ping(ctx)
	if err != nil {
		if apierr.IsGlobal(err) {
			a.errs.Set(apierr.Message(err))
		}
		return err
	}
	a.errs.Clear()
	a.d.Result("Ping", msg)
	return nil
}
