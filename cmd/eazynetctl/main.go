// Command eazynetctl signs in to the EazyNet identity backend from a terminal
// and keeps the session in a local file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/logger"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/service/session"
	"github.com/nkiryanov/eazynet/internal/tokenstore"
)

const usage = `Usage: eazynetctl [--api URL] [--store PATH] <command> [flags]

Commands:
  login --email EMAIL [--password PASSWORD]   sign in and keep the session
  whoami                                      print the signed in user
  subscription                                print the subscription summary
  trial                                       start the free trial
  logout                                      sign out and forget the session
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "eazynetctl:", err)
		os.Exit(1)
	}
}

type cli struct {
	client *session.Client
	out    io.Writer
	errOut io.Writer
	getenv func(string) string
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout io.Writer, stderr io.Writer) error {
	fs := pflag.NewFlagSet("eazynetctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	fs.SetInterspersed(false)

	apiURL := fs.StringP("api", "u", getenv("NEXT_PUBLIC_EAZYNET_API_URL"), "Identity backend base URL")
	storePath := fs.StringP("store", "s", "", "Session file (default ~/.eazynet/session.json)")
	logLevel := fs.StringP("log-level", "l", logger.LevelError, "Logging level (debug, info, warn, error)")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("command is required")
	}
	if *apiURL == "" {
		return errors.New("identity backend URL is required: set NEXT_PUBLIC_EAZYNET_API_URL or --api")
	}

	path := *storePath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("can't find home directory, use --store: %w", err)
		}
		path = filepath.Join(home, ".eazynet", "session.json")
	}
	store, err := tokenstore.NewFile(path)
	if err != nil {
		return err
	}

	l, err := logger.NewTextLogger(*logLevel)
	if err != nil {
		return err
	}

	client, err := session.New(session.Config{BaseURL: *apiURL, Timeout: *timeout}, store, session.WithLogger(l))
	if err != nil {
		return err
	}

	c := &cli{client: client, out: stdout, errOut: stderr, getenv: getenv}
	command, rest := fs.Arg(0), fs.Args()[1:]

	switch command {
	case "login":
		return c.login(ctx, rest)
	case "whoami":
		return c.whoami(ctx)
	case "subscription":
		return c.subscription(ctx)
	case "trial":
		return c.trial(ctx)
	case "logout":
		return c.logout(ctx)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	fs.SetOutput(c.errOut)
	email := fs.StringP("email", "e", "", "Account email")
	password := fs.StringP("password", "p", c.getenv("EAZYNET_PASSWORD"), "Account password (or EAZYNET_PASSWORD)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("login needs --email and --password")
	}

	user, err := c.client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	return c.print(user)
}

// Session is refreshed first if the access token has expired
func (c *cli) whoami(ctx context.Context) error {
	if err := c.ensureSignedIn(ctx); err != nil {
		return err
	}

	user, err := c.client.GetProfile(ctx)
	if err != nil {
		return err
	}
	return c.print(user)
}

func (c *cli) subscription(ctx context.Context) error {
	if err := c.ensureSignedIn(ctx); err != nil {
		return err
	}

	sub, err := c.client.GetSubscription(ctx)
	if err != nil {
		return err
	}
	return c.print(subscriptionOutput{
		Subscription:  sub,
		Tier:          sub.Tier(),
		TrialDaysLeft: sub.TrialDaysLeft(time.Now()),
	})
}

func (c *cli) trial(ctx context.Context) error {
	if err := c.ensureSignedIn(ctx); err != nil {
		return err
	}

	sub, err := c.client.StartTrial(ctx)
	if err != nil {
		return err
	}
	return c.print(subscriptionOutput{
		Subscription:  sub,
		Tier:          sub.Tier(),
		TrialDaysLeft: sub.TrialDaysLeft(time.Now()),
	})
}

func (c *cli) logout(ctx context.Context) error {
	// Local session is gone even if the backend did not answer
	err := c.client.Logout(ctx)
	if err != nil {
		fmt.Fprintln(c.errOut, "warning: backend logout failed:", err)
	}
	return c.print(map[string]bool{"signedOut": true})
}

func (c *cli) ensureSignedIn(ctx context.Context) error {
	if c.client.IsAuthenticated() {
		return nil
	}
	if c.client.Tokens().Refresh == "" {
		return fmt.Errorf("%w: run 'eazynetctl login' first", apperrors.ErrNotAuthenticated)
	}
	return c.client.RefreshAuthToken(ctx)
}

type subscriptionOutput struct {
	Subscription  models.Subscription `json:"subscription"`
	Tier          models.Tier         `json:"tier"`
	TrialDaysLeft int                 `json:"trialDaysLeft"`
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
