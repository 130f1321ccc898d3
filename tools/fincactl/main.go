package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"fincas-control/internal/audit"
	"fincas-control/internal/auth"
	"fincas-control/internal/config"
	"fincas-control/internal/dispatch/application"
	dispatch "fincas-control/internal/dispatch/domain"
	"fincas-control/internal/wiring"
)

const (
	exitOK       = 0
	exitFailures = 1
	exitRejected = 2
)

type options struct {
	Verb    string   `short:"v" long:"verb" description:"Command verb (get, reboot, sim, status, latest, sleep, set)"`
	Sites   []string `short:"s" long:"site" description:"Target finca; repeat for several"`
	All     bool     `long:"all" description:"Target every finca in the catalog"`
	Seconds int      `long:"seconds" description:"Sleep duration in seconds (1-3600, default 60)"`
	Params  []string `short:"p" long:"param" description:"Parameter assignment name=value for set; repeat for several"`
	Topic   string   `long:"topic" description:"Notification topic override (data_loss, manager, reboots)"`
	Echo    bool     `long:"echo" description:"Print endpoint response bodies"`
	DryRun  bool     `long:"dry-run" description:"Print the commands without sending them"`
	Probe   bool     `long:"probe" description:"Check that the Node-RED endpoint answers and exit"`
	List    bool     `long:"list" description:"List fincas and settable parameters and exit"`
	Verbose bool     `long:"verbose" description:"Log dispatch details to stderr"`
}

type tokenCommand struct {
	Subject string        `long:"subject" required:"true" description:"Token subject (operator name)"`
	Role    string        `long:"role" default:"operator" description:"viewer, operator or admin"`
	TTL     time.Duration `long:"ttl" default:"720h" description:"Token lifetime"`

	out io.Writer
}

// Execute prints a signed panel token.
func (c *tokenCommand) Execute(_ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	token, err := auth.IssueJWT([]byte(cfg.JWTSecret), c.Subject, auth.Role(c.Role), c.TTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, token)
	return err
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = true
	token := &tokenCommand{out: os.Stdout}
	if _, err := parser.AddCommand("token", "Issue a panel token", "Signs a JWT with AUTH_JWT_SECRET for the HTTP panel.", token); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailures)
	}

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(exitOK)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitRejected)
	}
	if parser.Active != nil {
		os.Exit(exitOK)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitRejected)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitRejected)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, opts, cfg, os.Stdout, os.Stderr))
}

func run(ctx context.Context, opts options, cfg config.Config, stdout, stderr io.Writer) int {
	logOut := io.Discard
	if opts.Verbose {
		logOut = stderr
	}
	logger := log.New(logOut, "fincactl: ", log.LstdFlags)

	if opts.List {
		printCatalog(stdout, cfg.Catalog)
		return exitOK
	}

	var sinks []application.ResultSink
	db, repo, err := wiring.OpenAudit(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailures
	}
	if db != nil {
		defer db.Close()
		recorder, err := audit.NewRecorder(repo, logger, "cli:"+currentUser())
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailures
		}
		sinks = append(sinks, recorder)
	}

	svc, _, err := wiring.BuildService(cfg, logger, sinks...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailures
	}

	if opts.Probe {
		probe := svc.Probe(ctx)
		if !probe.Reachable {
			fmt.Fprintf(stdout, "✘ %s unreachable: %s\n", probe.Endpoint, probe.Error)
			return exitFailures
		}
		fmt.Fprintf(stdout, "✔ %s answered %d\n", probe.Endpoint, probe.StatusCode)
		return exitOK
	}

	req, err := buildRequest(opts, cfg.Catalog)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitRejected
	}

	if opts.DryRun {
		plan, err := svc.Plan(req)
		if err != nil {
			return reportRejection(stderr, err)
		}
		for _, cmd := range plan.Commands {
			fmt.Fprintln(stdout, cmd.Text())
		}
		return exitOK
	}

	batch, err := svc.Run(ctx, req)
	if err != nil {
		return reportRejection(stderr, err)
	}
	printBatch(stdout, batch, opts.Echo || cfg.EchoResponses)
	if batch.Failed() > 0 {
		return exitFailures
	}
	return exitOK
}

func buildRequest(opts options, catalog *dispatch.Catalog) (application.Request, error) {
	req := application.Request{
		Verb:    opts.Verb,
		Sites:   opts.Sites,
		Seconds: opts.Seconds,
		Topic:   opts.Topic,
	}
	if opts.All {
		if len(opts.Sites) > 0 {
			return req, errors.New("--all cannot be combined with --site")
		}
		req.Sites = nil
		for _, site := range catalog.Sites() {
			req.Sites = append(req.Sites, string(site))
		}
	}
	for _, raw := range opts.Params {
		assignment, err := dispatch.ParseAssignment(raw)
		if err != nil {
			return req, err
		}
		req.Parameters = append(req.Parameters, assignment)
	}
	return req, nil
}

func reportRejection(stderr io.Writer, err error) int {
	if dispatch.IsWarning(err) {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	} else {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitRejected
}

func printBatch(out io.Writer, batch dispatch.Batch, echo bool) {
	for _, result := range batch.Results {
		if result.Delivered {
			fmt.Fprintf(out, "✔ %s (%d, %s)", result.Command.Text(), result.StatusCode, result.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(out, "✘ %s: %s", result.Command.Text(), result.Error.OrEmpty())
		}
		if msg, ok := result.NotifyError.Get(); ok {
			fmt.Fprintf(out, " [mirror failed: %s]", msg)
		}
		fmt.Fprintln(out)
		if body, ok := result.ResponseBody.Get(); ok && echo && body != "" {
			for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
				fmt.Fprintf(out, "    %s\n", line)
			}
		}
	}
	fmt.Fprintf(out, "%d delivered, %d failed\n", batch.Delivered(), batch.Failed())
}

func printCatalog(out io.Writer, catalog *dispatch.Catalog) {
	fmt.Fprintln(out, "fincas:")
	for _, site := range catalog.Sites() {
		fmt.Fprintf(out, "  %s\n", site)
	}
	fmt.Fprintln(out, "parameters:")
	for _, name := range catalog.Parameters() {
		fmt.Fprintf(out, "  %s\n", name)
	}
}

func currentUser() string {
	for _, key := range []string{"USER", "USERNAME"} {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return "unknown"
}
