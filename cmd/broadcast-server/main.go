package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/broadcast-server/internal/client"
	"github.com/Tyrowin/broadcast-server/internal/logging"
	"github.com/Tyrowin/broadcast-server/internal/server"
)

const usage = `Usage: broadcast-server <command> [options]

Commands:
  start     Start the broadcast server
  connect   Connect to the broadcast server

Run 'broadcast-server <command> -h' for command options.
`

// errReported marks failures the client session has already shown to the user.
var errReported = errors.New("reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	var err error
	switch args[0] {
	case "start":
		err = runStart(ctx, args[1:], stdout, stderr)
	case "connect":
		err = runConnect(ctx, args[1:], stdin, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errReported):
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func runStart(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := server.NewConfig()

	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Port to listen on")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Host to bind")
	fs.Int64Var(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "Maximum inbound message size in bytes")
	fs.IntVar(&cfg.RateLimit.Burst, "rate-burst", cfg.RateLimit.Burst, "Messages allowed per peer per second (0 disables)")
	origins := fs.String("allowed-origins", "*", "Comma-separated browser origins allowed to connect")
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", string(logging.FormatConsole), "Log format (console, json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.AllowedOrigins = server.ParseOrigins(*origins)

	log, err := logging.New(logging.Options{
		Service: "broadcast-server",
		Level:   *logLevel,
		Format:  logging.Format(*logFormat),
		Output:  stdout,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	log.Info().Msgf("Starting broadcast server on %s", cfg.Addr())
	log.Info().Msg("Press Ctrl+C to stop the server")

	return srv.Run(ctx)
}

func runConnect(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := client.NewConfig()

	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Server host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Server port")
	logLevel := fs.String("log-level", "warn", "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log, err := logging.New(logging.Options{
		Service: "broadcast-client",
		Level:   *logLevel,
		Output:  stderr,
	})
	if err != nil {
		return err
	}

	if err := client.NewSession(cfg, stdin, stdout, log).Run(ctx); err != nil {
		return fmt.Errorf("%w: %w", errReported, err)
	}
	if ctx.Err() != nil {
		fmt.Fprintln(stdout, "Goodbye!")
	}
	return nil
}
