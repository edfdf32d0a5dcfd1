package main

//
//  @title           b3lake API
//  @version         1.0
//  @description     Read API over the day-partitioned B3 OHLCV lake.
//  @termsOfService  https://github.com/guttosm/b3lake
//  @contact.name    API Support
//  @contact.url     https://github.com/guttosm/b3lake
//  @contact.email   support@example.com
//  @license.name    MIT
//  @license.url     https://opensource.org/licenses/MIT
//  @host            localhost:8080
//  @BasePath        /
//  @schemes         http
//
//  @tag.name        aggregate
//  @tag.description Price and volume aggregates per ticker
//
//  @tag.name        bars
//  @tag.description Stored OHLCV bars
//
//  @tag.name        partitions
//  @tag.description Ingestion manifest
//
//  @tag.name        health
//  @tag.description Liveness and readiness probes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // exchange timezone without a system zoneinfo

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/guttosm/b3lake/config"
	_ "github.com/guttosm/b3lake/docs" // swagger docs
	"github.com/guttosm/b3lake/internal/app"
	"github.com/guttosm/b3lake/internal/apperr"
	"github.com/guttosm/b3lake/internal/logger"
)

const usage = `usage: b3lake <command> [flags]

commands:
  ingest    fetch bars and publish day partitions
  upload    mirror a local tree to S3
  download  mirror an S3 prefix to a local dir
  read      inspect local partitions
  api       serve the read API

run "b3lake <command> --help" for the flags of a command.
`

// startServer initializes and starts the HTTP server in a separate goroutine.
//
// Parameters:
//   - router (http.Handler): The HTTP router (Gin Engine) configured with all routes.
//   - port (string): The port where the server will listen for incoming requests.
//   - log (zerolog.Logger): server lifecycle logs.
//
// Returns:
//   - *http.Server: The initialized HTTP server instance.
func startServer(router http.Handler, port string, log zerolog.Logger) *http.Server {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	return server
}

// gracefulShutdown gracefully terminates the HTTP server and cleans up resources
// when an OS interrupt signal (SIGINT, SIGTERM) is received.
//
// Parameters:
//   - ctx (context.Context): A context with timeout for graceful shutdown.
//   - server (*http.Server): The HTTP server instance to shut down.
//   - cleanup (func()): Cleanup callback to release resources (e.g., DB connections).
//   - log (zerolog.Logger): server lifecycle logs.
func gracefulShutdown(ctx context.Context, server *http.Server, cleanup func(), log zerolog.Logger) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	cleanup()
	if err != nil {
		return apperr.Wrap(apperr.ErrRuntime, fmt.Errorf("server forced to shutdown: %w", err))
	}
	log.Info().Msg("server exited gracefully")
	return nil
}

// main is the entry point of the b3lake CLI.
//
// Commands:
//   - ingest:   Fetches bars (Yahoo or a CSV export) and writes dt=YYYY-MM-DD partitions.
//   - upload:   Mirrors a local partition tree to S3.
//   - download: Mirrors an S3 prefix to a local directory.
//   - read:     Filters, prints or exports local partitions.
//   - api:      Starts the REST API over the local lake.
//
// Exit codes: 0 ok, 2 usage, 3 validation or config, 4 runtime, 5 missing
// credentials, 99 unexpected.
func main() {
	log := logger.FromEnv()
	err := run(context.Background(), os.Args[1:], os.Stdout, log)
	code := apperr.ExitCode(err)
	if err != nil {
		log.Error().Err(err).Int("exit_code", code).Msg("command failed")
	}
	os.Exit(code)
}

// run dispatches one command. A panic is reported as an unexpected error.
func run(ctx context.Context, args []string, stdout io.Writer, log zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if len(args) == 0 {
		_, _ = fmt.Fprint(stdout, usage)
		return apperr.Errorf(apperr.ErrUsage, "missing command")
	}
	name, rest := args[0], args[1:]

	var cmd func(context.Context, *config.Config, []string, io.Writer, zerolog.Logger) error
	switch name {
	case "ingest":
		cmd = runIngest
	case "upload":
		cmd = runUpload
	case "download":
		cmd = runDownload
	case "read":
		cmd = runRead
	case "api":
		cmd = runAPI
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(stdout, usage)
		return nil
	default:
		_, _ = fmt.Fprint(stdout, usage)
		return apperr.Errorf(apperr.ErrUsage, "unknown command %q", name)
	}

	// Load configuration from environment or .env file
	cfg, err := config.Load()
	if err != nil {
		return apperr.Wrap(apperr.ErrConfig, err)
	}
	return cmd(ctx, cfg, rest, stdout, log.With().Str("cmd", name).Logger())
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false
	return fs
}

// parseFlags maps pflag failures to usage errors. errHelp is returned as is.
func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return apperr.Wrap(apperr.ErrUsage, err)
	}
	return nil
}

func runAPI(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer, log zerolog.Logger) error {
	fs := newFlagSet("api", stdout)
	port := fs.String("port", cfg.Server.Port, "Port for the API server")
	if err := parseFlags(fs, args); err != nil {
		return helpOK(err)
	}

	log.Info().Msg("starting API server")
	router, cleanup, err := app.InitializeApp(cfg, log)
	if err != nil {
		return apperr.Wrap(apperr.ErrRuntime, err)
	}

	server := startServer(router, *port, log)
	return gracefulShutdown(ctx, server, cleanup, log)
}

// helpOK turns a --help request into a successful exit.
func helpOK(err error) error {
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}
