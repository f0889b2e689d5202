// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/ourtube/internal/api/connect"
	"github.com/osa030/ourtube/internal/app/filter"
	"github.com/osa030/ourtube/internal/app/pipeline"
	"github.com/osa030/ourtube/internal/app/resolver"
	"github.com/osa030/ourtube/internal/app/session"
	"github.com/osa030/ourtube/internal/infra/config"
	"github.com/osa030/ourtube/internal/infra/logger"
	"github.com/osa030/ourtube/internal/infra/metrics"
	"github.com/osa030/ourtube/internal/infra/spotify"
	"github.com/osa030/ourtube/internal/infra/youtube"
)

var (
	app        = kingpin.New("ourtube-server", "ourtube multi-tenant playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	logFormat  = app.Flag("log-format", "Log format: console or json").Enum("console", "json")

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
	// check-binaries command
	checkBinariesCmd = app.Command("check-binaries", "Check that the fetcher and transcoder are installed")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Handle list-filters command
	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
		Format: *logFormat,
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkBinariesCmd.FullCommand() {
		if err := checkBinaries(cfg); err != nil {
			zlog.Error().Msgf("%v", err)
			os.Exit(1)
		}
		zlog.Info().Msgf("Found %s and %s", cfg.Pipeline.Fetcher, cfg.Pipeline.Transcoder)
		return
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	if err := checkBinaries(cfg); err != nil {
		zlog.Warn().Msgf("Pipeline binaries missing, tracks will fail to load: %v", err)
	}

	res, err := newResolver(ctx, cfg)
	if err != nil {
		return err
	}

	// Create session manager
	sessionMgr, err := session.NewManager(cfg, res)
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}
	defer sessionMgr.Shutdown()

	for _, t := range cfg.Tenants {
		if err := sessionMgr.Open(t.ID, t.Channel); err != nil {
			return errors.Wrapf(err, "failed to open tenant %s", t.ID)
		}
	}

	// Create RPC services
	queueService := apiconnect.NewQueueService(sessionMgr, cfg)
	adminService := apiconnect.NewAdminService(sessionMgr)

	// Create HTTP mux
	mux := http.NewServeMux()
	mux.Handle(queueService.Handler())
	mux.Handle(adminService.Handler(
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)),
	))
	mux.Handle(cfg.Server.MetricsPath, metrics.Handler())

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s tenants=%d", cfg.Server.Addr, len(cfg.Tenants))
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	// Close tenants first to terminate active notification streams
	sessionMgr.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// newResolver builds the locator resolver: YouTube URLs, Spotify tracks when
// credentials are configured, then free-text search, behind a cache.
func newResolver(ctx context.Context, cfg *config.Config) (resolver.Resolver, error) {
	yt, err := youtube.New(youtube.Config{
		APIKey:            cfg.Resolver.YouTube.APIKey,
		RequestsPerMinute: cfg.Resolver.YouTube.RequestsPerMinute,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create YouTube client")
	}

	resolvers := []resolver.Resolver{resolver.NewYouTube(yt)}
	if cfg.Resolver.Spotify.Enabled() {
		sp, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Resolver.Spotify.ClientID,
			ClientSecret: cfg.Resolver.Spotify.ClientSecret,
			Market:       cfg.Resolver.Spotify.Market,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Spotify client")
		}
		resolvers = append(resolvers, resolver.NewSpotify(sp, yt))
		zlog.Info().Msgf("Spotify resolver enabled: market=%s", sp.Market())
	}
	resolvers = append(resolvers, resolver.NewSearch(yt))

	return resolver.NewCache(resolver.NewChain(resolvers...), cfg.Resolver.CacheTTL()), nil
}

func checkBinaries(cfg *config.Config) error {
	p := pipeline.New(pipeline.Config{
		Fetcher:    cfg.Pipeline.Fetcher,
		Transcoder: cfg.Pipeline.Transcoder,
	})
	return p.CheckBinaries()
}

// printFilters prints available filters.
func printFilters() {
	registered := filter.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
