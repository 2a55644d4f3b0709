package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"foundationsd/internal/backend"
	"foundationsd/internal/config"
	"foundationsd/internal/httpapi"
	"foundationsd/internal/inference"
	"foundationsd/internal/logging"
	"foundationsd/internal/registry"
)

func newServeCmd() *cobra.Command {
	var flags config.Config
	var corsOrigins string
	var corsEnabled, metricsEnabled bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Resolve(path, os.Getenv)
			if err != nil {
				return err
			}
			applyFlags(&cfg, cmd.Flags(), flags, corsEnabled, corsOrigins, metricsEnabled)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.ErrOrStderr(), nil)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.Addr, "addr", "", "HTTP listen address, e.g. 127.0.0.1:8080")
	f.Int64Var(&flags.MaxBodyBytes, "max-body-bytes", 0, "Maximum request body size in bytes")
	f.StringVar(&flags.Backend, "backend", "", "Generation backend: echo|llama-server|llama")
	f.StringVar(&flags.LlamaServerURL, "llama-server-url", "", "Base URL of the llama.cpp server")
	f.StringVar(&flags.ModelsDir, "models-dir", "", "Directory to scan for *.gguf model files (llama backend)")
	f.StringVar(&flags.Model, "model", "", "Model file name or path (llama backend; default: first *.gguf)")
	f.IntVar(&flags.LlamaCtx, "llama-ctx", 0, "Context size for the in-process llama backend")
	f.IntVar(&flags.LlamaThreads, "llama-threads", 0, "Threads for the in-process llama backend")
	f.IntVar(&flags.GenerateTimeoutSeconds, "generate-timeout", 0, "Seconds a caller waits for a generation (0 = no limit)")
	f.IntVar(&flags.MaxQueueDepth, "max-queue-depth", 0, "Requests allowed to wait behind the running generation (0 = unbounded)")
	f.IntVar(&flags.QueueWaitSeconds, "queue-wait", 0, "Seconds a request may wait for its turn (0 = no limit)")
	f.IntVar(&flags.ShutdownTimeoutSeconds, "shutdown-timeout", 0, "Seconds to wait for in-flight requests on shutdown")
	f.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	f.StringVar(&flags.LogFormat, "log-format", "", "Log format: console|json")
	f.StringVar(&flags.LogFile, "log-file", "", "Also write JSON logs to this rotating file")
	f.BoolVar(&corsEnabled, "cors-enabled", false, "Enable CORS")
	f.StringVar(&corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins")
	f.BoolVar(&metricsEnabled, "metrics", true, "Serve Prometheus metrics at /metrics")
	return cmd
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cfg *config.Config, fs *pflag.FlagSet, flags config.Config, corsEnabled bool, corsOrigins string, metricsEnabled bool) {
	over := config.Config{}
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("addr", func() { over.Addr = flags.Addr })
	set("max-body-bytes", func() { over.MaxBodyBytes = flags.MaxBodyBytes })
	set("backend", func() { over.Backend = flags.Backend })
	set("llama-server-url", func() { over.LlamaServerURL = flags.LlamaServerURL })
	set("models-dir", func() { over.ModelsDir = flags.ModelsDir })
	set("model", func() { over.Model = flags.Model })
	set("llama-ctx", func() { over.LlamaCtx = flags.LlamaCtx })
	set("llama-threads", func() { over.LlamaThreads = flags.LlamaThreads })
	set("shutdown-timeout", func() { over.ShutdownTimeoutSeconds = flags.ShutdownTimeoutSeconds })
	set("log-level", func() { over.LogLevel = flags.LogLevel })
	set("log-format", func() { over.LogFormat = flags.LogFormat })
	set("log-file", func() { over.LogFile = flags.LogFile })
	set("cors-enabled", func() { over.CORSEnabled = &corsEnabled })
	set("cors-origins", func() { over.CORSOrigins = config.SplitCSV(corsOrigins) })
	set("metrics", func() { over.MetricsEnabled = &metricsEnabled })
	*cfg = config.Merge(*cfg, over)

	// Zero is meaningful for these, so Merge cannot carry them.
	set("generate-timeout", func() { cfg.GenerateTimeoutSeconds = flags.GenerateTimeoutSeconds })
	set("max-queue-depth", func() { cfg.MaxQueueDepth = flags.MaxQueueDepth })
	set("queue-wait", func() { cfg.QueueWaitSeconds = flags.QueueWaitSeconds })
}

// serve runs the server until ctx is done. ready, when set, receives the
// bound address once the listener is up.
func serve(ctx context.Context, cfg config.Config, logOut io.Writer, ready func(addr string)) error {
	log, logCloser, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Out:        logOut,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	capability, closeCap, err := buildCapability(ctx, cfg, log)
	if err != nil {
		return err
	}
	closeOnExit := true
	defer func() {
		if !closeOnExit {
			return
		}
		if err := closeCap(); err != nil {
			log.Warn().Err(err).Msg("backend close")
		}
	}()

	coord := inference.New(capability, inference.Config{
		MaxQueueDepth:   cfg.MaxQueueDepth,
		QueueWait:       seconds(cfg.QueueWaitSeconds),
		GenerateTimeout: seconds(cfg.GenerateTimeoutSeconds),
	})
	coord.SetLogger(log.With().Str("component", "inference").Logger())

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSOn(), cfg.CORSOrigins, nil, nil)
	httpapi.SetMetricsEnabled(cfg.MetricsOn())
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           httpapi.NewMux(coord),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().
		Str("addr", ln.Addr().String()).
		Str("backend", cfg.Backend).
		Str("version", version).
		Msg("foundationsd listening")
	if ready != nil {
		ready(ln.Addr().String())
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown: queued requests leave with 503; the running
	// generation is allowed to finish within the timeout.
	log.Info().Msg("shutting down")
	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), seconds(cfg.ShutdownTimeoutSeconds))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	closeOnExit = false
	drainAndClose(shutdownCtx, coord.Wait, closeCap, log)
	return nil
}

// drainAndClose waits for running backend calls, then closes the backend.
// When ctx ends first the backend is left open: a call still in flight may
// be using its resources (the in-process model in particular).
func drainAndClose(ctx context.Context, wait func(), closeCap func() error, log zerolog.Logger) bool {
	waitDone := make(chan struct{})
	go func() {
		wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-ctx.Done():
		log.Warn().Msg("backend call still running at exit; backend left open")
		return false
	}
	if err := closeCap(); err != nil {
		log.Warn().Err(err).Msg("backend close")
	}
	return true
}

// buildCapability constructs the configured backend and its closer.
func buildCapability(ctx context.Context, cfg config.Config, log zerolog.Logger) (backend.Capability, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendEcho:
		return backend.NewEcho(), noop, nil
	case config.BackendLlamaServer:
		return backend.NewLlamaServer(backend.LlamaServerOptions{
			BaseURL: cfg.LlamaServerURL,
			APIKey:  cfg.LlamaServerAPIKey,
		}), noop, nil
	case config.BackendLlama:
		l := backend.NewLlama(backend.LlamaOptions{
			ResolvePath: func() (string, error) { return registry.Resolve(cfg.ModelsDir, cfg.Model) },
			ContextSize: cfg.LlamaCtx,
			Threads:     cfg.LlamaThreads,
			Logger:      log.With().Str("component", "llama").Logger(),
		})
		l.Start(ctx)
		return l, l.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
