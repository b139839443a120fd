package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/oracle/internal/config"
	"github.com/harun/oracle/internal/logger"
	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/agent"
	"github.com/harun/oracle/pkg/gateway"
	"github.com/harun/oracle/pkg/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server",
	Long: `Start the websocket chat server. Every connection gets its own session
with its own backends and permit pool. Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	tracer, err := tracing.Setup(cmd.Context(), cfg.TracingConfig())
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush spans")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers := &agent.ProviderFactory{Credentials: cfg.Credentials.Agent()}
	return serve(ctx, cfg, providers, log.GetZerolog(), nil)
}

// serve runs the server until ctx is done, then shuts it down within
// cfg.Server.ShutdownTimeout. ready, if set, receives the bound address.
func serve(ctx context.Context, cfg *config.Config, providers agent.ProviderCreator, log zerolog.Logger, ready func(addr string)) error {
	sessions, err := session.NewManager(cfg.SessionConfig(providers, log))
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	server, err := gateway.NewServer(cfg.GatewayConfig(sessions, log))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info().
		Str("addr", server.Addr()).
		Str("path", cfg.Server.Path).
		Int("backends", len(cfg.Backends)).
		Msg("Oracle server listening")
	if ready != nil {
		ready(server.Addr())
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}
