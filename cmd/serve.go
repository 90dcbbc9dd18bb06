package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/api"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/config"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/state"
	"github.com/cameroncuttingedge/tic_tac_toe_lobby/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
	)
	v := config.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lobby server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}

			closeLog, err := initializeLogger(cfg.Log, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
			}
			return runServer(ctx, cfg, ln)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a TOML, YAML or JSON config file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("addr", "", "listen address, overrides server.addr")
	flags.String("log-level", "", "log level, overrides log.level")
	_ = v.BindPFlag(config.KeyServerAddr, flags.Lookup("addr"))
	_ = v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))

	return cmd
}

// runServer serves on ln until ctx is done, then drains HTTP requests and drops websocket
// connections within cfg.Server.ShutdownTimeout.
func runServer(ctx context.Context, cfg config.Config, ln net.Listener) error {
	appState := state.NewAppState()
	hub := websocket.NewHub(appState, cfg.WebSocket)

	srv := &http.Server{
		Handler:      api.NewRouter(appState, hub, cfg.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("Starting App")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		hub.Close()
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	stats := appState.Stats()
	log.Info().Int("sessions", stats.Sessions).Int("lobbies", stats.Lobbies).Msg("Server stopped")
	return nil
}
