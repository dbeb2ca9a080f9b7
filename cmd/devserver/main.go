package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"srrt/internal/conn"
	"srrt/internal/devserver"
	"srrt/internal/log"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr     string
		cfg      devserver.Config
		logLevel string
		logFile  string
	)
	cmd := &cobra.Command{
		Use:          "devserver",
		Short:        "In-memory lease authority, topic hub and relay for local development",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := log.New(logFile, logLevel, false)
			if err != nil {
				return err
			}
			defer backend.Close()
			logger := backend.GetLogger("devserver")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              addr,
				Handler:           devserver.New(cfg, logger).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			logger.Noticef("listening on %s", addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Notice("stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&cfg.Token, "token", conn.DefaultToken, "required connection token, empty accepts any")
	cmd.Flags().StringVar(&cfg.RelayPrefix, "relay-prefix", "/radio", "path prefix of the relay")
	cmd.Flags().DurationVar(&cfg.LeaseTTL, "ttl", 5*time.Minute, "lease lifetime")
	cmd.Flags().BoolVar(&cfg.WrapLeases, "wrap", false, "return leases wrapped in {\"lease\": ...}")
	cmd.Flags().BoolVar(&cfg.PinLeases, "pin", false, "pin a fingerprint on issued leases")
	cmd.Flags().StringVar(&logLevel, "log-level", "NOTICE", "log level")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log file, stdout when empty")
	return cmd
}
