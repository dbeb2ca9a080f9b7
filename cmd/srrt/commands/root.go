package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"srrt/internal/app"
)

var (
	configPath string
	serverURL  string
	leaseURL   string
	topic      string
	graph      string
	logLevel   string
	appCtx     *app.App
)

func Execute() error {
	root := &cobra.Command{
		Use:          "srrt",
		Short:        "Secure real-time relay transport client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				configPath = filepath.Join(dir, ".srrt", "srrt.toml")
			}
			cfg, err := app.LoadFile(configPath, applyFlags)
			if err != nil {
				return err
			}
			w, err := app.NewWire(cfg)
			if err != nil {
				return err
			}
			appCtx = app.New(w)
			return appCtx.Start()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.srrt/srrt.toml)")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVar(&leaseURL, "lease-url", "", "lease authority URL (default {server}/api/lease)")
	root.PersistentFlags().StringVar(&topic, "topic", "", "topic to subscribe and publish on")
	root.PersistentFlags().StringVar(&graph, "graph", "", "knowledge graph (personal or work)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (DEBUG, INFO, NOTICE, WARNING, ERROR, CRITICAL)")

	root.AddCommand(watchCmd(), sendCmd(), leaseCmd(), sealCmd(), openCmd(), modeCmd())
	err := root.Execute()
	if appCtx != nil {
		appCtx.Stop()
	}
	return err
}

// applyFlags copies the global flags that were set onto cfg.
func applyFlags(cfg *app.Config) {
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if leaseURL != "" {
		cfg.Lease.URL = leaseURL
	}
	if topic != "" {
		cfg.Session.Topic = topic
	}
	if graph != "" {
		cfg.Session.Graph = graph
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
