package commands

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/A-SunsetMkt-Forks/pg/internal/config"
	"github.com/A-SunsetMkt-Forks/pg/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workbench over HTTP",
		Long: `Start the HTTP API and event stream of the workbench.

With --watch the config file is watched and log_cap is applied on change.`,
		Example: `  pg serve
  pg serve --addr 127.0.0.1:9000 -p demo --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			logger := config.GetLogger(cmd.Context())
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("watch") {
				watch = cfg.Server.WatchConfig
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			wb, err := openWorkbench(cmd)
			if err != nil {
				return err
			}
			defer closeWorkbench(cmd, wb)

			if cfg.Profile != "" {
				if _, err := wb.ConnectAsync(ctx, cfg.Profile); err != nil {
					return err
				}
			}

			srvCfg := server.Config{
				Workbench: wb,
				Addr:      addr,
				Logger:    logger,
			}
			if watch {
				if cfg.File == "" {
					logger.Warn("--watch given but no config file is in use")
				} else {
					srvCfg.ConfigFile = cfg.File
					srvCfg.Reload = func() error {
						next, err := config.Load(cfg.File, cmd.Root().PersistentFlags())
						if err != nil {
							return err
						}
						wb.SetLogCap(next.LogCap)
						logger.Debug("applied config", slog.Int("log_cap", next.LogCap))
						return nil
					}
				}
			}
			return server.New(srvCfg).Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultAddr, "Listen address")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the config file on change")
	return cmd
}
