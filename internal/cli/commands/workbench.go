package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/A-SunsetMkt-Forks/pg/internal/config"
	"github.com/A-SunsetMkt-Forks/pg/internal/workbench"
)

// closeTimeout bounds the disconnect and log flush on exit.
const closeTimeout = 5 * time.Second

// openWorkbench opens the workbench described by the command's config.
func openWorkbench(cmd *cobra.Command) (*workbench.Workbench, error) {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	return workbench.Open(ctx, workbench.Options{
		StatePath:     cfg.StatePath,
		Logger:        config.GetLogger(ctx),
		LogCap:        cfg.LogCap,
		MaxRetries:    cfg.MaxRetries,
		BackoffBase:   cfg.BackoffBase,
		MaxResultRows: cfg.MaxResultRows,
		MessageLimit:  cfg.MessageLimit,
	})
}

// closeWorkbench closes wb, logging rather than returning failures so the
// command's own error wins.
func closeWorkbench(cmd *cobra.Command, wb *workbench.Workbench) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout)
	defer cancel()
	if err := wb.Close(ctx); err != nil {
		config.GetLogger(cmd.Context()).Warn("failed to close workbench", slog.String("error", err.Error()))
	}
}

// profileName returns the profile from the argument, the --profile flag or
// PG_PROFILE, in that order.
func profileName(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if name := config.FromContext(cmd.Context()).Profile; name != "" {
		return name, nil
	}
	return "", errors.New("no profile selected; pass --profile or set PG_PROFILE")
}

// withConnection opens the workbench, connects the selected profile and runs
// fn against it.
func withConnection(cmd *cobra.Command, profile string, fn func(wb *workbench.Workbench) error) error {
	wb, err := openWorkbench(cmd)
	if err != nil {
		return err
	}
	defer closeWorkbench(cmd, wb)

	if err := wb.Connect(cmd.Context(), profile); err != nil {
		return err
	}
	return fn(wb)
}
