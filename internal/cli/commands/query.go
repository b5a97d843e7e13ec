package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/A-SunsetMkt-Forks/pg/internal/cli/output"
	"github.com/A-SunsetMkt-Forks/pg/internal/workbench"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a statement against a profile",
		Long: `Connect to a profile, run one SQL text and print the result.

The statement is recorded in the query log. Interrupting the command cancels
the statement on the engine.`,
		Example: `  # Run a statement against the demo profile
  pg query -p demo "SELECT 1"

  # Read SQL from a file
  pg query -p demo -i report.sql

  # Read SQL from stdin and print CSV
  cat report.sql | pg query -p demo -i - --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: table, json, yaml, csv, md (default from --output)")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file, - for stdin")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return resultFormats, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	sqlText, err := readSQL(cmd.InOrStdin(), args, opts.Input)
	if err != nil {
		return err
	}
	format, err := resultFormat(output.FromContext(cmd.Context()), opts.Format)
	if err != nil {
		return err
	}
	profile, err := profileName(cmd, nil)
	if err != nil {
		return err
	}

	return withConnection(cmd, profile, func(wb *workbench.Workbench) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		entry, res, err := runStatement(ctx, wb, sqlText)
		if err != nil {
			return err
		}
		r := output.FromContext(cmd.Context())
		if err := renderResult(r.Writer(), res, format); err != nil {
			return err
		}
		if format == "table" {
			r.Println(r.Styles().Muted.Render(fmt.Sprintf("query #%d in %s", entry.ID, entry.Duration())))
		}
		return nil
	})
}

// runStatement submits sqlText and waits for it. When ctx ends first the
// statement is cancelled and its final outcome returned.
func runStatement(ctx context.Context, wb *workbench.Workbench, sqlText string) (*core.QueryLogEntry, *core.Result, error) {
	tk, err := wb.SubmitQuery(sqlText)
	if err != nil {
		return nil, nil, err
	}
	res, err := tk.Wait(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		_ = wb.CancelQuery(tk.ID())
		res, err = tk.Wait(context.WithoutCancel(ctx))
	}
	return tk.Entry(), res, err
}

func readSQL(stdin io.Reader, args []string, input string) (string, error) {
	var text string
	switch input {
	case "":
		text = strings.Join(args, " ")
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(b)
	default:
		b, err := os.ReadFile(input)
		if err != nil {
			return "", fmt.Errorf("failed to read SQL file: %w", err)
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no SQL given; pass it as an argument or with --input")
	}
	return text, nil
}

// resultFormat resolves --format against the global output mode.
func resultFormat(r *output.Renderer, flag string) (string, error) {
	if flag != "" {
		if !slices.Contains(resultFormats, flag) {
			return "", fmt.Errorf("unknown format %q (want one of %s)", flag, strings.Join(resultFormats, ", "))
		}
		return flag, nil
	}
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return "json", nil
	case output.ModeYAML:
		return "yaml", nil
	}
	return "table", nil
}
