package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/A-SunsetMkt-Forks/pg/internal/cli/output"
	"github.com/A-SunsetMkt-Forks/pg/internal/workbench"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// NewLogCommand creates the log command.
func NewLogCommand() *cobra.Command {
	var (
		limit  int
		status string
	)
	cmd := &cobra.Command{
		Use:     "log",
		Aliases: []string{"history"},
		Short:   "Show the query log, newest first",
		Example: `  pg log --limit 20
  pg log --status failed -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			want := core.QueryStatus(strings.ToLower(status))
			switch want {
			case "", core.QueryQueued, core.QueryRunning, core.QuerySucceeded, core.QueryFailed, core.QueryCancelled:
			default:
				return fmt.Errorf("unknown status %q", status)
			}
			return withWorkbench(cmd, func(wb *workbench.Workbench) error {
				entries := filterLog(wb.QueryLog(), want, limit)
				return renderLog(output.FromContext(cmd.Context()), entries)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Show at most this many entries, 0 for all")
	cmd.Flags().StringVar(&status, "status", "", "Only show entries with this status")
	return cmd
}

// filterLog returns up to limit entries matching status, newest first.
func filterLog(log []*core.QueryLogEntry, status core.QueryStatus, limit int) []*core.QueryLogEntry {
	out := make([]*core.QueryLogEntry, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		if status != "" && log[i].Status != status {
			continue
		}
		out = append(out, log[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func renderLog(r *output.Renderer, entries []*core.QueryLogEntry) error {
	if done, err := r.Structured(entries); done {
		return err
	}
	if len(entries) == 0 {
		r.Println(r.Styles().Muted.Render("The query log is empty."))
		return nil
	}
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		dur := ""
		if d := e.Duration(); d > 0 {
			dur = d.String()
		}
		rows = append(rows, table.Row{
			e.ID,
			r.QueryBadge(e.Status),
			e.ProfileName,
			e.SubmittedAt.Local().Format("2006-01-02 15:04:05"),
			dur,
			core.Truncate(e.Summary(), 48),
			core.Truncate(oneLine(e.SQL), 60),
		})
	}
	r.Table(table.Row{"ID", "Status", "Profile", "Submitted", "Duration", "Summary", "SQL"}, rows)
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
