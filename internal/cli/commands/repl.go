package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/A-SunsetMkt-Forks/pg/internal/cli/output"
	"github.com/A-SunsetMkt-Forks/pg/internal/config"
	"github.com/A-SunsetMkt-Forks/pg/internal/schema"
	"github.com/A-SunsetMkt-Forks/pg/internal/workbench"
)

const (
	promptMain = "pg> "
	promptMore = "...> "
)

// NewREPLCommand creates the interactive shell command.
func NewREPLCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "repl [profile]",
		Aliases: []string{"shell"},
		Short:   "Start an interactive SQL shell",
		Long: `Start an interactive shell over the workbench.

Statements end with a semicolon and may span lines. Dot commands manage the
session, the schema graph and the query log; type .help for the list.`,
		Example: `  pg repl demo
  pg repl -p warehouse`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var profile string
			if len(args) > 0 {
				profile = args[0]
			} else {
				profile = config.FromContext(cmd.Context()).Profile
			}
			return runREPL(cmd, profile, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Result format: table, json, yaml, csv, md")
	return cmd
}

func runREPL(cmd *cobra.Command, profile, format string) error {
	r := output.FromContext(cmd.Context())
	format, err := resultFormat(r, format)
	if err != nil {
		return err
	}

	wb, err := openWorkbench(cmd)
	if err != nil {
		return err
	}
	defer closeWorkbench(cmd, wb)

	sh := &shell{wb: wb, r: r, format: format}
	if profile != "" {
		sh.exec(cmd.Context(), ".connect "+profile)
	}

	statePath := config.FromContext(cmd.Context()).StatePath
	var historyFile string
	if statePath != ":memory:" {
		historyFile = filepath.Join(filepath.Dir(statePath), "repl_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptMain,
		HistoryFile:     historyFile,
		AutoComplete:    sh.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          r.Writer(),
		Stderr:          r.ErrWriter(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	r.Printf("pg shell (state: %s)\n", statePath)
	r.Println("Type .help for commands, .quit to exit")
	r.Println()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			sh.buf.Reset()
			rl.SetPrompt(promptMain)
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if sh.exec(cmd.Context(), line) {
			return nil
		}
		if sh.buf.Len() > 0 {
			rl.SetPrompt(promptMore)
		} else {
			rl.SetPrompt(promptMain)
		}
	}
}

// shell interprets REPL input against a workbench.
type shell struct {
	wb     *workbench.Workbench
	r      *output.Renderer
	format string
	buf    strings.Builder
}

// exec handles one input line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if s.buf.Len() == 0 && strings.HasPrefix(trimmed, ".") {
		return s.dot(ctx, trimmed)
	}

	s.buf.WriteString(line)
	if !strings.HasSuffix(trimmed, ";") {
		s.buf.WriteString("\n")
		return false
	}
	sqlText := s.buf.String()
	s.buf.Reset()
	s.run(ctx, sqlText)
	return false
}

// run executes one statement. An interrupt cancels it.
func (s *shell) run(ctx context.Context, sqlText string) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	entry, res, err := runStatement(ctx, s.wb, sqlText)
	if err != nil {
		s.fail(err)
		return
	}
	if err := renderResult(s.r.Writer(), res, s.format); err != nil {
		s.fail(err)
		return
	}
	s.r.Println(s.r.Styles().Muted.Render(fmt.Sprintf("query #%d in %s", entry.ID, entry.Duration())))
}

func (s *shell) fail(err error) {
	s.r.Warn("Error: %v", err)
}

func (s *shell) dot(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true

	case ".help":
		s.r.Println(replHelp)

	case ".connect":
		if arg == "" {
			s.r.Warn("Usage: .connect <profile>")
			return false
		}
		if err := s.wb.Connect(ctx, arg); err != nil {
			s.fail(err)
			return false
		}
		s.r.Success("connected to %s", arg)

	case ".disconnect":
		if err := s.wb.Disconnect(ctx); err != nil {
			s.fail(err)
			return false
		}
		s.r.Success("disconnected")

	case ".reset":
		if err := s.wb.Reset(ctx); err != nil {
			s.fail(err)
		}

	case ".status":
		info := s.wb.CurrentSession()
		if done, err := s.r.Structured(info); done {
			if err != nil {
				s.fail(err)
			}
			return false
		}
		msg := s.r.SessionBadge(info.Status)
		if info.ProfileName != "" {
			msg += " " + info.ProfileName
		}
		msg += fmt.Sprintf(" (generation %d)", info.Generation)
		if info.LastError != "" {
			msg += "\n" + s.r.Styles().Error.Render(info.LastError)
		}
		s.r.Println(msg)

	case ".profiles":
		profiles, err := s.wb.ListProfiles(ctx)
		if err != nil {
			s.fail(err)
			return false
		}
		for _, p := range profiles {
			mark := "  "
			if p.Active {
				mark = "* "
			}
			s.r.Printf("%s%s (%s)\n", mark, p.Name, p.Type)
		}

	case ".schema", ".tables":
		g, err := s.wb.SchemaGraph(ctx)
		if err != nil {
			s.fail(err)
			return false
		}
		if parts[0] == ".tables" {
			for _, name := range g.TableNames() {
				s.r.Println(name)
			}
			return false
		}
		f, err := schema.ParseFormat(arg)
		if err != nil {
			s.fail(err)
			return false
		}
		if err := schema.Render(s.r.Writer(), g, f); err != nil {
			s.fail(err)
		}

	case ".refresh":
		s.wb.RefreshSchema()

	case ".log":
		limit := 20
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil {
				s.r.Warn("Usage: .log [limit]")
				return false
			}
			limit = n
		}
		if err := renderLog(s.r, filterLog(s.wb.QueryLog(), "", limit)); err != nil {
			s.fail(err)
		}

	case ".bg":
		sqlText := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
		tk, err := s.wb.SubmitQuery(sqlText)
		if err != nil {
			s.fail(err)
			return false
		}
		s.r.Printf("submitted query #%d\n", tk.ID())

	case ".cancel":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			s.r.Warn("Usage: .cancel <query id>")
			return false
		}
		if err := s.wb.CancelQuery(id); err != nil {
			s.fail(err)
		}

	default:
		s.r.Warn("Unknown command: %s (type .help for commands)", parts[0])
	}
	return false
}

const replHelp = `
Commands:
  .connect <profile>  Connect, replacing the current session
  .disconnect         Close the session
  .reset              Clear a failed session
  .status             Show the session
  .profiles           List profiles
  .tables             List tables of the session
  .schema [format]    Print the schema graph (table, json, yaml, mermaid)
  .refresh            Rebuild the schema graph on next use
  .log [limit]        Show recent queries
  .bg <sql>           Submit a statement without waiting
  .cancel <id>        Cancel a queued or running statement
  .help               Show this help
  .quit / .exit       Leave the shell

Statements end with a semicolon and may span lines.
Ctrl-C cancels the running statement.`

// completer offers dot commands, profile names and the tables of the cached
// schema graph.
func (s *shell) completer() *readline.PrefixCompleter {
	profiles := readline.PcItemDynamic(func(string) []string {
		views, err := s.wb.ListProfiles(context.Background())
		if err != nil {
			return nil
		}
		names := make([]string, 0, len(views))
		for _, v := range views {
			names = append(names, v.Name)
		}
		return names
	})
	tables := readline.PcItemDynamic(func(string) []string {
		if g := s.wb.SchemaView().Graph; g != nil {
			return g.TableNames()
		}
		return nil
	})
	return readline.NewPrefixCompleter(
		readline.PcItem(".connect", profiles),
		readline.PcItem(".disconnect"),
		readline.PcItem(".reset"),
		readline.PcItem(".status"),
		readline.PcItem(".profiles"),
		readline.PcItem(".tables"),
		readline.PcItem(".schema",
			readline.PcItem("table"), readline.PcItem("json"),
			readline.PcItem("yaml"), readline.PcItem("mermaid")),
		readline.PcItem(".refresh"),
		readline.PcItem(".log"),
		readline.PcItem(".bg"),
		readline.PcItem(".cancel"),
		readline.PcItem(".help"),
		readline.PcItem(".quit"),
		readline.PcItem("SELECT", readline.PcItem("*", readline.PcItem("FROM", tables))),
	)
}
