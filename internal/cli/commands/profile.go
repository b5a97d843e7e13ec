package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/A-SunsetMkt-Forks/pg/internal/cli/output"
	"github.com/A-SunsetMkt-Forks/pg/internal/registry"
	"github.com/A-SunsetMkt-Forks/pg/internal/workbench"
	"github.com/A-SunsetMkt-Forks/pg/pkg/adapter"
	"github.com/A-SunsetMkt-Forks/pg/pkg/core"
)

// NewProfileCommand creates the profile command and its subcommands.
func NewProfileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile",
		Aliases: []string{"profiles"},
		Short:   "Manage database profiles",
		Long: `Create, edit, inspect and remove named database profiles.

A profile names an engine adapter (sqlite, duckdb, postgres, mysql,
sqlserver) and the credentials to reach it.`,
	}
	cmd.AddCommand(newProfileListCommand())
	cmd.AddCommand(newProfileCreateCommand())
	cmd.AddCommand(newProfileEditCommand())
	cmd.AddCommand(newProfileRemoveCommand())
	cmd.AddCommand(newProfileShowCommand())
	return cmd
}

func withWorkbench(cmd *cobra.Command, fn func(wb *workbench.Workbench) error) error {
	wb, err := openWorkbench(cmd)
	if err != nil {
		return err
	}
	defer closeWorkbench(cmd, wb)
	return fn(wb)
}

func newProfileListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withWorkbench(cmd, func(wb *workbench.Workbench) error {
				profiles, err := wb.ListProfiles(cmd.Context())
				if err != nil {
					return err
				}
				r := output.FromContext(cmd.Context())
				if done, err := r.Structured(profiles); done {
					return err
				}
				if len(profiles) == 0 {
					r.Println(r.Styles().Muted.Render("No profiles yet. Create one with 'pg profile create'."))
					return nil
				}
				rows := make([]table.Row, 0, len(profiles))
				for _, p := range profiles {
					state := ""
					if p.Active {
						state = r.SessionBadge(core.SessionConnected)
					}
					rows = append(rows, table.Row{p.Name, p.Type, p.Description, state, p.UpdatedAt.Local().Format("2006-01-02 15:04")})
				}
				r.Table(table.Row{"Name", "Type", "Description", "Session", "Updated"}, rows)
				return nil
			})
		},
	}
}

// credentialFlags are the flags that build a credentials blob.
type credentialFlags struct {
	cfg     core.AdapterConfig
	params  map[string]string
	rawJSON string
}

func (c *credentialFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&c.cfg.Type, "type", "", "Adapter type: "+strings.Join(adapter.ListAdapters(), ", "))
	fs.StringVar(&c.cfg.Path, "path", "", "Database file (sqlite, duckdb)")
	fs.StringVar(&c.cfg.Host, "host", "", "Server host")
	fs.IntVar(&c.cfg.Port, "port", 0, "Server port")
	fs.StringVar(&c.cfg.Database, "database", "", "Database name")
	fs.StringVar(&c.cfg.Username, "username", "", "User name")
	fs.StringVar(&c.cfg.Password, "password", "", "Password")
	fs.StringVar(&c.cfg.Schema, "schema", "", "Default schema")
	fs.StringToStringVar(&c.cfg.Options, "option", nil, "Driver option key=value (repeatable)")
	fs.StringToStringVar(&c.params, "param", nil, "Adapter parameter key=value (repeatable)")
	fs.StringVar(&c.rawJSON, "credentials-json", "", "Full credentials as a JSON object; excludes the other credential flags")
}

var credentialFlagNames = []string{"type", "path", "host", "port", "database", "username", "password", "schema", "option", "param"}

func (c *credentialFlags) changed(fs *pflag.FlagSet) bool {
	for _, name := range credentialFlagNames {
		if fs.Changed(name) {
			return true
		}
	}
	return false
}

// merge applies the explicitly set flags onto base.
func (c *credentialFlags) merge(fs *pflag.FlagSet, base core.AdapterConfig) core.AdapterConfig {
	out := base
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("type", func() { out.Type = c.cfg.Type })
	set("path", func() { out.Path = c.cfg.Path })
	set("host", func() { out.Host = c.cfg.Host })
	set("port", func() { out.Port = c.cfg.Port })
	set("database", func() { out.Database = c.cfg.Database })
	set("username", func() { out.Username = c.cfg.Username })
	set("password", func() { out.Password = c.cfg.Password })
	set("schema", func() { out.Schema = c.cfg.Schema })
	set("option", func() {
		opts := make(map[string]string, len(base.Options)+len(c.cfg.Options))
		for k, v := range base.Options {
			opts[k] = v
		}
		for k, v := range c.cfg.Options {
			opts[k] = v
		}
		out.Options = opts
	})
	set("param", func() {
		params := make(map[string]any, len(base.Params)+len(c.params))
		for k, v := range base.Params {
			params[k] = v
		}
		for k, v := range c.params {
			params[k] = v
		}
		out.Params = params
	})
	return out
}

// blob builds the credentials from flags, starting from base when editing.
func (c *credentialFlags) blob(fs *pflag.FlagSet, base []byte) ([]byte, error) {
	if c.rawJSON != "" {
		if c.changed(fs) {
			return nil, errors.New("--credentials-json cannot be combined with other credential flags")
		}
		return []byte(c.rawJSON), nil
	}
	var cfg core.AdapterConfig
	if base != nil {
		decoded, err := adapter.DecodeCredentials(base)
		if err != nil {
			return nil, fmt.Errorf("stored credentials are unreadable, replace them with --credentials-json: %w", err)
		}
		cfg = decoded
	}
	return adapter.EncodeCredentials(c.merge(fs, cfg))
}

func newProfileCreateCommand() *cobra.Command {
	var (
		description string
		creds       credentialFlags
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a profile",
		Example: `  pg profile create demo --type sqlite --path ./demo.db
  pg profile create warehouse --type postgres --host db.internal --database analytics --username ro
  pg profile create lake --type duckdb --path lake.duckdb --param extensions=httpfs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := creds.blob(cmd.Flags(), nil)
			if err != nil {
				return err
			}
			return withWorkbench(cmd, func(wb *workbench.Workbench) error {
				p, err := wb.CreateProfile(cmd.Context(), registry.ProfileInput{
					Name:        args[0],
					Description: description,
					Credentials: blob,
				})
				if err != nil {
					return err
				}
				r := output.FromContext(cmd.Context())
				if done, err := r.Structured(p); done {
					return err
				}
				r.Success("created profile %s (%s)", p.Name, p.Type)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Free-form description")
	creds.register(cmd.Flags())
	return cmd
}

func newProfileEditCommand() *cobra.Command {
	var (
		description string
		creds       credentialFlags
	)
	cmd := &cobra.Command{
		Use:   "edit <name>",
		Short: "Edit a profile's description or credentials",
		Long: `Edit a profile. Only the flags given are changed; the name is immutable.
Edits to the profile of an active session apply on the next connect.`,
		Example: `  pg profile edit demo --description "scratch db"
  pg profile edit warehouse --password "$NEW_PASSWORD"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			return withWorkbench(cmd, func(wb *workbench.Workbench) error {
				var patch core.ProfilePatch
				if fs.Changed("description") {
					patch.Description = &description
				}
				if creds.rawJSON != "" || creds.changed(fs) {
					current, err := wb.GetProfile(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					blob, err := creds.blob(fs, current.Credentials)
					if err != nil {
						return err
					}
					patch.Credentials = blob
				}
				if patch.Empty() {
					return errors.New("nothing to change; pass --description or credential flags")
				}
				p, err := wb.EditProfile(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}
				r := output.FromContext(cmd.Context())
				if done, err := r.Structured(p); done {
					return err
				}
				r.Success("updated profile %s", p.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Free-form description")
	creds.register(cmd.Flags())
	return cmd
}

func newProfileRemoveCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkbench(cmd, func(wb *workbench.Workbench) error {
				if err := wb.RemoveProfile(cmd.Context(), args[0], workbench.RemoveOptions{Force: force}); err != nil {
					return err
				}
				output.FromContext(cmd.Context()).Success("removed profile %s", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Disconnect the session first if it uses the profile")
	return cmd
}

// profileDetail is the shown form of a profile. The password is masked.
type profileDetail struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Credentials core.AdapterConfig `json:"credentials" yaml:"credentials"`
	CreatedAt   string             `json:"created_at" yaml:"created_at"`
	UpdatedAt   string             `json:"updated_at" yaml:"updated_at"`
}

func newProfileShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a profile with its credentials masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkbench(cmd, func(wb *workbench.Workbench) error {
				p, err := wb.GetProfile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				cfg, err := adapter.DecodeCredentials(p.Credentials)
				if err != nil {
					return core.WrapError(core.KindInvalidProfile, p.Name, err, "stored credentials are unreadable")
				}
				if cfg.Password != "" {
					cfg.Password = "********"
				}
				d := profileDetail{
					Name:        p.Name,
					Description: p.Description,
					Credentials: cfg,
					CreatedAt:   p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
					UpdatedAt:   p.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
				}

				r := output.FromContext(cmd.Context())
				if done, err := r.Structured(d); done {
					return err
				}
				r.Header(1, p.Name)
				if p.Description != "" {
					r.Println(r.Styles().Muted.Render(p.Description))
				}
				rows := []table.Row{{"type", cfg.Type}}
				for _, kv := range []struct{ k, v string }{
					{"path", cfg.Path}, {"host", cfg.Host}, {"database", cfg.Database},
					{"username", cfg.Username}, {"password", cfg.Password}, {"schema", cfg.Schema},
				} {
					if kv.v != "" {
						rows = append(rows, table.Row{kv.k, kv.v})
					}
				}
				if cfg.Port != 0 {
					rows = append(rows, table.Row{"port", cfg.Port})
				}
				for k, v := range cfg.Options {
					rows = append(rows, table.Row{"option " + k, v})
				}
				for k, v := range cfg.Params {
					rows = append(rows, table.Row{"param " + k, fmt.Sprint(v)})
				}
				r.Table(table.Row{"Field", "Value"}, rows)
				return nil
			})
		},
	}
}
