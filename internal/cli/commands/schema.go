package commands

import (
	"github.com/spf13/cobra"

	"github.com/A-SunsetMkt-Forks/pg/internal/cli/output"
	"github.com/A-SunsetMkt-Forks/pg/internal/schema"
	"github.com/A-SunsetMkt-Forks/pg/internal/workbench"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the schema graph of a profile",
		Long: `Connect to a profile, introspect its tables, columns and foreign keys,
and print the resulting graph.

The mermaid format emits an erDiagram suitable for Markdown renderers.`,
		Example: `  pg schema -p demo
  pg schema -p demo --format mermaid > schema.mmd`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := output.FromContext(cmd.Context())
			if format == "" {
				format = schemaFormatFor(r.EffectiveMode())
			}
			f, err := schema.ParseFormat(format)
			if err != nil {
				return err
			}
			profile, err := profileName(cmd, nil)
			if err != nil {
				return err
			}
			return withConnection(cmd, profile, func(wb *workbench.Workbench) error {
				g, err := wb.SchemaGraph(cmd.Context())
				if err != nil {
					return err
				}
				return schema.Render(r.Writer(), g, f)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: table, json, yaml, mermaid (default from --output)")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json", "yaml", "mermaid"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func schemaFormatFor(m output.Mode) string {
	switch m {
	case output.ModeJSON:
		return "json"
	case output.ModeYAML:
		return "yaml"
	case output.ModeMermaid:
		return "mermaid"
	}
	return "table"
}
