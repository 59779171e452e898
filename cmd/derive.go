package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/naming"
)

// deriveOutput is the JSON output schema for the derive command.
type deriveOutput struct {
	Convention string          `json:"convention"`
	MetaPath   string          `json:"meta_path"`
	Archive    string          `json:"archive,omitempty"`
	Identity   naming.Identity `json:"identity"`
	Paths      []derivedPath   `json:"paths"`
}

type derivedPath struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// NewDeriveCmd creates the derive subcommand.
func NewDeriveCmd() *cobra.Command {
	var convention string
	cmd := &cobra.Command{
		Use:   "derive <path> [tarball]",
		Short: "Show the identity and archive paths derived from a file path",
		Long: "Applies the naming rules to <path> (a tarball member, project file or staged file)\n" +
			"and optional <tarball> name and prints the identity record, the fields that fell\n" +
			"back to defaults and the archive path of every collection level as JSON.",
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if convention != "" {
				cfg.Convention = convention
			}
			tmpl, err := cfg.Template()
			if err != nil {
				return err
			}
			builder, err := hierarchy.NewBuilder(tmpl)
			if err != nil {
				return err
			}

			src := naming.Source{Path: args[0]}
			if len(args) == 2 {
				src.Archive = args[1]
			}
			if cfg.Convention == "ccrsf" {
				src.Path = naming.MetaPath(src.Path)
			}
			id := newParser(cfg, zap.NewNop()).Derive(src)

			out := deriveOutput{
				Convention: cfg.Convention,
				MetaPath:   src.Path,
				Archive:    src.Archive,
				Identity:   id,
			}
			for _, l := range tmpl.Levels {
				p, err := builder.Path(l.Type, id)
				if err != nil {
					return err
				}
				out.Paths = append(out.Paths, derivedPath{Type: string(l.Type), Path: p})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encoding output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&convention, "convention", "", "naming convention (default from config)")
	return cmd
}
