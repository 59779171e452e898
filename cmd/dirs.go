package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/eykd/dmearchive/internal/config"
	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/pipeline"
)

// DirsIO handles I/O for the dirs command.
type DirsIO interface {
	pipeline.DirIO
}

// NewDirsCmd creates the dirs subcommand.
func NewDirsCmd(io DirsIO) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "dirs <project-list> <projects-dir> <audit-dir>",
		Short: "Register project directory trees",
		Long: "Reads one project directory per line from <project-list>, registers a PI_Lab and a\n" +
			"Project collection for each and every file below it as a data object. The\n" +
			"dirs.hierarchy and dirs.match configuration restrict which directories are walked.",
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := newPipelineRun(cmd, args[2], opts)
			if err != nil {
				return err
			}
			defer func() { _ = run.Close() }()

			match, err := matchRules(run.cfg.Dirs.Match)
			if err != nil {
				return err
			}
			err = pipeline.RunDirs(cmd.Context(), run.env, io, pipeline.DirOptions{
				Manifest:     args[0],
				ProjectsPath: args[1],
				Hierarchy:    run.cfg.Dirs.Hierarchy,
				Match:        match,
			})
			run.report(cmd, "dirs "+sanitizePath(args[0]))
			if err != nil {
				return fmt.Errorf("directory run failed: %w", err)
			}
			return nil
		},
	}
	addRunFlags(cmd, &opts, "cmm")
	return cmd
}

// matchRules compiles the configured match rules.
func matchRules(rules []config.MatchRule) ([]pipeline.MatchRule, error) {
	out := make([]pipeline.MatchRule, 0, len(rules))
	for _, m := range rules {
		re, err := regexp.Compile(m.Pattern)
		if err != nil {
			return nil, fmt.Errorf("match rule for %q: %w", m.Parent, err)
		}
		r := pipeline.MatchRule{Parent: m.Parent, Pattern: re}
		if m.Type != "" {
			t, err := hierarchy.ParseCollectionType(m.Type)
			if err != nil {
				return nil, fmt.Errorf("match rule for %q: %w", m.Parent, err)
			}
			r.Type = t
		}
		out = append(out, r)
	}
	return out, nil
}

// fileDirsIO implements DirsIO using OS file I/O.
type fileDirsIO struct {
	osFiles
}

func newDefaultDirsIO() *fileDirsIO {
	return &fileDirsIO{}
}
