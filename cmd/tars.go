package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eykd/dmearchive/internal/pipeline"
)

// TarsIO handles I/O for the tars command.
type TarsIO interface {
	pipeline.TarIO
}

// NewTarsCmd creates the tars subcommand.
func NewTarsCmd(io TarsIO) *cobra.Command {
	var (
		opts         runOptions
		metadataOnly bool
	)
	cmd := &cobra.Command{
		Use:   "tars <tarfile-list> <tarfile-dir> <extract-dir> <audit-dir>",
		Short: "Register the fastq and lane summary files of sequencing run tarballs",
		Long: "Reads one tarball name per line from <tarfile-list>, lists each tarball found in\n" +
			"<tarfile-dir>, extracts registrable members into <extract-dir> one at a time and\n" +
			"registers them. Audit files, metadata documents and the run log go to <audit-dir>.",
		Args:         cobra.ExactArgs(4),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := newPipelineRun(cmd, args[3], opts)
			if err != nil {
				return err
			}
			defer func() { _ = run.Close() }()

			exclude := run.cfg.Tars.Exclude
			if exclude == nil {
				exclude = pipeline.DefaultExclude
			}
			err = pipeline.RunTars(cmd.Context(), run.env, io, pipeline.TarOptions{
				Manifest:     args[0],
				SourceDir:    args[1],
				ExtractDir:   args[2],
				Exclude:      exclude,
				MetadataOnly: metadataOnly,
			})
			run.report(cmd, "tars "+sanitizePath(args[0]))
			if err != nil {
				return fmt.Errorf("tar manifest run failed: %w", err)
			}
			return nil
		},
	}
	addRunFlags(cmd, &opts, "ccrsf")
	cmd.Flags().BoolVar(&metadataOnly, "metadata-only", false, "refresh Flowcell collection metadata without registering files")
	return cmd
}

// fileTarsIO implements TarsIO using OS file I/O.
type fileTarsIO struct {
	tarFiles
}

func newDefaultTarsIO() *fileTarsIO {
	return &fileTarsIO{}
}
