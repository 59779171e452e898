package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eykd/dmearchive/internal/pipeline"
)

// StageIO handles I/O for the stage command.
type StageIO interface {
	pipeline.StageIO
}

// NewStageCmd creates the stage subcommand.
func NewStageCmd(io StageIO) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "stage <base-dir> <pi-dir-list>",
		Short: "Stage SCAF clinical run files into Patient and Run folders",
		Long: "Walks every PI directory listed in <base-dir>/<pi-dir-list>, extracts Seq*.tar\n" +
			"tarballs into <base-dir>/work and copies fastq, lane summary and bam files into\n" +
			"<base-dir>/staged/<pi>/Patient_<mrn>[/Run_<flowcell>]. Nothing is registered.",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := args[0]
			work := filepath.Join(base, "work")
			run, err := newPipelineRun(cmd, work, opts)
			if err != nil {
				return err
			}
			defer func() { _ = run.Close() }()

			err = pipeline.RunStage(cmd.Context(), run.env, io, pipeline.StageOptions{
				BaseDir:  base,
				Manifest: args[1],
				WorkDir:  work,
			})
			run.report(cmd, "stage "+sanitizePath(base))
			if err != nil {
				return fmt.Errorf("staging run failed: %w", err)
			}
			return nil
		},
	}
	addRunFlags(cmd, &opts, "scaf")
	return cmd
}

// fileStageIO implements StageIO using OS file I/O.
type fileStageIO struct {
	tarFiles
}

func newDefaultStageIO() *fileStageIO {
	return &fileStageIO{}
}
