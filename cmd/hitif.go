package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/eykd/dmearchive/internal/metadata"
	"github.com/eykd/dmearchive/internal/pipeline"
	"github.com/eykd/dmearchive/internal/tarlist"
)

// HiTIFIO handles I/O for the hitif command.
type HiTIFIO interface {
	pipeline.HiTIFIO
}

// NewHiTIFCmd creates the hitif subcommand.
func NewHiTIFCmd(io HiTIFIO) *cobra.Command {
	var opts runOptions
	var minAge time.Duration
	cmd := &cobra.Command{
		Use:   "hitif <users-file> <archive-database>",
		Short: "Archive HiTIF imaging measurements as gzipped tarballs",
		Long: "Reads PIs and users from the <users-file> CSV and registers PI_, User_ and Exp_\n" +
			"collections under /HiTIF_Archive. Every measurement directory that has not changed\n" +
			"for --min-age is packed into <name>.tar.gz and registered below its experiment.\n" +
			"<archive-database> holds the ledgers of earlier runs and the audit files.",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db := args[1]
			fi, err := os.Stat(db)
			if err != nil {
				return fmt.Errorf("archive database: %w", err)
			}
			if !fi.IsDir() {
				return fmt.Errorf("archive database %s is not a directory", sanitizePath(db))
			}
			run, err := newPipelineRun(cmd, db, opts)
			if err != nil {
				return err
			}
			defer func() { _ = run.Close() }()

			err = pipeline.RunHiTIF(cmd.Context(), run.env, io, pipeline.HiTIFOptions{
				UsersFile: args[0],
				Database:  db,
				MinAge:    minAge,
			})
			run.report(cmd, "hitif "+sanitizePath(args[0]))
			if err != nil {
				return fmt.Errorf("hitif run failed: %w", err)
			}
			return nil
		},
	}
	addRunFlags(cmd, &opts, "hitif")
	cmd.Flags().DurationVar(&minAge, "min-age", pipeline.DefaultMinAge, "archive only directories unmodified for at least this long")
	return cmd
}

// fileHiTIFIO implements HiTIFIO using OS file I/O.
type fileHiTIFIO struct {
	osFiles
}

func newDefaultHiTIFIO() *fileHiTIFIO {
	return &fileHiTIFIO{}
}

func (fileHiTIFIO) ReadUsers(path string) (*metadata.Table, error) {
	return metadata.ReadTableFile(path)
}

func (fileHiTIFIO) CreateTarball(ctx context.Context, dst, srcDir string) (int64, error) {
	return tarlist.Create(ctx, dst, srcDir)
}
