package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eykd/dmearchive/internal/dme"
)

// StatusReader reads captured registration client output.
type StatusReader interface {
	ReadOutput(path string, stdin io.Reader) ([]byte, error)
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd(reader StatusReader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [output-file]",
		Short: "Decode captured registration client output",
		Long: "Parses the output of a registration command, read from [output-file] or stdin,\n" +
			"and prints the outcome. Exits non-zero when the registration failed.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			data, err := reader.ReadOutput(path, cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading output: %w", err)
			}
			conf, err := dme.ParseResponse(string(data))
			if err != nil {
				var regErr *dme.RegistrationError
				if errors.As(err, &regErr) {
					fmt.Fprintf(cmd.OutOrStdout(), "FAILED: %s (retryable: %t)\n", sanitizePath(regErr.Cause), regErr.Retryable)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", conf.Outcome, sanitizePath(conf.Message))
			return nil
		},
	}
	return cmd
}

// fileStatusReader implements StatusReader using OS file I/O.
type fileStatusReader struct{}

func newDefaultStatusReader() *fileStatusReader {
	return &fileStatusReader{}
}

func (r *fileStatusReader) ReadOutput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
