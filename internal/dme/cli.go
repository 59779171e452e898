package dme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Commands names the client executables.
type Commands struct {
	RegisterCollection string `yaml:"register_collection"`
	RegisterDataObject string `yaml:"register_dataobject"`
	GetDataObject      string `yaml:"get_dataobject"`
}

// DefaultCommands returns the stock client command names.
func DefaultCommands() Commands {
	return Commands{
		RegisterCollection: "dm_register_collection",
		RegisterDataObject: "dm_register_dataobject",
		GetDataObject:      "dm_get_dataobject",
	}
}

// Argv returns the command line registering req.
func (c Commands) Argv(req Request) []string {
	if req.Kind == DataObject {
		return []string{c.RegisterDataObject, req.MetadataPath, req.ArchivePath, req.SourcePath}
	}
	return []string{c.RegisterCollection, req.MetadataPath, req.ArchivePath}
}

// Result is the outcome of running one command.
type Result struct {
	Output   []byte // stdout and stderr combined
	ExitCode int
}

// Runner executes a command. The returned error is reserved for commands
// that could not run to completion; a non-zero exit is reported in Result.
type Runner func(ctx context.Context, name string, args ...string) (Result, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) (Result, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return Result{Output: out, ExitCode: exitErr.ExitCode()}, nil
		}
		return Result{Output: out, ExitCode: -1}, err
	}
	return Result{Output: out}, nil
}

// CLI is a Registrar backed by the client executables.
type CLI struct {
	cmds    Commands
	timeout time.Duration
	run     Runner
	logger  *zap.Logger
}

// CLIOption configures a CLI.
type CLIOption func(*CLI)

// WithTimeout bounds every command. Zero, the default, waits indefinitely.
func WithTimeout(d time.Duration) CLIOption {
	return func(c *CLI) { c.timeout = d }
}

// WithRunner replaces ExecRunner.
func WithRunner(r Runner) CLIOption {
	return func(c *CLI) { c.run = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) CLIOption {
	return func(c *CLI) { c.logger = l }
}

// NewCLI returns a registrar that shells out to cmds.
func NewCLI(cmds Commands, opts ...CLIOption) *CLI {
	c := &CLI{cmds: cmds, run: ExecRunner, logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CommandLine returns the argv Submit would run for req.
func (c *CLI) CommandLine(req Request) []string {
	return c.cmds.Argv(req)
}

// Submit runs the registration command for req and decodes its output.
func (c *CLI) Submit(ctx context.Context, req Request) (Confirmation, error) {
	argv := c.CommandLine(req)
	res, err := c.exec(ctx, argv[0], argv[1:]...)
	if err != nil {
		return Confirmation{}, err
	}
	out := string(res.Output)
	conf, err := ParseResponse(out)
	if err != nil {
		if res.ExitCode != 0 {
			return Confirmation{}, fmt.Errorf("%s exited %d: %w", argv[0], res.ExitCode, err)
		}
		return Confirmation{}, err
	}
	if res.ExitCode != 0 {
		return Confirmation{}, &RegistrationError{
			Code:      -1,
			Cause:     fmt.Sprintf("%s exited %d after reporting %s", argv[0], res.ExitCode, conf.Outcome),
			Output:    out,
			Retryable: true,
		}
	}
	c.logger.Debug("registered",
		zap.String("kind", req.Kind.String()),
		zap.String("archive_path", req.ArchivePath),
		zap.String("outcome", string(conf.Outcome)),
	)
	return conf, nil
}

type dataObjectResponse struct {
	DataObjects []struct {
		DataObject struct {
			AbsolutePath string `json:"absolutePath"`
		} `json:"dataObject"`
		MetadataEntries struct {
			Self []struct {
				Attribute string `json:"attribute"`
				Value     string `json:"value"`
			} `json:"selfMetadataEntries"`
		} `json:"metadataEntries"`
	} `json:"dataObjects"`
}

// DataObjectStatus returns the transfer status of the object at
// archivePath. A non-zero exit from the client means the object does not
// exist (StatusEmpty). A response for a different object, or one without a
// data_transfer_status entry, yields StatusError.
func (c *CLI) DataObjectStatus(ctx context.Context, archivePath string) (TransferStatus, error) {
	res, err := c.exec(ctx, c.cmds.GetDataObject, archivePath)
	if err != nil {
		return StatusError, err
	}
	if res.ExitCode != 0 {
		return StatusEmpty, nil
	}
	var resp dataObjectResponse
	if err := json.Unmarshal(res.Output, &resp); err != nil {
		return StatusError, fmt.Errorf("decoding %s output: %w", c.cmds.GetDataObject, err)
	}
	want, err := url.QueryUnescape(archivePath)
	if err != nil {
		want = archivePath
	}
	if len(resp.DataObjects) == 0 || resp.DataObjects[0].DataObject.AbsolutePath != want {
		c.logger.Error("cannot retrieve metadata", zap.String("archive_path", archivePath), zap.ByteString("output", res.Output))
		return StatusError, nil
	}
	for _, e := range resp.DataObjects[0].MetadataEntries.Self {
		if e.Attribute == "data_transfer_status" {
			return TransferStatus(e.Value), nil
		}
	}
	return StatusError, nil
}

func (c *CLI) exec(ctx context.Context, name string, args ...string) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	c.logger.Info("running", zap.String("command", name), zap.Strings("args", args))
	res, err := c.run(ctx, name, args...)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return res, fmt.Errorf("%w: %s: %v", ErrCommandUnavailable, name, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, fmt.Errorf("%s timed out after %s: %w", name, c.timeout, ctx.Err())
	}
	return res, fmt.Errorf("running %s: %w", name, err)
}
