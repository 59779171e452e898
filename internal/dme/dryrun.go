package dme

import (
	"context"

	"go.uber.org/zap"
)

// DryRun is a Registrar that executes nothing. Every submission succeeds and
// every object reads as not yet registered.
type DryRun struct {
	// Commands are only used to report what would have run.
	Commands Commands
	Logger   *zap.Logger
}

// CommandLine returns the argv a real run would execute for req.
func (d DryRun) CommandLine(req Request) []string {
	cmds := d.Commands
	if cmds == (Commands{}) {
		cmds = DefaultCommands()
	}
	return cmds.Argv(req)
}

// Submit logs req and reports OutcomeDryRun.
func (d DryRun) Submit(_ context.Context, req Request) (Confirmation, error) {
	if d.Logger != nil {
		d.Logger.Info("dry run: skipping registration",
			zap.String("kind", req.Kind.String()),
			zap.String("archive_path", req.ArchivePath),
		)
	}
	return Confirmation{Outcome: OutcomeDryRun, Message: "dry run"}, nil
}

// DataObjectStatus always returns StatusEmpty.
func (DryRun) DataObjectStatus(context.Context, string) (TransferStatus, error) {
	return StatusEmpty, nil
}
