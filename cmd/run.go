package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eykd/dmearchive/internal/audit"
	"github.com/eykd/dmearchive/internal/config"
	"github.com/eykd/dmearchive/internal/dme"
	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/logging"
	"github.com/eykd/dmearchive/internal/metadata"
	"github.com/eykd/dmearchive/internal/naming"
	"github.com/eykd/dmearchive/internal/notify"
	"github.com/eykd/dmearchive/internal/pipeline"
)

// runOptions are the flags shared by the pipeline commands.
type runOptions struct {
	convention   string
	dryRun       bool
	skipArchived bool
	initialFiles int64
	initialBytes int64
}

func addRunFlags(c *cobra.Command, o *runOptions, convention string) {
	c.Flags().StringVar(&o.convention, "convention", convention, "naming convention (ccrsf, cmm, scaf, hitif)")
	c.Flags().BoolVar(&o.dryRun, "dry-run", false, "write metadata and log commands without registering")
	c.Flags().BoolVar(&o.skipArchived, "skip-archived", false, "skip data objects the archive already reports as ARCHIVED")
	c.Flags().Int64Var(&o.initialFiles, "initial-files", 0, "files registered by an earlier, interrupted run")
	c.Flags().Int64Var(&o.initialBytes, "initial-bytes", 0, "bytes stored by an earlier, interrupted run")
}

// loadConfig loads .env, then the --config file over the defaults. A
// missing .env is fine; an unreadable or malformed one is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newParser returns the parser for cfg's convention.
func newParser(cfg *config.Config, logger *zap.Logger) *naming.Parser {
	return naming.NewParser(cfg.Rules(), cfg.NameTable(),
		naming.WithLogger(logger),
		naming.WithUnassignedMarkers(cfg.Naming.UnassignedMarkers...),
	)
}

// pipelineRun owns the resources of one pipeline command.
type pipelineRun struct {
	cfg     *config.Config
	log     *logging.Run
	session *audit.Session
	env     *pipeline.Env
}

func newPipelineRun(cmd *cobra.Command, auditDir string, o runOptions) (*pipelineRun, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if o.convention != "" {
		cfg.Convention = o.convention
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	verbose, _ := cmd.Flags().GetBool("verbose")

	lr, err := logging.New(logging.Options{
		Dir:        auditDir,
		FilePrefix: cfg.Logging.FilePrefix,
		Level:      cfg.Logging.Level,
		Verbose:    verbose,
		Console:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	logger := lr.Logger.With(zap.String("convention", cfg.Convention), zap.Bool("dry_run", o.dryRun))

	session, err := audit.Open(audit.Options{
		Dir:          auditDir,
		InitialFiles: o.initialFiles,
		InitialBytes: o.initialBytes,
		Logger:       logger,
	})
	if err != nil {
		_ = lr.Close()
		return nil, err
	}
	p := &pipelineRun{cfg: cfg, log: lr, session: session}

	env, err := p.buildEnv(logger, o)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.env = env
	return p, nil
}

func (p *pipelineRun) buildEnv(logger *zap.Logger, o runOptions) (*pipeline.Env, error) {
	cfg := p.cfg
	tmpl, err := cfg.Template()
	if err != nil {
		return nil, err
	}
	builder, err := hierarchy.NewBuilder(tmpl)
	if err != nil {
		return nil, err
	}

	var registrar dme.Registrar
	if o.dryRun {
		registrar = dme.DryRun{Commands: cfg.Commands, Logger: logger}
	} else {
		registrar = dme.NewCLI(cfg.Commands, dme.WithTimeout(cfg.GetTimeout()), dme.WithLogger(logger))
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Command != "" {
		c, err := notify.ParseCommand(cfg.Notify.Command, cfg.Notify.Recipients)
		if err != nil {
			return nil, fmt.Errorf("notify command: %w", err)
		}
		notifier = c
	}

	var rows *metadata.Rows
	if cfg.Metadata.CSV != "" {
		rows, err = metadata.LoadCSVFile(cfg.Metadata.CSV, cfg.Metadata.KeyColumn)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded metadata rows", zap.String("csv", cfg.Metadata.CSV), zap.Int("rows", rows.Len()))
	}

	return &pipeline.Env{
		Registrar:    registrar,
		Session:      p.session,
		Notifier:     notifier,
		Budget:       dme.NewErrorBudget(cfg.MaxErrors),
		Logger:       logger,
		Builder:      builder,
		Parser:       newParser(cfg, logger),
		Assembler:    metadata.NewAssembler(rows),
		DryRun:       o.dryRun,
		SkipArchived: o.skipArchived,
		CacheSize:    cfg.CacheSize,
	}, nil
}

// report prints the run totals.
func (p *pipelineRun) report(cmd *cobra.Command, what string) {
	sum := p.session.Summary()
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files, %d bytes, %d excluded (audit: %s)\n",
		what, sum.FilesRegistered, sum.BytesStored, sum.Excluded, sanitizePath(p.session.Dir()))
}

// Close closes the audit session and the log file.
func (p *pipelineRun) Close() error {
	var errs []error
	if p.session != nil {
		errs = append(errs, p.session.Close())
	}
	if p.log != nil {
		_ = p.log.Logger.Sync()
		errs = append(errs, p.log.Close())
	}
	return errors.Join(errs...)
}
