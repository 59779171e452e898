// Package logging builds the zap logger used for a run.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Dir receives the run log file. Empty disables the file.
	Dir string
	// FilePrefix starts the log file name, which ends with the UTC start
	// time, e.g. "dmearchive_2018-05-14_07-56-07.log".
	FilePrefix string
	Level      string
	Verbose    bool
	// Console receives human-readable output; defaults to os.Stderr.
	Console io.Writer
	// Now is used for the file timestamp; defaults to time.Now.
	Now func() time.Time
}

// Run is a configured logger plus its log file.
type Run struct {
	Logger  *zap.Logger
	ID      string
	LogPath string
	file    *os.File
}

// FileName returns the log file name for a run started at t.
func FileName(prefix string, t time.Time) string {
	return prefix + t.UTC().Format("2006-01-02_15-04-05") + ".log"
}

// New builds a logger that writes console-encoded entries to the console
// and, when Dir is set, to a per-run file. Every entry carries run_id.
func New(opts Options) (*Run, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(console), level)}
	r := &Run{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		r.LogPath = filepath.Join(opts.Dir, FileName(opts.FilePrefix, now()))
		f, err := os.OpenFile(r.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		r.file = f
		// The file always gets debug detail for later triage.
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(f), zapcore.DebugLevel))
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	r.ID = id.String()
	r.Logger = zap.New(zapcore.NewTee(cores...)).With(zap.String("run_id", r.ID))
	return r, nil
}

// Close flushes the logger and closes the log file.
func (r *Run) Close() error {
	_ = r.Logger.Sync()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
