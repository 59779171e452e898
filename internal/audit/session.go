// Package audit records what a run included and excluded, and keeps the
// running file and byte totals.
package audit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/eykd/dmearchive/internal/naming"
)

// File names inside the audit directory.
const (
	IncludedCSV     = "included.csv"
	ExcludedCSV     = "excluded.csv"
	RegisteredFiles = "registered_files"
	ExcludedFiles   = "excluded_files"
	JSONDirName     = "jsons"
)

var (
	includedHeader = []string{
		"source", "extracted_path", "archive_path", "flowcell_id", "pi_name",
		"project_id", "project_name", "sample_name", "run_name",
		"sequencing_platform", "filesize", "result",
	}
	excludedHeader = []string{"source", "item", "reason"}
)

// Options configures a Session.
type Options struct {
	Dir string
	// InitialFiles and InitialBytes seed the counters when resuming an
	// interrupted run. They are taken on trust.
	InitialFiles int64
	InitialBytes int64
	Logger       *zap.Logger
}

// Inclusion is one registered (or staged) file.
type Inclusion struct {
	Source      string // tarball or project directory
	Extracted   string // member or file path
	ArchivePath string
	Identity    naming.Identity
	Size        int64
	Result      string
}

// Summary is a snapshot of the counters.
type Summary struct {
	FilesRegistered int64
	BytesStored     int64
	Excluded        int64
}

// Session owns the audit files of one run. It is single-writer: only one
// goroutine and one process may use an audit directory at a time.
type Session struct {
	dir    string
	logger *zap.Logger

	included   *os.File
	excluded   *os.File
	registered *os.File
	skipped    *os.File
	includedW  *csv.Writer
	excludedW  *csv.Writer

	files    int64
	bytes    int64
	excludes int64
	seen     map[string]bool
	closed   bool
}

// Open creates the audit directory if needed and opens every audit file for
// appending. CSV headers are written only to new files.
func Open(opts Options) (*Session, error) {
	if opts.Dir == "" {
		return nil, errors.New("audit directory is required")
	}
	if err := os.MkdirAll(filepath.Join(opts.Dir, JSONDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}
	s := &Session{
		dir:    opts.Dir,
		logger: opts.Logger,
		files:  opts.InitialFiles,
		bytes:  opts.InitialBytes,
		seen:   make(map[string]bool),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	var err error
	if s.included, err = s.openCSV(IncludedCSV, includedHeader); err != nil {
		return nil, s.abort(err)
	}
	s.includedW = csv.NewWriter(s.included)
	if s.excluded, err = s.openCSV(ExcludedCSV, excludedHeader); err != nil {
		return nil, s.abort(err)
	}
	s.excludedW = csv.NewWriter(s.excluded)
	if s.registered, err = s.openAppend(RegisteredFiles); err != nil {
		return nil, s.abort(err)
	}
	if s.skipped, err = s.openAppend(ExcludedFiles); err != nil {
		return nil, s.abort(err)
	}
	return s, nil
}

func (s *Session) abort(err error) error {
	return errors.Join(err, s.Close())
}

func (s *Session) openAppend(name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return f, nil
}

func (s *Session) openCSV(name string, header []string) (*os.File, error) {
	f, err := s.openAppend(name)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if fi.Size() == 0 {
		w := csv.NewWriter(f)
		_ = w.Write(header)
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("writing %s header: %w", name, err)
		}
	}
	return f, nil
}

// Dir returns the audit directory.
func (s *Session) Dir() string {
	return s.dir
}

// JSONDir returns the directory metadata documents are written to.
func (s *Session) JSONDir() string {
	return filepath.Join(s.dir, JSONDirName)
}

// RecordExclusion writes one excluded row and text line.
func (s *Session) RecordExclusion(source, item, reason string) error {
	if s.closed {
		return errors.New("audit session closed")
	}
	s.excludes++
	s.logger.Warn("ignoring file", zap.String("source", source), zap.String("item", item), zap.String("reason", reason))
	if _, err := fmt.Fprintf(s.skipped, "%s: %s - %s\n", source, item, reason); err != nil {
		return fmt.Errorf("writing %s: %w", ExcludedFiles, err)
	}
	return writeRow(s.excludedW, []string{source, item, reason})
}

// RecordInclusion writes one included row. The counters advance only the
// first time an archive path is seen in this session; the row is written
// every time.
func (s *Session) RecordInclusion(inc Inclusion) error {
	if s.closed {
		return errors.New("audit session closed")
	}
	key := inc.ArchivePath
	if key == "" {
		key = inc.Source + "\x00" + inc.Extracted
	}
	if !s.seen[key] {
		s.seen[key] = true
		s.files++
		s.bytes += inc.Size
	}
	id := inc.Identity
	row := []string{
		inc.Source, inc.Extracted, inc.ArchivePath, id.FlowcellID, id.PIName,
		id.ProjectID, id.ProjectName, id.SampleName, id.RunName,
		id.SequencingPlatform, strconv.FormatInt(inc.Size, 10), inc.Result,
	}
	if err := writeRow(s.includedW, row); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.registered, "Files registered = %d, Bytes_stored = %d\n", s.files, s.bytes); err != nil {
		return fmt.Errorf("writing %s: %w", RegisteredFiles, err)
	}
	return nil
}

// RecordCommand appends a command line to the registered files log.
func (s *Session) RecordCommand(argv []string) error {
	if s.closed {
		return errors.New("audit session closed")
	}
	line := strings.Join(argv, " ")
	s.logger.Info("command", zap.String("command", line))
	if _, err := fmt.Fprintln(s.registered, line); err != nil {
		return fmt.Errorf("writing %s: %w", RegisteredFiles, err)
	}
	return nil
}

// Summary returns the current counters.
func (s *Session) Summary() Summary {
	return Summary{FilesRegistered: s.files, BytesStored: s.bytes, Excluded: s.excludes}
}

// WriteSummary appends the totals to the registered files log and the
// logger.
func (s *Session) WriteSummary() error {
	if s.closed {
		return errors.New("audit session closed")
	}
	sum := s.Summary()
	s.logger.Info("run summary",
		zap.Int64("files_registered", sum.FilesRegistered),
		zap.Int64("bytes_stored", sum.BytesStored),
		zap.String("bytes_human", humanize.Bytes(uint64(max(sum.BytesStored, 0)))),
		zap.Int64("excluded", sum.Excluded),
	)
	if _, err := fmt.Fprintf(s.registered, "Number of files uploaded = %d, total bytes so far = %d (%s)\n",
		sum.FilesRegistered, sum.BytesStored, humanize.Bytes(uint64(max(sum.BytesStored, 0)))); err != nil {
		return fmt.Errorf("writing %s: %w", RegisteredFiles, err)
	}
	return nil
}

// Close flushes and closes every file. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, w := range []*csv.Writer{s.includedW, s.excludedW} {
		if w != nil {
			w.Flush()
			errs = append(errs, w.Error())
		}
	}
	for _, f := range []*os.File{s.included, s.excluded, s.registered, s.skipped} {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	return errors.Join(errs...)
}

func writeRow(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return fmt.Errorf("writing audit row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing audit row: %w", err)
	}
	return nil
}
