package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eykd/dmearchive/internal/audit"
	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/naming"
)

// Staging results recorded in the audit log.
const (
	ResultCopied  = "Copied"
	ResultDryRun  = "DRY_RUN"
	ReasonNoMRN   = "No patient number after /SCAF in path"
	stageTarStart = "Seq"
)

// StageIO is the file system boundary of the staging pipeline.
type StageIO interface {
	ReadManifest(path string) ([]string, error)
	WalkDir(root string, fn fs.WalkDirFunc) error
	ExtractAll(ctx context.Context, tarPath, destDir string, keep func(member string) bool) ([]string, error)
	Copy(src, dst string) (int64, error)
	FileSize(path string) (int64, error)
	RemoveAll(path string) error
}

// StageOptions configures RunStage.
type StageOptions struct {
	// BaseDir holds the manifest and the PI directories it names.
	BaseDir string
	// Manifest lists one PI directory per line, relative to BaseDir.
	Manifest string
	// WorkDir receives extracted tarballs. Defaults to BaseDir/work.
	WorkDir string
	// StagedDir receives the staged tree. Defaults to BaseDir/staged.
	StagedDir string
}

func (o *StageOptions) defaults() {
	if o.WorkDir == "" {
		o.WorkDir = filepath.Join(o.BaseDir, "work")
	}
	if o.StagedDir == "" {
		o.StagedDir = filepath.Join(o.BaseDir, "staged")
	}
	if o.Manifest != "" && !filepath.IsAbs(o.Manifest) {
		o.Manifest = filepath.Join(o.BaseDir, o.Manifest)
	}
}

// KeepStaged selects the tarball members copied into the staged tree.
func KeepStaged(member string) bool {
	switch {
	case strings.HasSuffix(member, "fastq"),
		strings.HasSuffix(member, "fastq.gz"),
		strings.HasSuffix(member, "fastq.gz.md5"):
		return true
	case strings.HasSuffix(member, laneBarcodeHTML):
		return strings.Contains(member, "/all/")
	}
	return false
}

type stageRun struct {
	env  *Env
	io   StageIO
	opts StageOptions
}

// RunStage copies the SCAF clinical run files of every PI directory into
// <staged>/<pi>/Patient_<mrn>[/Run_<flowcell>]. Nothing is registered.
func RunStage(ctx context.Context, env *Env, sio StageIO, opts StageOptions) error {
	if err := env.init(); err != nil {
		return err
	}
	if env.Builder == nil || env.Parser == nil {
		return fmt.Errorf("pipeline: builder and parser are required")
	}
	opts.defaults()
	dirs, err := sio.ReadManifest(opts.Manifest)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	r := &stageRun{env: env, io: sio, opts: opts}
	for _, pi := range dirs {
		pi = strings.TrimSpace(pi)
		if pi == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.piDir(ctx, pi); err != nil {
			return err
		}
	}
	return env.finish(ctx, "staging "+opts.Manifest)
}

func (r *stageRun) piDir(ctx context.Context, pi string) error {
	root := filepath.Join(r.opts.BaseDir, pi)
	log := r.env.Logger.With(zap.String("pi_dir", root))
	log.Info("processing pi directory")
	err := r.io.WalkDir(root, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return r.env.fail(ctx, p, werr)
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		var err error
		switch {
		case strings.HasPrefix(name, stageTarStart) && strings.HasSuffix(name, ".tar"):
			err = r.tarball(ctx, pi, p)
		case strings.HasSuffix(name, "bam"):
			err = r.copy(pi, "", p)
		default:
			return nil
		}
		if err != nil {
			return r.env.fail(ctx, p, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}
	log.Info("done processing pi directory")
	return nil
}

func (r *stageRun) tarball(ctx context.Context, pi, tarPath string) error {
	dest := filepath.Join(r.opts.WorkDir, strings.TrimSuffix(filepath.Base(tarPath), ".tar"))
	defer func() {
		if err := r.io.RemoveAll(dest); err != nil {
			r.env.Logger.Warn("removing work directory", zap.String("dir", dest), zap.Error(err))
		}
	}()
	files, err := r.io.ExtractAll(ctx, tarPath, dest, KeepStaged)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", tarPath, err)
	}
	for _, f := range files {
		if err := r.copy(pi, tarPath, f); err != nil {
			return err
		}
	}
	return nil
}

// copy stages src below the PI's staged directory. tarPath is empty for
// loose files, which land in the Patient folder itself.
func (r *stageRun) copy(pi, tarPath, src string) error {
	id := r.env.Parser.Derive(naming.Source{Path: filepath.ToSlash(src), Archive: filepath.Base(tarPath)})
	if id.MRN == "" {
		return r.env.Session.RecordExclusion(pi, src, ReasonNoMRN)
	}
	level := hierarchy.Folder
	if tarPath != "" {
		level = hierarchy.Run
	}
	rel, err := r.env.Builder.Path(level, id)
	if err != nil {
		return err
	}
	dst := filepath.Join(r.opts.StagedDir, pi, filepath.FromSlash(rel), filepath.Base(src))

	result := ResultCopied
	var size int64
	if r.env.DryRun {
		result = ResultDryRun
		size, err = r.io.FileSize(src)
	} else {
		size, err = r.io.Copy(src, dst)
	}
	if err != nil {
		return err
	}
	r.env.Logger.Info("staged file", zap.String("source", src), zap.String("dest", dst), zap.Bool("dry_run", r.env.DryRun))
	source := tarPath
	if source == "" {
		source = pi
	}
	return r.env.Session.RecordInclusion(audit.Inclusion{
		Source:      source,
		Extracted:   src,
		ArchivePath: dst,
		Identity:    id,
		Size:        size,
		Result:      result,
	})
}
