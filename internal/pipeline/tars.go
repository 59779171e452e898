package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eykd/dmearchive/internal/dme"
	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/metadata"
	"github.com/eykd/dmearchive/internal/naming"
	"github.com/eykd/dmearchive/internal/tarlist"
)

// Exclusion reasons recorded by the tar pipeline.
const (
	ReasonInvalidFormat    = "Invalid file format - not tar.gz, _archive.list, tar.gz.list or tar.gz.md5"
	ReasonDashInName       = "Invalid file format - contains - in filename, cannot parse for metadata"
	ReasonExcludedSubstr   = "Path contains substring from exclusion list"
	ReasonUndetermined     = "Tar contains Undetermined files"
	ReasonNoSubdirectories = "No project or sample sub-directory in member path"
	ReasonUnsupported      = "Not fastq.gz or valid html file"
	ReasonHTMLSubdirectory = "html path not valid, may have Sample or other sub-directory"
	ReasonHTMLNoFlowcell   = "html path not valid, could not extract flowcell_id"
	ReasonNoListing        = "Could not extract contents"
)

const laneBarcodeHTML = "laneBarcode.html"

// DefaultExclude are member path substrings that are never archived.
var DefaultExclude = []string{"10X", "Phix", "PhiX", "demux", "demultiplex"}

// TarIO is the file system boundary of the tar pipeline.
type TarIO interface {
	ReadManifest(path string) ([]string, error)
	FindListing(tarPath string) (string, bool)
	ReadListing(path string) ([]tarlist.Entry, error)
	GenerateListing(tarPath, listPath string) ([]tarlist.Entry, error)
	Extract(ctx context.Context, tarPath, member, destDir string) (string, int64, error)
	Remove(path string) error
	FileSize(path string) (int64, error)
}

// TarOptions configures RunTars.
type TarOptions struct {
	// Manifest lists one tarball name per line.
	Manifest string
	// SourceDir holds the tarballs named in the manifest.
	SourceDir string
	// ExtractDir receives extracted members.
	ExtractDir string
	// Exclude overrides DefaultExclude when non-nil.
	Exclude []string
	// MetadataOnly registers Flowcell collections only, refreshing their
	// metadata without uploading files.
	MetadataOnly bool
}

type tarRun struct {
	env  *Env
	io   TarIO
	opts TarOptions
}

// RunTars registers the contents of every tarball named in the manifest.
func RunTars(ctx context.Context, env *Env, tio TarIO, opts TarOptions) error {
	if err := env.init(); err != nil {
		return err
	}
	if err := env.requireRegistrar(); err != nil {
		return err
	}
	if opts.Exclude == nil {
		opts.Exclude = DefaultExclude
	}
	names, err := tio.ReadManifest(opts.Manifest)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	r := &tarRun{env: env, io: tio, opts: opts}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.tarball(ctx, name); err != nil {
			return err
		}
	}
	return env.finish(ctx, "tar manifest "+opts.Manifest)
}

func (r *tarRun) tarball(ctx context.Context, name string) error {
	log := r.env.Logger.With(zap.String("tarball", name))
	switch tarlist.Classify(name) {
	case tarlist.Companion:
		log.Debug("skipping companion file")
		return nil
	case tarlist.Invalid:
		return r.exclude(name, "", ReasonInvalidFormat)
	}
	if strings.Contains(name, "-") {
		return r.exclude(name, "", ReasonDashInName)
	}
	tarPath := name
	if !filepath.IsAbs(tarPath) {
		tarPath = filepath.Join(r.opts.SourceDir, name)
	}
	log.Info("processing tarball", zap.String("path", tarPath))

	if r.env.Parser.IsUnassigned(name) {
		if err := r.wholeTarball(ctx, name, tarPath); err != nil {
			return r.env.fail(ctx, name, err)
		}
		return nil
	}

	entries, err := r.listing(name, tarPath)
	if err != nil {
		log.Warn("no listing", zap.Error(err))
		if err := r.exclude(name, "", ReasonNoListing); err != nil {
			return err
		}
		return r.env.fail(ctx, name, err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.member(ctx, name, tarPath, e); err != nil {
			if ferr := r.env.fail(ctx, name+":"+e.Path, err); ferr != nil {
				return ferr
			}
		}
	}
	log.Info("done processing tarball")
	return nil
}

func (r *tarRun) exclude(source, item, reason string) error {
	return r.env.Session.RecordExclusion(source, item, reason)
}

// listing returns the companion listing of tarPath, generating one in the
// audit directory when none exists.
func (r *tarRun) listing(name, tarPath string) ([]tarlist.Entry, error) {
	if p, ok := r.io.FindListing(tarPath); ok {
		return r.io.ReadListing(p)
	}
	listPath := filepath.Join(r.env.Session.Dir(), baseName(name)+".list")
	r.env.Logger.Info("generating listing", zap.String("listing", listPath))
	return r.io.GenerateListing(tarPath, listPath)
}

// wholeTarball registers flowcell-level tarballs (supplement, single-cell,
// 10x) as one data object under their Flowcell collection.
func (r *tarRun) wholeTarball(ctx context.Context, name, tarPath string) error {
	id := r.env.Parser.Derive(naming.Source{Path: name, Archive: name})
	flowcell, err := r.env.Builder.Leaf(hierarchy.Flowcell, id)
	if err != nil {
		return err
	}
	conf, err := r.env.registerCollection(ctx, flowcell, true)
	if err != nil {
		return err
	}
	if r.opts.MetadataOnly {
		return r.include(name, "", flowcell.Path(), id, 0, conf)
	}
	obj := metadata.Object{Name: baseName(name), SourcePath: tarPath, Identity: id}
	archivePath := hierarchy.DataObjectPath(flowcell, obj.Name)
	if err := r.env.checkArchived(ctx, name, name, archivePath); err != nil {
		return err
	}
	size, err := r.io.FileSize(tarPath)
	if err != nil {
		return err
	}
	archivePath, conf, err = r.env.registerObject(ctx, flowcell, obj, true)
	if err != nil {
		return err
	}
	return r.include(name, tarPath, archivePath, id, size, conf)
}

func (r *tarRun) include(source, extracted, archivePath string, id naming.Identity, size int64, conf dme.Confirmation) error {
	return r.env.Session.RecordInclusion(auditInclusion(source, extracted, archivePath, id, size, conf))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (r *tarRun) member(ctx context.Context, name, tarPath string, e tarlist.Entry) error {
	if e.Dir || e.Path == "" {
		return nil
	}
	switch {
	case containsAny(e.Path, r.opts.Exclude):
		return r.exclude(name, e.Path, ReasonExcludedSubstr)
	case strings.HasSuffix(e.Path, "fastq.gz") || strings.HasSuffix(e.Path, "fastq.gz.md5"):
		return r.fastq(ctx, name, tarPath, e)
	case strings.HasSuffix(e.Path, laneBarcodeHTML) && strings.Contains(e.Path, "/all/"):
		return r.laneBarcode(ctx, name, tarPath, e)
	}
	return r.exclude(name, e.Path, ReasonUnsupported)
}

func nodeOf(chain []*hierarchy.Node, t hierarchy.CollectionType) *hierarchy.Node {
	for _, n := range chain {
		if n.Type == t {
			return n
		}
	}
	return nil
}

func (r *tarRun) fastq(ctx context.Context, name, tarPath string, e tarlist.Entry) error {
	if strings.Contains(e.Path, "Undetermined") {
		return r.exclude(name, e.Path, ReasonUndetermined)
	}
	if len(strings.Split(e.Path, "/")) < 3 {
		return r.exclude(name, e.Path, ReasonNoSubdirectories)
	}
	metaPath := naming.MetaPath(e.Path)
	id := r.env.Parser.Derive(naming.Source{Path: metaPath, Archive: name})
	chain, err := r.env.Builder.Chain(hierarchy.Sample, id)
	if err != nil {
		return err
	}
	flowcell := nodeOf(chain, hierarchy.Flowcell)
	if r.opts.MetadataOnly {
		conf, err := r.env.registerCollection(ctx, flowcell, false)
		if err != nil {
			return err
		}
		return r.include(name, e.Path, flowcell.Path(), id, 0, conf)
	}
	return r.registerMember(ctx, name, tarPath, e, chain, chain[len(chain)-1], metaPath, id, true)
}

// laneBarcode handles the per-project lane summary produced by bcl2fastq.
// Its metadata path is the single project directory between the flowcell
// directory and "all/".
func (r *tarRun) laneBarcode(ctx context.Context, name, tarPath string, e tarlist.Entry) error {
	head, _, _ := strings.Cut(e.Path, "all/")
	flowcellID, ok := naming.FlowcellID(name)
	if !ok || !strings.Contains(head, flowcellID) {
		return r.exclude(name, e.Path, ReasonHTMLNoFlowcell)
	}
	parts := strings.Split(head, flowcellID+"/")
	rel := parts[len(parts)-1]
	if strings.Count(rel, "/") != 1 || !strings.Contains(rel, "_") {
		return r.exclude(name, e.Path, ReasonHTMLSubdirectory)
	}
	metaPath := naming.MetaPath(rel + laneBarcodeHTML)
	id := r.env.Parser.Derive(naming.Source{Path: metaPath, Archive: name})
	chain, err := r.env.Builder.Chain(hierarchy.Flowcell, id)
	if err != nil {
		return err
	}
	if r.opts.MetadataOnly {
		flowcell := chain[len(chain)-1]
		conf, err := r.env.registerCollection(ctx, flowcell, false)
		if err != nil {
			return err
		}
		return r.include(name, e.Path, flowcell.Path(), id, 0, conf)
	}
	return r.registerMember(ctx, name, tarPath, e, chain, chain[len(chain)-1], metaPath, id, false)
}

// registerMember registers the PI and Flowcell collections of chain, then
// extracts the member and registers it under parent.
func (r *tarRun) registerMember(ctx context.Context, name, tarPath string, e tarlist.Entry,
	chain []*hierarchy.Node, parent *hierarchy.Node, metaPath string, id naming.Identity, objParents bool,
) error {
	if pi := nodeOf(chain, hierarchy.PILab); pi != nil {
		if _, err := r.env.registerCollection(ctx, pi, false); err != nil {
			return err
		}
	}
	if fc := nodeOf(chain, hierarchy.Flowcell); fc != nil {
		if _, err := r.env.registerCollection(ctx, fc, true); err != nil {
			return err
		}
	}

	obj := metadata.Object{Name: path.Base(metaPath), Identity: id}
	archivePath := hierarchy.DataObjectPath(parent, obj.Name)
	if err := r.env.checkArchived(ctx, name, e.Path, archivePath); err != nil {
		return err
	}

	size := e.Size
	if r.env.DryRun {
		obj.SourcePath = filepath.Join(r.opts.ExtractDir, filepath.FromSlash(e.Path))
		if size < 0 {
			size = 0
		}
	} else {
		extracted, n, err := r.io.Extract(ctx, tarPath, e.Path, r.opts.ExtractDir)
		if err != nil {
			if errors.Is(err, tarlist.ErrMemberNotFound) {
				return r.exclude(name, e.Path, "could not extract file for archiving")
			}
			return err
		}
		defer func() {
			if rerr := r.io.Remove(extracted); rerr != nil {
				r.env.Logger.Warn("removing extracted file", zap.String("path", extracted), zap.Error(rerr))
			}
		}()
		obj.SourcePath = extracted
		size = n
	}

	archivePath, conf, err := r.env.registerObject(ctx, parent, obj, objParents)
	if err != nil {
		return err
	}
	return r.include(name, e.Path, archivePath, id, size, conf)
}
