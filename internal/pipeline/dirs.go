package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/metadata"
	"github.com/eykd/dmearchive/internal/naming"
)

// MatchRule requires children of directories named Parent to match Pattern
// and types the resulting collections. A zero Type means Folder.
type MatchRule struct {
	Parent  string
	Pattern *regexp.Regexp
	Type    hierarchy.CollectionType
}

// DirIO is the file system boundary of the directory pipeline.
type DirIO interface {
	ReadManifest(path string) ([]string, error)
	WalkDir(root string, fn fs.WalkDirFunc) error
	FileSize(path string) (int64, error)
}

// DirOptions configures RunDirs.
type DirOptions struct {
	// Manifest lists one project directory per line.
	Manifest string
	// ProjectsPath resolves relative manifest entries.
	ProjectsPath string
	// Hierarchy maps a directory name to the only child paths, relative to
	// the project directory, walked below it.
	Hierarchy map[string][]string
	Match     []MatchRule
}

type dirRun struct {
	env  *Env
	io   DirIO
	opts DirOptions
}

// RunDirs registers every project directory named in the manifest as a
// PI_Lab and Project collection and the files below it as data objects.
func RunDirs(ctx context.Context, env *Env, dio DirIO, opts DirOptions) error {
	if err := env.init(); err != nil {
		return err
	}
	if err := env.requireRegistrar(); err != nil {
		return err
	}
	dirs, err := dio.ReadManifest(opts.Manifest)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	r := &dirRun{env: env, io: dio, opts: opts}
	for _, dir := range dirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.project(ctx, dir); err != nil {
			return err
		}
	}
	return env.finish(ctx, "project list "+opts.Manifest)
}

func (r *dirRun) project(ctx context.Context, dir string) error {
	root := dir
	if !filepath.IsAbs(root) {
		root = filepath.Join(r.opts.ProjectsPath, dir)
	}
	root = filepath.Clean(root)
	name := filepath.Base(root)
	log := r.env.Logger.With(zap.String("project", name))

	id := r.env.Parser.Derive(naming.Source{Path: name})
	chain, err := r.env.Builder.Chain(hierarchy.Project, id)
	if err != nil {
		return err
	}
	project := chain[len(chain)-1]
	for i, n := range chain {
		if _, err := r.env.registerCollection(ctx, n, i > 0); err != nil {
			if ferr := r.env.fail(ctx, name, err); ferr != nil {
				return ferr
			}
			log.Warn("skipping project", zap.Error(err))
			return nil
		}
	}

	nodes := map[string]*hierarchy.Node{".": project}
	err = r.io.WalkDir(root, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return r.env.fail(ctx, p, werr)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		parentRel := path.Dir(rel)
		parent, ok := nodes[parentRel]
		if !ok {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			t, keep := r.admit(rel, parentRel)
			if !keep {
				log.Debug("pruning directory", zap.String("dir", rel))
				return fs.SkipDir
			}
			nodes[rel] = parent.Child(t, d.Name())
			return nil
		}
		if err := r.file(ctx, root, p, rel, parent); err != nil {
			return r.env.fail(ctx, p, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}
	return nil
}

// admit applies the hierarchy and match rules to directory rel, whose
// parent directory is parentRel, and returns the collection type to use.
func (r *dirRun) admit(rel, parentRel string) (hierarchy.CollectionType, bool) {
	parentName := path.Base(parentRel)
	if allowed, ok := r.opts.Hierarchy[parentName]; ok {
		found := false
		for _, a := range allowed {
			if strings.Trim(a, "/") == rel {
				found = true
				break
			}
		}
		if !found {
			return "", false
		}
	}
	for _, m := range r.opts.Match {
		if m.Parent != parentName {
			continue
		}
		if m.Pattern != nil && !m.Pattern.MatchString(path.Base(rel)) {
			return "", false
		}
		if m.Type != "" {
			return m.Type, true
		}
	}
	return hierarchy.Folder, true
}

func (r *dirRun) file(ctx context.Context, root, full, rel string, parent *hierarchy.Node) error {
	if parent.Type != hierarchy.Project {
		if _, err := r.env.registerCollection(ctx, parent, true); err != nil {
			return err
		}
	}
	obj := metadata.Object{Name: path.Base(rel), SourcePath: full, Identity: parent.Identity}
	archivePath := hierarchy.DataObjectPath(parent, obj.Name)
	if err := r.env.checkArchived(ctx, root, rel, archivePath); err != nil {
		return err
	}
	size, err := r.io.FileSize(full)
	if err != nil {
		return err
	}
	archivePath, conf, err := r.env.registerObject(ctx, parent, obj, true)
	if err != nil {
		return err
	}
	return r.env.Session.RecordInclusion(auditInclusion(root, full, archivePath, parent.Identity, size, conf))
}
