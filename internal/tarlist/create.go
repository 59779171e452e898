package tarlist

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// Create writes the tree at srcDir to dst as a gzipped tarball whose members
// are rooted at the base name of srcDir, and returns the size of dst. The
// archive is written to a temporary file and renamed into place, so dst is
// either complete or absent. Only directories and regular files are stored.
func Create(ctx context.Context, dst, srcDir string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".create-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)
	root := filepath.Base(srcDir)
	walkErr := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !d.IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		h, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		h.Name = filepath.ToSlash(filepath.Join(root, rel))
		if d.IsDir() {
			h.Name += "/"
		}
		if err := tw.WriteHeader(h); err != nil {
			return fmt.Errorf("writing header for %s: %w", p, err)
		}
		if d.IsDir() {
			return nil
		}
		return copyFile(tw, p)
	})
	if walkErr != nil {
		cleanup()
		return 0, fmt.Errorf("archiving %s: %w", srcDir, walkErr)
	}
	if err := tw.Close(); err != nil {
		cleanup()
		return 0, fmt.Errorf("closing tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		cleanup()
		return 0, fmt.Errorf("closing gzip stream: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming archive: %w", err)
	}
	fi, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", dst, err)
	}
	return fi.Size(), nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	return nil
}
