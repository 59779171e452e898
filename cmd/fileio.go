package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eykd/dmearchive/internal/tarlist"
)

// osFiles implements the file operations shared by the pipeline commands.
type osFiles struct{}

// ReadManifest returns the non-blank, trimmed lines of path.
func (osFiles) ReadManifest(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}

func (osFiles) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

func (osFiles) FileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (osFiles) Remove(path string) error {
	return os.Remove(path)
}

func (osFiles) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Copy copies src to dst atomically via a temp file in dst's directory,
// creating the directory if needed.
func (osFiles) Copy(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".stage-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, in)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return n, fmt.Errorf("copying %s: %w", src, err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return n, fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return n, fmt.Errorf("setting permissions: %w", err)
	}
	if err = os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return n, fmt.Errorf("renaming temp file: %w", err)
	}
	return n, nil
}

// tarFiles adds tarball access to osFiles.
type tarFiles struct {
	osFiles
}

func (tarFiles) FindListing(tarPath string) (string, bool) {
	return tarlist.FindListing(tarPath)
}

func (tarFiles) ReadListing(path string) ([]tarlist.Entry, error) {
	return tarlist.ParseListingFile(path)
}

func (tarFiles) GenerateListing(tarPath, listPath string) ([]tarlist.Entry, error) {
	return tarlist.GenerateFile(tarPath, listPath)
}

func (tarFiles) Extract(ctx context.Context, tarPath, member, destDir string) (string, int64, error) {
	return tarlist.Extract(ctx, tarPath, member, destDir)
}

func (tarFiles) ExtractAll(ctx context.Context, tarPath, destDir string, keep func(string) bool) ([]string, error) {
	return tarlist.ExtractAll(ctx, tarPath, destDir, keep)
}

func (osFiles) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (osFiles) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SettledDirs returns the sorted names of the immediate subdirectories of
// dir whose modification time is before cutoff.
func (osFiles) SettledDirs(dir string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		if fi.ModTime().Before(cutoff) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// DirSize returns the total size of the regular files below path.
func (osFiles) DirSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
