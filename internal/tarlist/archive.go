package tarlist

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrMemberNotFound is returned by Extract when the archive has no such
// member.
var ErrMemberNotFound = errors.New("member not found in archive")

// ErrUnsafePath is returned for members that would land outside the
// destination directory.
var ErrUnsafePath = errors.New("member path escapes destination")

type tarFile struct {
	*tar.Reader
	closers []io.Closer
}

func (t *tarFile) Close() error {
	var errs []error
	for i := len(t.closers) - 1; i >= 0; i-- {
		errs = append(errs, t.closers[i].Close())
	}
	return errors.Join(errs...)
}

func openTar(path string) (*tarFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	tf := &tarFile{closers: []io.Closer{f}}
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") || strings.HasSuffix(path, ".tgz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		tf.closers = append(tf.closers, zr)
		r = zr
	}
	tf.Reader = tar.NewReader(r)
	return tf, nil
}

func memberName(h *tar.Header) string {
	name := strings.TrimPrefix(h.Name, "./")
	name = strings.TrimLeft(name, "/")
	if h.Typeflag == tar.TypeDir && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}

// Generate writes a "tar tv" style listing of the archive at tarPath to w.
func Generate(tarPath string, w io.Writer) error {
	tf, err := openTar(tarPath)
	if err != nil {
		return err
	}
	defer func() { _ = tf.Close() }()
	for {
		h, err := tf.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("reading %s: %w", tarPath, err)
		}
		owner := h.Uname
		if owner == "" {
			owner = strconv.Itoa(h.Uid)
		}
		group := h.Gname
		if group == "" {
			group = strconv.Itoa(h.Gid)
		}
		if _, err := fmt.Fprintf(w, "%s %s/%s %d %s %s\n",
			h.FileInfo().Mode().String(), owner, group, h.Size,
			h.ModTime.UTC().Format("2006-01-02 15:04"), memberName(h)); err != nil {
			return fmt.Errorf("writing listing: %w", err)
		}
	}
}

// GenerateFile writes the listing of tarPath to listPath and returns the
// parsed entries.
func GenerateFile(tarPath, listPath string) ([]Entry, error) {
	f, err := os.Create(listPath)
	if err != nil {
		return nil, fmt.Errorf("creating listing: %w", err)
	}
	if err := Generate(tarPath, f); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing listing: %w", err)
	}
	return ParseListingFile(listPath)
}

// safeTarget joins member onto destDir, rejecting paths that escape it.
func safeTarget(destDir, member string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(member))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, member)
	}
	return target, nil
}

// Extract copies the regular file member of tarPath to destDir/member and
// returns the written path and its size.
func Extract(ctx context.Context, tarPath, member, destDir string) (string, int64, error) {
	member = strings.TrimLeft(strings.TrimPrefix(member, "./"), "/")
	target, err := safeTarget(destDir, member)
	if err != nil {
		return "", 0, err
	}
	tf, err := openTar(tarPath)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = tf.Close() }()
	for {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		h, err := tf.Next()
		if errors.Is(err, io.EOF) {
			return "", 0, fmt.Errorf("%w: %s", ErrMemberNotFound, member)
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			continue
		}
		if err != nil {
			return "", 0, fmt.Errorf("reading %s: %w", tarPath, err)
		}
		if h.Typeflag != tar.TypeReg || memberName(h) != member {
			continue
		}
		n, err := writeMember(tf, target, h)
		if err != nil {
			return "", 0, err
		}
		return target, n, nil
	}
}

// ExtractAll copies every regular file accepted by keep into destDir and
// returns the written paths in archive order. Members escaping destDir are
// rejected.
func ExtractAll(ctx context.Context, tarPath, destDir string, keep func(member string) bool) ([]string, error) {
	tf, err := openTar(tarPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tf.Close() }()
	var out []string
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		h, err := tf.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return out, fmt.Errorf("%w: %s", ErrUnsafePath, h.Name)
		}
		if err != nil {
			return out, fmt.Errorf("reading %s: %w", tarPath, err)
		}
		name := memberName(h)
		if h.Typeflag != tar.TypeReg || (keep != nil && !keep(name)) {
			continue
		}
		target, err := safeTarget(destDir, name)
		if err != nil {
			return out, err
		}
		if _, err := writeMember(tf, target, h); err != nil {
			return out, err
		}
		out = append(out, target)
	}
}

func writeMember(r io.Reader, target string, h *tar.Header) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", target, err)
	}
	n, err := io.Copy(f, io.LimitReader(r, h.Size))
	if err != nil {
		_ = f.Close()
		return n, fmt.Errorf("extracting %s: %w", h.Name, err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("closing %s: %w", target, err)
	}
	return n, nil
}
