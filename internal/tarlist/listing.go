package tarlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Entry is one line of a tar listing.
type Entry struct {
	Path string // member path, "../" and leading "/" removed
	Dir  bool
	Size int64 // -1 when the line carries no size column
	Line string
}

// ParseLine decodes a "tar tv" style line. Plain path-per-line listings are
// accepted too. The member path is the last whitespace-separated field, so
// names containing spaces are not supported. ok is false for blank lines.
func ParseLine(line string) (Entry, bool) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Entry{}, false
	}
	e := Entry{Line: line, Size: -1, Dir: strings.HasSuffix(trimmed, "/")}

	fields := strings.Fields(trimmed)
	p := fields[len(fields)-1]
	if i := strings.LastIndex(p, "../"); i >= 0 {
		p = p[i+len("../"):]
	}
	e.Path = strings.TrimLeft(p, "/")

	if len(fields) >= 6 {
		if n, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
			e.Size = n
		}
	}
	return e, true
}

// maxLineSize bounds a single listing line.
const maxLineSize = 1024 * 1024

// ParseListing reads every non-blank line of r.
func ParseListing(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var out []Entry
	for sc.Scan() {
		if e, ok := ParseLine(sc.Text()); ok {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading listing: %w", err)
	}
	return out, nil
}

// ParseListingFile opens path and calls ParseListing.
func ParseListingFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening listing: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseListing(f)
}

// Candidates returns the listing paths probed for tarPath, in order:
// "<tar>.list", "<base>_archive.list", "<tar without .gz>.list.txt" and
// "<tar without .gz>_list.txt".
func Candidates(tarPath string) []string {
	base, _, _ := strings.Cut(tarPath, ".tar")
	noGz, _, _ := strings.Cut(tarPath, ".gz")
	return []string{
		tarPath + ".list",
		base + "_archive.list",
		noGz + ".list.txt",
		noGz + "_list.txt",
	}
}

// FindListing returns the first existing candidate listing for tarPath.
func FindListing(tarPath string) (string, bool) {
	for _, c := range Candidates(tarPath) {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c, true
		}
	}
	return "", false
}
