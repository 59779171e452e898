// Package tarlist reads and produces tar content listings and pulls single
// members out of run tarballs.
package tarlist

import "strings"

// Kind classifies a manifest entry.
type Kind int

const (
	// Invalid entries are neither tarballs nor known companions.
	Invalid Kind = iota
	// Tarball is a .tar or .tar.gz archive.
	Tarball
	// Companion is a listing or checksum that travels with a tarball and is
	// skipped without an exclusion row.
	Companion
)

func (k Kind) String() string {
	switch k {
	case Tarball:
		return "tarball"
	case Companion:
		return "companion"
	}
	return "invalid"
}

var companionSuffixes = []string{"tar.gz.list", "_archive.list", "list.txt", ".md5"}

// Classify decides how a manifest entry is handled.
func Classify(name string) Kind {
	name = strings.TrimSpace(name)
	if strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tar") {
		return Tarball
	}
	for _, s := range companionSuffixes {
		if strings.HasSuffix(name, s) {
			return Companion
		}
	}
	return Invalid
}
