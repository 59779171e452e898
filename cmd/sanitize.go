package cmd

import "strings"

// sanitizePath replaces control characters (runes < 0x20 or == 0x7F) with '?'
// in manifest names, audit paths and client messages echoed to the terminal.
// Tarball and project names come from user-supplied lists.
func sanitizePath(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F {
			return '?'
		}
		return r
	}, s)
}
