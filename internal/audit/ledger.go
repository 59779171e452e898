package audit

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Ledger is a persistent list of items registered by earlier runs, one per
// line. Items are matched exactly.
type Ledger struct {
	path  string
	items map[string]bool
	f     *os.File
}

// OpenLedger reads the ledger at path, creating it if needed, and opens it
// for appending.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, items: make(map[string]bool)}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if item := strings.TrimRight(sc.Text(), "\r"); item != "" {
			l.items[item] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}
	if l.f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	return l, nil
}

// Has reports whether item was recorded.
func (l *Ledger) Has(item string) bool {
	return l.items[item]
}

// Add records item. Recording an item twice writes it once.
func (l *Ledger) Add(item string) error {
	if l.items[item] {
		return nil
	}
	if _, err := fmt.Fprintln(l.f, item); err != nil {
		return fmt.Errorf("writing ledger %s: %w", l.path, err)
	}
	l.items[item] = true
	return nil
}

// Len returns the number of recorded items.
func (l *Ledger) Len() int {
	return len(l.items)
}

// Close closes the ledger file. It is safe to call more than once.
func (l *Ledger) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
