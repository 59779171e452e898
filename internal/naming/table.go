package naming

import "strings"

// NameEntry maps a substring found in a path to a canonical name.
type NameEntry struct {
	Match string `yaml:"match" json:"match"`
	Name  string `yaml:"name" json:"name"`
}

// NameTable is an ordered exception list consulted before any heuristic.
// The first entry whose Match occurs in the path wins.
type NameTable struct {
	entries []NameEntry
}

// DefaultPITable holds the facility-internal folders that the PI heuristics
// would otherwise misread as investigator names.
var DefaultPITable = []NameEntry{
	{Match: "CCRSF_QC", Name: FacilityName},
	{Match: "PhiX_Control", Name: FacilityName},
	{Match: "SF_Validation", Name: FacilityName},
}

// NewNameTable returns a table holding entries in order. Entries with an
// empty Match are ignored.
func NewNameTable(entries ...NameEntry) *NameTable {
	t := &NameTable{}
	for _, e := range entries {
		if e.Match == "" {
			continue
		}
		t.entries = append(t.entries, e)
	}
	return t
}

// With returns a new table with entries placed ahead of the existing ones.
func (t *NameTable) With(entries ...NameEntry) *NameTable {
	merged := append([]NameEntry{}, entries...)
	if t != nil {
		merged = append(merged, t.entries...)
	}
	return NewNameTable(merged...)
}

// Lookup returns the canonical name for the first entry matching s.
func (t *NameTable) Lookup(s string) (string, bool) {
	if t == nil {
		return "", false
	}
	for _, e := range t.entries {
		if strings.Contains(s, e.Match) {
			return e.Name, true
		}
	}
	return "", false
}

// Len returns the number of entries.
func (t *NameTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
