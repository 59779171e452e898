// Package metadata assembles the attribute lists and JSON documents submitted
// with each registration.
package metadata

// Entry is one attribute/value pair.
type Entry struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// PathEntries is the metadata for one ancestor collection, keyed by its
// archive path.
type PathEntries struct {
	Path    string  `json:"path"`
	Entries []Entry `json:"pathMetadataEntries"`
}

// BulkMetadata describes the parent collections the archive should create
// together with the registered item.
type BulkMetadata struct {
	Paths    []PathEntries `json:"pathsMetadataEntries"`
	Defaults []Entry       `json:"defaultCollectionMetadataEntries"`
}

// Document is the JSON body passed to the registration command.
type Document struct {
	Entries                 []Entry       `json:"metadataEntries"`
	CreateParentCollections bool          `json:"createParentCollections,omitempty"`
	Parents                 *BulkMetadata `json:"parentCollectionsBulkMetadataEntries,omitempty"`
}

// Value returns the value of attr in d, or "".
func (d Document) Value(attr string) string {
	return lookup(d.Entries, attr)
}

func lookup(entries []Entry, attr string) string {
	for _, e := range entries {
		if e.Attribute == attr {
			return e.Value
		}
	}
	return ""
}

// merge overlays extra on base: matching attributes take the extra value,
// new attributes are appended in order. Empty extra values are ignored.
func merge(base, extra []Entry) []Entry {
	out := append([]Entry{}, base...)
	for _, e := range extra {
		if e.Value == "" {
			continue
		}
		replaced := false
		for i := range out {
			if out[i].Attribute == e.Attribute {
				out[i].Value = e.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, e)
		}
	}
	return out
}

// dropEmpty removes entries whose value is empty.
func dropEmpty(entries []Entry) []Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Value != "" {
			out = append(out, e)
		}
	}
	return out
}
