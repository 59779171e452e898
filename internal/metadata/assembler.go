package metadata

import (
	"fmt"
	"path"
	"strings"

	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/naming"
)

// DefaultParentType is the collection_type given to parent collections the
// archive creates without explicit metadata.
const DefaultParentType = "Folder"

// Object describes a data object being registered.
type Object struct {
	// Name is the file name in the archive.
	Name string
	// SourcePath is where the file was read from.
	SourcePath string
	Identity   naming.Identity
	// Attributes are appended to the derived entries.
	Attributes []Entry
}

// Assembler builds metadata entries and documents. The zero value is usable
// and merges no external rows.
type Assembler struct {
	rows *Rows
}

// NewAssembler returns an assembler that overlays rows on derived entries.
// rows may be nil.
func NewAssembler(rows *Rows) *Assembler {
	return &Assembler{rows: rows}
}

// ForCollection returns the ordered entries for n. Empty values are dropped.
// An external row applies only to the collection whose own entries carry the
// key column, so a project_id row lands on the Project and nowhere else.
func (a *Assembler) ForCollection(n *hierarchy.Node) ([]Entry, error) {
	id := n.Identity
	entries := []Entry{{Attribute: "collection_type", Value: string(n.Type)}}
	switch n.Type {
	case hierarchy.PILab:
		entries = append(entries,
			Entry{"pi_name", n.Name},
			Entry{"contact_name", id.ContactName},
		)
	case hierarchy.Project:
		entries = append(entries,
			Entry{"project_id", id.ProjectID},
			Entry{"project_name", n.Name},
			Entry{"contact_name", id.ContactName},
		)
	case hierarchy.Flowcell:
		entries = append(entries,
			Entry{"flowcell_id", n.Name},
			Entry{"run_name", id.RunName},
			Entry{"run_date", id.RunDate},
			Entry{"sequencing_platform", id.SequencingPlatform},
			Entry{"sequencing_application_type", id.ApplicationType},
		)
	case hierarchy.Sample:
		entries = append(entries, Entry{"sample_name", n.Name})
	case hierarchy.Folder, hierarchy.Run, hierarchy.Grid, hierarchy.Images:
		entries = append(entries, Entry{"collection_name", n.Name})
	default:
		return nil, fmt.Errorf("%w: %q", hierarchy.ErrInvalidCollectionType, n.Type)
	}
	for _, attr := range n.Attributes {
		entries = append(entries, Entry{attr.Name, attr.Value})
	}
	if extra, ok := a.rows.Lookup(lookup(entries, a.rows.KeyColumn())); ok {
		entries = merge(entries, extra)
	}
	entries = dropEmpty(entries)
	if err := validateEntries(entries); err != nil {
		return nil, fmt.Errorf("%s %s: %w", n.Type, n.Name, err)
	}
	return entries, nil
}

// ForObject returns the ordered entries for a data object.
func (a *Assembler) ForObject(obj Object) ([]Entry, error) {
	entries := []Entry{
		{"object_name", obj.Name},
		{"file_type", FileType(obj.Name)},
		{"source_path", obj.SourcePath},
	}
	if !obj.Identity.Unassigned {
		entries = append(entries, Entry{"sample_name", obj.Identity.SampleName})
	}
	entries = append(entries, Entry{"flowcell_id", obj.Identity.FlowcellID})
	entries = append(entries, obj.Attributes...)
	entries = dropEmpty(entries)
	if err := validateEntries(entries); err != nil {
		return nil, fmt.Errorf("object %s: %w", obj.Name, err)
	}
	return entries, nil
}

// CollectionDocument returns the registration document for n. When
// withParents is set and n has ancestors, their metadata is attached so the
// archive can create the whole chain in one request.
func (a *Assembler) CollectionDocument(n *hierarchy.Node, withParents bool) (Document, error) {
	entries, err := a.ForCollection(n)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Entries: entries}
	if withParents && n.Parent != nil {
		if err := a.attachParents(&doc, n.Ancestors()); err != nil {
			return Document{}, err
		}
	}
	return doc, nil
}

// ObjectDocument returns the registration document for obj stored under
// parent. With withParents, parent and all its ancestors are attached.
func (a *Assembler) ObjectDocument(parent *hierarchy.Node, obj Object, withParents bool) (Document, error) {
	entries, err := a.ForObject(obj)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Entries: entries}
	if withParents && parent != nil {
		chain := append(parent.Ancestors(), parent)
		if err := a.attachParents(&doc, chain); err != nil {
			return Document{}, err
		}
	}
	return doc, nil
}

func (a *Assembler) attachParents(doc *Document, chain []*hierarchy.Node) error {
	bulk := &BulkMetadata{Defaults: []Entry{{Attribute: "collection_type", Value: DefaultParentType}}}
	for _, p := range chain {
		entries, err := a.ForCollection(p)
		if err != nil {
			return fmt.Errorf("parent %s: %w", p.Path(), err)
		}
		bulk.Paths = append(bulk.Paths, PathEntries{Path: p.Path(), Entries: entries})
	}
	doc.CreateParentCollections = true
	doc.Parents = bulk
	return nil
}

// FileType returns the extension of name after its first dot, e.g.
// "fastq.gz" for "A_S1_R1_001.fastq.gz". Names without one yield "".
func FileType(name string) string {
	base := path.Base(name)
	_, ext, found := strings.Cut(strings.TrimPrefix(base, "."), ".")
	if !found {
		return ""
	}
	return ext
}
