package hierarchy

import (
	"fmt"

	"github.com/eykd/dmearchive/internal/naming"
)

// Level is one fixed level of a Template: the collection type, its segment
// prefix and the identity field the segment name is taken from.
type Level struct {
	Type   CollectionType `yaml:"type"`
	Prefix string         `yaml:"prefix"`
	Field  naming.Field   `yaml:"field"`
}

// Template is an archive path layout: a base path and its levels in
// parent-to-child order.
type Template struct {
	Name   string  `yaml:"name"`
	Base   string  `yaml:"base"`
	Levels []Level `yaml:"levels"`
}

// CCRSF is the sequencing facility layout:
// /FNL_SF_Archive/PI_Lab_<pi>/Project_<project>/Flowcell_<flowcell>/Sample_<sample>.
func CCRSF() Template {
	return Template{
		Name: "ccrsf",
		Base: "/FNL_SF_Archive",
		Levels: []Level{
			{Type: PILab, Prefix: "PI_Lab_", Field: naming.FieldPIName},
			{Type: Project, Prefix: "Project_", Field: naming.FieldProjectName},
			{Type: Flowcell, Prefix: "Flowcell_", Field: naming.FieldFlowcellID},
			{Type: Sample, Prefix: "Sample_", Field: naming.FieldSampleName},
		},
	}
}

// CMM is the microscopy layout. Only the lab and project levels are fixed;
// directories below the project become Folder, Run, Grid or Images nodes.
func CMM() Template {
	return Template{
		Name: "cmm",
		Base: "/CMM_Archive",
		Levels: []Level{
			{Type: PILab, Prefix: "PI_Lab_", Field: naming.FieldPIName},
			{Type: Project, Prefix: "Project_", Field: naming.FieldProjectName},
		},
	}
}

// SCAF is the staging layout relative to a PI directory:
// Patient_<mrn>/Run_<flowcell>.
func SCAF() Template {
	return Template{
		Name: "scaf",
		Base: "",
		Levels: []Level{
			{Type: Folder, Prefix: "Patient_", Field: naming.FieldMRN},
			{Type: Run, Prefix: "Run_", Field: naming.FieldFlowcellID},
		},
	}
}

// HiTIF is the imaging facility layout:
// /HiTIF_Archive/PI_<pi>/User_<user>/Exp_<experiment>. Segments are built
// with Builder.Named from the users file, not from identity fields.
func HiTIF() Template {
	return Template{
		Name: "hitif",
		Base: "/HiTIF_Archive",
		Levels: []Level{
			{Type: PILab, Prefix: "PI_", Field: naming.FieldPIName},
			{Type: Folder, Prefix: "User_", Field: naming.FieldContactName},
			{Type: Run, Prefix: "Exp_", Field: naming.FieldRunName},
		},
	}
}

// Preset returns the named built-in template.
func Preset(name string) (Template, error) {
	switch name {
	case "ccrsf":
		return CCRSF(), nil
	case "cmm":
		return CMM(), nil
	case "scaf":
		return SCAF(), nil
	case "hitif":
		return HiTIF(), nil
	}
	return Template{}, fmt.Errorf("unknown template %q", name)
}

// Validate checks that every level has a known type and that no type
// appears twice.
func (t Template) Validate() error {
	seen := make(map[CollectionType]bool)
	for _, l := range t.Levels {
		if !l.Type.Valid() {
			return fmt.Errorf("template %s: %w: %q", t.Name, ErrInvalidCollectionType, l.Type)
		}
		if seen[l.Type] {
			return fmt.Errorf("template %s: duplicate level %s", t.Name, l.Type)
		}
		if l.Field == "" {
			return fmt.Errorf("template %s: level %s has no field", t.Name, l.Type)
		}
		seen[l.Type] = true
	}
	return nil
}

// depth returns the index of the level for rt, or -1.
func (t Template) depth(rt CollectionType) int {
	for i, l := range t.Levels {
		if l.Type == rt {
			return i
		}
	}
	return -1
}

// Supports reports whether the template has a level for rt.
func (t Template) Supports(rt CollectionType) bool {
	return t.depth(rt) >= 0
}
