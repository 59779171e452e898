// Package naming derives identity records (PI, project, flowcell, sample, run)
// from the file and directory naming conventions used by the sequencing
// facility.
package naming

// Field names one derivable component of an Identity. The string value is the
// metadata attribute name used in the archive.
type Field string

const (
	// FieldPIName is the principal investigator, e.g. "Smith_Jane".
	FieldPIName Field = "pi_name"
	// FieldContactName is the lab contact listed after the PI, when present.
	FieldContactName Field = "contact_name"
	// FieldProjectID is the numeric project identifier (five or more digits).
	FieldProjectID Field = "project_id"
	// FieldProjectName is the project directory name.
	FieldProjectName Field = "project_name"
	// FieldSampleName is the sample a data file belongs to.
	FieldSampleName Field = "sample_name"
	// FieldFlowcellID is the flowcell barcode taken from the run name.
	FieldFlowcellID Field = "flowcell_id"
	// FieldRunDate is the run date rendered as MM-DD-YY.
	FieldRunDate Field = "run_date"
	// FieldRunName is the tarball name without extensions.
	FieldRunName Field = "run_name"
	// FieldSequencingPlatform is the instrument family (NextSeq, HiSeq, ...).
	FieldSequencingPlatform Field = "sequencing_platform"
	// FieldApplicationType is the library application (RNA, Chip, exomelib).
	FieldApplicationType Field = "sequencing_application_type"
	// FieldMRN is the four-character patient number used by SCAF staging.
	FieldMRN Field = "mrn"
)

// Sentinel values used when no rule produced a value.
const (
	Unspecified  = "Unspecified"
	FacilityName = "CCRSF"
)

// Identity is the record derived from one source path. Fields are derived
// independently of each other; no cross-field consistency check is made.
type Identity struct {
	PIName             string `json:"pi_name"`
	ContactName        string `json:"contact_name,omitempty"`
	ProjectID          string `json:"project_id"`
	ProjectName        string `json:"project_name"`
	SampleName         string `json:"sample_name,omitempty"`
	FlowcellID         string `json:"flowcell_id,omitempty"`
	RunDate            string `json:"run_date,omitempty"`
	RunName            string `json:"run_name,omitempty"`
	SequencingPlatform string `json:"sequencing_platform,omitempty"`
	ApplicationType    string `json:"sequencing_application_type,omitempty"`
	MRN                string `json:"mrn,omitempty"`

	// Unassigned is set for flowcell-level data (Undetermined reads,
	// supplement, single-cell and 10x tarballs) that belongs to no sample.
	Unassigned bool `json:"unassigned,omitempty"`
	// LowConfidence lists the fields that fell back to their default.
	LowConfidence []Field `json:"low_confidence,omitempty"`
}

// Get returns the value of f, or "" for an unknown field.
func (id Identity) Get(f Field) string {
	switch f {
	case FieldPIName:
		return id.PIName
	case FieldContactName:
		return id.ContactName
	case FieldProjectID:
		return id.ProjectID
	case FieldProjectName:
		return id.ProjectName
	case FieldSampleName:
		return id.SampleName
	case FieldFlowcellID:
		return id.FlowcellID
	case FieldRunDate:
		return id.RunDate
	case FieldRunName:
		return id.RunName
	case FieldSequencingPlatform:
		return id.SequencingPlatform
	case FieldApplicationType:
		return id.ApplicationType
	case FieldMRN:
		return id.MRN
	}
	return ""
}

func (id *Identity) set(f Field, v string) {
	switch f {
	case FieldPIName:
		id.PIName = v
	case FieldContactName:
		id.ContactName = v
	case FieldProjectID:
		id.ProjectID = v
	case FieldProjectName:
		id.ProjectName = v
	case FieldSampleName:
		id.SampleName = v
	case FieldFlowcellID:
		id.FlowcellID = v
	case FieldRunDate:
		id.RunDate = v
	case FieldRunName:
		id.RunName = v
	case FieldSequencingPlatform:
		id.SequencingPlatform = v
	case FieldApplicationType:
		id.ApplicationType = v
	case FieldMRN:
		id.MRN = v
	}
}

// IsLowConfidence reports whether f fell back to its default value.
func (id Identity) IsLowConfidence(f Field) bool {
	for _, lc := range id.LowConfidence {
		if lc == f {
			return true
		}
	}
	return false
}

// Source is the input to derivation.
type Source struct {
	// Path is the relative metadata path, e.g.
	// "Smith_Jane_10_12345/Sample_TumorA/TumorA_S1_L001_R1_001.fastq.gz".
	Path string
	// Archive is the tarball or run name, e.g.
	// "160101_NB501234_0001_AH7TG5BGXX.tar.gz".
	Archive string
}
