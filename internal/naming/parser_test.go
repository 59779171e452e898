package naming_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/eykd/dmearchive/internal/naming"
)

const (
	testMember  = "160101_NB501234_0001_AH7TG5BGXX/Unaligned/Project_Smith_Jane_10_12345/Sample_TumorA/TumorA_S1_L001_R1_001.fastq.gz"
	testTarball = "160101_NB501234_0001_AH7TG5BGXX.tar.gz"
)

func TestDerive_EndToEndFastq(t *testing.T) {
	p := naming.NewParser(naming.CCRSFRules(), naming.NewNameTable(naming.DefaultPITable...))

	got := p.Derive(naming.Source{Path: naming.MetaPath(testMember), Archive: testTarball})

	want := naming.Identity{
		PIName:             "Smith_Jane",
		ProjectID:          "12345",
		ProjectName:        "Smith_Jane_10_12345",
		SampleName:         "TumorA",
		FlowcellID:         "H7TG5BGXX",
		RunDate:            "01-01-16",
		RunName:            "160101_NB501234_0001_AH7TG5BGXX",
		SequencingPlatform: "NextSeq",
		ApplicationType:    naming.Unspecified,
		LowConfidence:      []naming.Field{naming.FieldApplicationType},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Derive() mismatch (-want +got):\n%s", diff)
	}
}

func TestMetaPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips run directory and Unaligned",
			in:   testMember,
			want: "Smith_Jane_10_12345/Sample_TumorA/TumorA_S1_L001_R1_001.fastq.gz",
		},
		{
			name: "numbered Unaligned directory",
			in:   "run/Unaligned_2/Project_Lee_Ann_22222/x.fastq.gz",
			want: "Lee_Ann_22222/x.fastq.gz",
		},
		{
			name: "uploads prefix removed",
			in:   "work/uploads/run/Unaligned/Project_A_B/f.fastq.gz",
			want: "A_B/f.fastq.gz",
		},
		{
			name: "no markers is unchanged",
			in:   "Smith_Jane/f.fastq.gz",
			want: "Smith_Jane/f.fastq.gz",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := naming.MetaPath(tt.in); got != tt.want {
				t.Errorf("MetaPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDerive_PIName(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "fourth token alpha picks first two", path: "Smith_Jane_Doe_John_12345/f", want: "Smith_Jane"},
		{name: "third token alpha picks first and third", path: "Smith_X1_Jane_12345/f", want: "Smith_Jane"},
		{name: "second token alpha picks first two", path: "Smith_Jane_10_12345/f", want: "Smith_Jane"},
		{name: "single name", path: "Smith_12345/f", want: "Smith"},
		{name: "numeric first token falls back", path: "12345_67890/f", want: naming.FacilityName},
		{name: "empty path falls back", path: "", want: naming.FacilityName},
	}
	p := naming.NewParser(naming.CCRSFRules(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Derive(naming.Source{Path: tt.path, Archive: testTarball})
			if got.PIName != tt.want {
				t.Errorf("PIName = %q, want %q", got.PIName, tt.want)
			}
		})
	}
}

func TestDerive_ContactName(t *testing.T) {
	p := naming.NewParser(naming.CCRSFRules(), nil)

	got := p.Derive(naming.Source{Path: "Smith_Jane_Doe_John_12345/f", Archive: testTarball})
	if got.ContactName != "Doe_John" {
		t.Errorf("ContactName = %q, want %q", got.ContactName, "Doe_John")
	}

	got = p.Derive(naming.Source{Path: "Smith_Jane_10_12345/f", Archive: testTarball})
	if got.ContactName != "" {
		t.Errorf("ContactName = %q, want empty", got.ContactName)
	}
}

func TestDerive_ProjectIDRequiresFiveDigits(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "Smith_Jane_10_12345/f", want: "12345"},
		{path: "Smith_Jane_1234/f", want: naming.Unspecified},
		{path: "Smith_Jane_123456_99/f", want: "123456"},
		{path: "Smith_Jane_12345_678901/f", want: "678901"},
		{path: "Smith_Jane_12a45/f", want: naming.Unspecified},
	}
	p := naming.NewParser(naming.CCRSFRules(), nil)
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := p.Derive(naming.Source{Path: tt.path, Archive: testTarball})
			if got.ProjectID != tt.want {
				t.Errorf("ProjectID = %q, want %q", got.ProjectID, tt.want)
			}
			if tt.want == naming.Unspecified && !got.IsLowConfidence(naming.FieldProjectID) {
				t.Error("expected project_id to be marked low confidence")
			}
		})
	}
}

func TestDerive_SampleName(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "sample directory", path: "P_1/Sample_TumorA/TumorA_S1_L001_R1_001.fastq.gz", want: "TumorA"},
		{name: "innermost sample directory", path: "P_1/Sample_X/Sample_Y/f_S1.fastq.gz", want: "Y"},
		{name: "falls back to name before _S", path: "P_1/Normal_B_S12_L002_R2_001.fastq.gz", want: "Normal_B"},
		{name: "last _S wins", path: "P_1/Tumor_Site_S3_R1.fastq.gz", want: "Tumor_Site"},
		{name: "Sample_ prefix on the file is not a directory", path: "P_1/Sample_Q.fastq.gz", want: naming.Unspecified},
		{name: "no marker at all", path: "P_1/reads.fastq.gz", want: naming.Unspecified},
		{name: "leading _S is not a name", path: "_S1.fastq.gz", want: naming.Unspecified},
	}
	p := naming.NewParser(naming.CCRSFRules(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Derive(naming.Source{Path: tt.path, Archive: testTarball})
			if got.SampleName != tt.want {
				t.Errorf("SampleName = %q, want %q", got.SampleName, tt.want)
			}
		})
	}
}

func TestRunFields(t *testing.T) {
	tests := []struct {
		archive  string
		flowcell string
		run      string
		date     string
		platform string
	}{
		{testTarball, "H7TG5BGXX", "160101_NB501234_0001_AH7TG5BGXX", "01-01-16", "NextSeq"},
		{"170315_J00123_0042_BHXYZ.tar", "HXYZ", "170315_J00123_0042_BHXYZ", "03-15-17", "HiSeq"},
		{"/data/180704_D00456_0100_CABCDE.tar.gz", "ABCDE", "180704_D00456_0100_CABCDE", "07-04-18", "HiSeq"},
		{"190210_M01234_0007_000000000-ABC12.tar", "00000000-ABC12", "190210_M01234_0007_000000000-ABC12", "02-10-19", "MiSeq"},
		{"200601_A00789_0123_BHNVWXDSXY.tar", "HNVWXDSXY", "200601_A00789_0123_BHNVWXDSXY", "06-01-20", "NovaSeq"},
		{"990199_Q123_1_A.tar", naming.Unspecified, "990199_Q123_1_A", naming.Unspecified, naming.Unspecified},
		{"plain.tar", naming.Unspecified, "plain", naming.Unspecified, naming.Unspecified},
		{"", naming.Unspecified, naming.Unspecified, naming.Unspecified, naming.Unspecified},
	}
	p := naming.NewParser(naming.CCRSFRules(), nil)
	for _, tt := range tests {
		t.Run(tt.archive, func(t *testing.T) {
			got := p.Derive(naming.Source{Path: "A_B_12345/f", Archive: tt.archive})
			if got.FlowcellID != tt.flowcell {
				t.Errorf("FlowcellID = %q, want %q", got.FlowcellID, tt.flowcell)
			}
			if got.RunName != tt.run {
				t.Errorf("RunName = %q, want %q", got.RunName, tt.run)
			}
			if got.RunDate != tt.date {
				t.Errorf("RunDate = %q, want %q", got.RunDate, tt.date)
			}
			if got.SequencingPlatform != tt.platform {
				t.Errorf("SequencingPlatform = %q, want %q", got.SequencingPlatform, tt.platform)
			}
		})
	}
}

// Well-formed names always yield the text after the final underscore minus
// its first character, and the run name before ".tar".
func TestFlowcellID_WellFormedNames(t *testing.T) {
	for _, date := range []string{"150101", "201231"} {
		for _, inst := range []string{"NB501234", "J00118", "M04404"} {
			for _, fc := range []string{"AH7TG5BGXX", "BC9JNNANXX", "000000000-A1B2C"} {
				for _, ext := range []string{".tar", ".tar.gz"} {
					run := date + "_" + inst + "_0001_" + fc
					name := run + ext
					got, ok := naming.FlowcellID(name)
					if !ok || got != fc[1:] {
						t.Errorf("FlowcellID(%q) = %q, %v; want %q", name, got, ok, fc[1:])
					}
					gotRun, _ := naming.RunName(name)
					if gotRun != run {
						t.Errorf("RunName(%q) = %q, want %q", name, gotRun, run)
					}
				}
			}
		}
	}
}

func TestDerive_ApplicationType(t *testing.T) {
	p := naming.NewParser(naming.CCRSFRules(), nil)
	for path, want := range map[string]string{
		"Smith_RNA_12345/f":     "RNA",
		"Smith_Chip_12345/f":    "Chip",
		"Smith_exomelib_1234/f": "exomelib",
		"Smith_12345/f":         naming.Unspecified,
	} {
		got := p.Derive(naming.Source{Path: path, Archive: testTarball})
		if got.ApplicationType != want {
			t.Errorf("ApplicationType(%q) = %q, want %q", path, got.ApplicationType, want)
		}
	}
}

func TestDerive_NameTableOverridesHeuristics(t *testing.T) {
	table := naming.NewNameTable(naming.NameEntry{Match: "Smith_Jane", Name: "Jane_Smith-Jones"})
	p := naming.NewParser(naming.CCRSFRules(), table)

	got := p.Derive(naming.Source{Path: "Smith_Jane_10_12345/Sample_A/A_S1.fastq.gz", Archive: testTarball})
	if got.PIName != "Jane_Smith-Jones" {
		t.Errorf("PIName = %q, want table value", got.PIName)
	}
	if got.IsLowConfidence(naming.FieldPIName) {
		t.Error("table hit must not be low confidence")
	}
}

func TestDerive_UnassignedSentinelBranch(t *testing.T) {
	p := naming.NewParser(naming.CCRSFRules(), nil)
	tests := []struct {
		name string
		src  naming.Source
	}{
		{"undetermined member", naming.Source{Path: "Smith_Jane_12345/Undetermined_S0_L001_R1_001.fastq.gz", Archive: testTarball}},
		{"supplement tarball", naming.Source{Archive: "160101_NB501234_0001_AH7TG5BGXX_supplement.tar"}},
		{"single cell tarball", naming.Source{Archive: "160101_NB501234_0001_AH7TG5BGXX_singlecell.tar.gz"}},
		{"10x tarball", naming.Source{Archive: "160101_NB501234_0001_10x_AH7TG5BGXX.tar"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Derive(tt.src)
			if !got.Unassigned {
				t.Fatal("expected Unassigned")
			}
			if got.PIName != naming.FacilityName || got.ProjectName != naming.Unspecified || got.SampleName != "" {
				t.Errorf("got %+v, want facility sentinel identity", got)
			}
		})
	}
}

func TestDerive_TotalOverArbitraryInput(t *testing.T) {
	p := naming.NewParser(naming.CCRSFRules(), naming.NewNameTable(naming.DefaultPITable...))
	inputs := []string{"", "/", "_", "__", "___", "a_b_c_d_e_f", "/Sample_", "Sample_/", "x.y.z", "_S", "\x00\x01", strings.Repeat("_", 100)}
	for _, path := range inputs {
		for _, archive := range inputs {
			_ = p.Derive(naming.Source{Path: path, Archive: archive})
		}
	}
}

func TestDerive_SCAF(t *testing.T) {
	p := naming.NewParser(naming.SCAFRules(), nil)

	got := p.Derive(naming.Source{
		Path:    "work/run/Unaligned/SCAF_12345678_T/sample_S1.fastq.gz",
		Archive: "Seq_170101_NB501234_0001_AHABCDEFXX.tar",
	})
	want := naming.Identity{MRN: "1234", FlowcellID: "HABCDEFXX", RunName: "Seq_170101_NB501234_0001_AHABCDEFXX"}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Derive() mismatch (-want +got):\n%s", diff)
	}

	got = p.Derive(naming.Source{Path: "work/SCAF/sample.bam"})
	if got.MRN != "" {
		t.Errorf("MRN = %q, want empty for /SCAF/ directory", got.MRN)
	}
}

func TestDerive_DirectoryRules(t *testing.T) {
	table := naming.NewNameTable(naming.NameEntry{Match: "0001", Name: "Lab_0001"})
	p := naming.NewParser(naming.DirectoryRules(), table)

	got := p.Derive(naming.Source{Path: "0001"})
	if got.PIName != "Lab_0001" || got.ProjectName != "0001" {
		t.Errorf("got PI %q project %q", got.PIName, got.ProjectName)
	}
}
