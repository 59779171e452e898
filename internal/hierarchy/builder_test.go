package hierarchy_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/eykd/dmearchive/internal/hierarchy"
	"github.com/eykd/dmearchive/internal/naming"
)

func smithIdentity() naming.Identity {
	return naming.Identity{
		PIName:      "Smith_Jane",
		ProjectID:   "12345",
		ProjectName: "Smith_Jane_10_12345",
		SampleName:  "TumorA",
		FlowcellID:  "H7TG5BGXX",
	}
}

func mustBuilder(t *testing.T, tmpl hierarchy.Template) *hierarchy.Builder {
	t.Helper()
	b, err := hierarchy.NewBuilder(tmpl)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b
}

func TestBuilder_Path_CCRSF(t *testing.T) {
	b := mustBuilder(t, hierarchy.CCRSF())
	id := smithIdentity()

	tests := []struct {
		rt   hierarchy.CollectionType
		want string
	}{
		{hierarchy.PILab, "/FNL_SF_Archive/PI_Lab_Smith_Jane"},
		{hierarchy.Project, "/FNL_SF_Archive/PI_Lab_Smith_Jane/Project_Smith_Jane_10_12345"},
		{hierarchy.Flowcell, "/FNL_SF_Archive/PI_Lab_Smith_Jane/Project_Smith_Jane_10_12345/Flowcell_H7TG5BGXX"},
		{hierarchy.Sample, "/FNL_SF_Archive/PI_Lab_Smith_Jane/Project_Smith_Jane_10_12345/Flowcell_H7TG5BGXX/Sample_TumorA"},
	}
	for _, tt := range tests {
		t.Run(string(tt.rt), func(t *testing.T) {
			got, err := b.Path(tt.rt, id)
			if err != nil {
				t.Fatalf("Path(%s) error: %v", tt.rt, err)
			}
			if got != tt.want {
				t.Errorf("Path(%s) = %q, want %q", tt.rt, got, tt.want)
			}
		})
	}
}

func TestBuilder_EndToEndFromDerivedIdentity(t *testing.T) {
	p := naming.NewParser(naming.CCRSFRules(), naming.NewNameTable(naming.DefaultPITable...))
	id := p.Derive(naming.Source{
		Path:    naming.MetaPath("160101_NB501234_0001_AH7TG5BGXX/Unaligned/Project_Smith_Jane_10_12345/Sample_TumorA/TumorA_S1_L001_R1_001.fastq.gz"),
		Archive: "160101_NB501234_0001_AH7TG5BGXX.tar.gz",
	})
	got, err := mustBuilder(t, hierarchy.CCRSF()).Path(hierarchy.Sample, id)
	if err != nil {
		t.Fatal(err)
	}
	want := "/FNL_SF_Archive/PI_Lab_Smith_Jane/Project_Smith_Jane_10_12345/Flowcell_H7TG5BGXX/Sample_TumorA"
	if got != want {
		t.Errorf("Path(Sample) = %q, want %q", got, want)
	}
}

func TestBuilder_Deterministic(t *testing.T) {
	b := mustBuilder(t, hierarchy.CCRSF())
	first, _ := b.Path(hierarchy.Sample, smithIdentity())
	for i := 0; i < 10; i++ {
		got, _ := b.Path(hierarchy.Sample, smithIdentity())
		if got != first {
			t.Fatalf("run %d: Path = %q, want %q", i, got, first)
		}
	}
}

func TestBuilder_DistinctSamplesGiveDistinctPaths(t *testing.T) {
	b := mustBuilder(t, hierarchy.CCRSF())
	names := []string{"A", "B", "TumorA", "Tumor_A", "TumorA_1", "tumora", "A-1", "A.1", "Sample_A", "1"}
	seen := make(map[string]string)
	for _, name := range names {
		id := smithIdentity()
		id.SampleName = name
		got, err := b.Path(hierarchy.Sample, id)
		if err != nil {
			t.Fatal(err)
		}
		if prev, dup := seen[got]; dup {
			t.Errorf("samples %q and %q share path %q", prev, name, got)
		}
		seen[got] = name
	}
}

func TestBuilder_InvalidCollectionType(t *testing.T) {
	tests := []struct {
		name string
		tmpl hierarchy.Template
		rt   hierarchy.CollectionType
	}{
		{"unknown type", hierarchy.CCRSF(), hierarchy.CollectionType("Lane")},
		{"empty type", hierarchy.CCRSF(), ""},
		{"known type missing from template", hierarchy.CCRSF(), hierarchy.Grid},
		{"flowcell in cmm", hierarchy.CMM(), hierarchy.Flowcell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mustBuilder(t, tt.tmpl).Path(tt.rt, smithIdentity())
			if !errors.Is(err, hierarchy.ErrInvalidCollectionType) {
				t.Errorf("Path(%q) error = %v, want ErrInvalidCollectionType", tt.rt, err)
			}
		})
	}
}

func TestParseCollectionType(t *testing.T) {
	for _, ct := range hierarchy.AllTypes {
		got, err := hierarchy.ParseCollectionType(string(ct))
		if err != nil || got != ct {
			t.Errorf("ParseCollectionType(%q) = %q, %v", ct, got, err)
		}
	}
	for _, bad := range []string{"", "pi_lab", "Lane", "Sample "} {
		if _, err := hierarchy.ParseCollectionType(bad); !errors.Is(err, hierarchy.ErrInvalidCollectionType) {
			t.Errorf("ParseCollectionType(%q) error = %v, want ErrInvalidCollectionType", bad, err)
		}
	}
}

func TestNewBuilder_RejectsBadTemplate(t *testing.T) {
	tests := []hierarchy.Template{
		{Name: "bad-type", Levels: []hierarchy.Level{{Type: "Lane", Field: naming.FieldRunName}}},
		{Name: "dup", Levels: []hierarchy.Level{
			{Type: hierarchy.Folder, Field: naming.FieldMRN},
			{Type: hierarchy.Folder, Field: naming.FieldRunName},
		}},
		{Name: "no-field", Levels: []hierarchy.Level{{Type: hierarchy.Run}}},
	}
	for _, tmpl := range tests {
		if _, err := hierarchy.NewBuilder(tmpl); err == nil {
			t.Errorf("NewBuilder(%s) = nil error, want error", tmpl.Name)
		}
	}
}

func TestBuilder_EmptyFieldUsesUnspecified(t *testing.T) {
	id := smithIdentity()
	id.FlowcellID = ""
	got, _ := mustBuilder(t, hierarchy.CCRSF()).Path(hierarchy.Flowcell, id)
	want := "/FNL_SF_Archive/PI_Lab_Smith_Jane/Project_Smith_Jane_10_12345/Flowcell_Unspecified"
	if got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestBuilder_SCAFRelativeLayout(t *testing.T) {
	id := naming.Identity{MRN: "1234", FlowcellID: "HABCDEFXX"}
	got, err := mustBuilder(t, hierarchy.SCAF()).Path(hierarchy.Run, id)
	if err != nil {
		t.Fatal(err)
	}
	if want := "/Patient_1234/Run_HABCDEFXX"; got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestNode_ChainAndAncestors(t *testing.T) {
	chain, err := mustBuilder(t, hierarchy.CMM()).Chain(hierarchy.Project, naming.Identity{PIName: "Lee", ProjectName: "0001"})
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 2 {
		t.Fatalf("len(chain) = %d, want 2", len(chain))
	}
	run := chain[1].Child(hierarchy.Run, "run_01")
	grid := run.Child(hierarchy.Grid, "grid3")

	if want := "/CMM_Archive/PI_Lab_Lee/Project_0001/run_01/grid3"; grid.Path() != want {
		t.Errorf("Path = %q, want %q", grid.Path(), want)
	}
	anc := grid.Ancestors()
	var got []string
	for _, a := range anc {
		got = append(got, fmt.Sprintf("%s:%s", a.Type, a.Segment))
	}
	want := []string{"PI_Lab:PI_Lab_Lee", "Project:Project_0001", "Run:run_01"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Ancestors = %v, want %v", got, want)
	}
	if p := hierarchy.DataObjectPath(grid, "/data/x/img_001.tif"); p != "/CMM_Archive/PI_Lab_Lee/Project_0001/run_01/grid3/img_001.tif" {
		t.Errorf("DataObjectPath = %q", p)
	}
}

func TestPreset(t *testing.T) {
	for _, name := range []string{"ccrsf", "cmm", "scaf", "hitif"} {
		tmpl, err := hierarchy.Preset(name)
		if err != nil || tmpl.Name != name {
			t.Errorf("Preset(%q) = %q, %v", name, tmpl.Name, err)
		}
	}
	if _, err := hierarchy.Preset("nope"); err == nil {
		t.Error("Preset(nope) = nil error")
	}
}

func TestBuilder_NamedHiTIF(t *testing.T) {
	b, err := hierarchy.NewBuilder(hierarchy.HiTIF())
	if err != nil {
		t.Fatal(err)
	}
	pi, err := b.Named(hierarchy.PILab, nil, "Smith Jane", "Smith_Jane")
	if err != nil {
		t.Fatal(err)
	}
	user, err := b.Named(hierarchy.Folder, pi, "Roe Jane", "Roe_Jane")
	if err != nil {
		t.Fatal(err)
	}
	exp, err := b.Named(hierarchy.Run, user, "plate 1", "plate_1")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := exp.Path(), "/HiTIF_Archive/PI_Smith_Jane/User_Roe_Jane/Exp_plate_1"; got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
	if pi.Name != "Smith Jane" {
		t.Errorf("Name = %q, want the unsanitized name", pi.Name)
	}
	if _, err := b.Named(hierarchy.Sample, exp, "x", "x"); !errors.Is(err, hierarchy.ErrInvalidCollectionType) {
		t.Errorf("Named(Sample) error = %v, want ErrInvalidCollectionType", err)
	}
}
