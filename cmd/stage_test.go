package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStageCmd_RequiresTwoArgs(t *testing.T) {
	if _, _, err := executeSub(t, NewStageCmd(newDefaultStageIO()), "base"); err == nil {
		t.Error("expected error for missing pi list")
	}
}

func TestNewStageCmd_StagesLooseBam(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "PI_Doe", "SCAF_1234ABC_x", "sample.bam")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("bam!"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "pis.txt"), []byte("PI_Doe\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := executeSub(t, NewStageCmd(newDefaultStageIO()), base, "pis.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	staged := filepath.Join(base, "staged", "PI_Doe", "Patient_1234", "sample.bam")
	if got, err := os.ReadFile(staged); err != nil || string(got) != "bam!" {
		t.Errorf("staged file = %q, %v", got, err)
	}
	if !strings.Contains(out, "1 files, 4 bytes") {
		t.Errorf("output = %q, want totals", out)
	}
	if _, err := os.Stat(filepath.Join(base, "work", "included.csv")); err != nil {
		t.Errorf("expected audit in work dir: %v", err)
	}
}
