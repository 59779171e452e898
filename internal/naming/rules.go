package naming

import (
	"path"
	"regexp"
	"strings"
	"time"
)

// Extractor derives one value from a source. ok is false when the rule does
// not apply; extractors never panic on malformed input.
type Extractor func(src Source) (value string, ok bool)

// Rule is a single named heuristic for one field.
type Rule struct {
	Name    string
	Field   Field
	Extract Extractor
}

// RuleSet is a naming convention: an ordered rule list plus per-field
// defaults. For each field the first rule that applies wins.
type RuleSet struct {
	Name     string
	Rules    []Rule
	Defaults map[Field]string
}

// Fields returns the fields covered by the rule set in first-seen order.
func (rs RuleSet) Fields() []Field {
	seen := make(map[Field]bool)
	var out []Field
	for _, r := range rs.Rules {
		if !seen[r.Field] {
			seen[r.Field] = true
			out = append(out, r.Field)
		}
	}
	return out
}

// RulesFor returns the rules for f in order.
func (rs RuleSet) RulesFor(f Field) []Rule {
	var out []Rule
	for _, r := range rs.Rules {
		if r.Field == f {
			out = append(out, r)
		}
	}
	return out
}

// Default returns the fallback for f, "" when none is configured.
func (rs RuleSet) Default(f Field) string {
	return rs.Defaults[f]
}

// CCRSFRules is the convention for Illumina run tarballs produced by the
// sequencing facility: "YYMMDD_<instrument>_<run>_<flowcell>.tar.gz" holding
// "<run>/Unaligned*/Project_<PI>_<contact>_<id>/Sample_<name>/<file>".
func CCRSFRules() RuleSet {
	return RuleSet{
		Name: "ccrsf",
		Rules: []Rule{
			{Name: "pi-from-project-segment", Field: FieldPIName, Extract: piFromProjectSegment},
			{Name: "contact-after-pi", Field: FieldContactName, Extract: contactFromProjectSegment},
			{Name: "numeric-project-id", Field: FieldProjectID, Extract: projectIDFromProjectSegment},
			{Name: "project-segment", Field: FieldProjectName, Extract: projectSegment},
			{Name: "sample-directory", Field: FieldSampleName, Extract: sampleFromDirectory},
			{Name: "sample-before-s-number", Field: FieldSampleName, Extract: sampleFromFileName},
			{Name: "flowcell-last-token", Field: FieldFlowcellID, Extract: flowcellFromArchive},
			{Name: "run-name", Field: FieldRunName, Extract: runNameFromArchive},
			{Name: "run-date-yymmdd", Field: FieldRunDate, Extract: runDateFromArchive},
			{Name: "instrument-letter", Field: FieldSequencingPlatform, Extract: platformFromArchive},
			{Name: "application-marker", Field: FieldApplicationType, Extract: applicationFromPath},
		},
		Defaults: map[Field]string{
			FieldPIName:             FacilityName,
			FieldProjectID:          Unspecified,
			FieldProjectName:        Unspecified,
			FieldSampleName:         Unspecified,
			FieldFlowcellID:         Unspecified,
			FieldRunName:            Unspecified,
			FieldRunDate:            Unspecified,
			FieldSequencingPlatform: Unspecified,
			FieldApplicationType:    Unspecified,
		},
	}
}

// SCAFRules is the convention for SCAF clinical runs, where the patient
// number follows the "/SCAF" directory marker.
func SCAFRules() RuleSet {
	return RuleSet{
		Name: "scaf",
		Rules: []Rule{
			{Name: "mrn-after-scaf", Field: FieldMRN, Extract: mrnFromSCAFPath},
			{Name: "flowcell-last-token", Field: FieldFlowcellID, Extract: flowcellFromArchive},
			{Name: "run-name", Field: FieldRunName, Extract: runNameFromArchive},
		},
		Defaults: map[Field]string{
			FieldFlowcellID: Unspecified,
			FieldRunName:    Unspecified,
		},
	}
}

// DirectoryRules is the convention for project directory trees: the first
// path segment names both the lab and the project.
func DirectoryRules() RuleSet {
	return RuleSet{
		Name: "directory",
		Rules: []Rule{
			{Name: "first-segment", Field: FieldPIName, Extract: projectSegment},
			{Name: "first-segment", Field: FieldProjectName, Extract: projectSegment},
		},
		Defaults: map[Field]string{
			FieldPIName:      Unspecified,
			FieldProjectName: Unspecified,
		},
	}
}

// unalignedRE matches the run directory prefix up to and including the
// bcl2fastq output directory ("Unaligned", "Unaligned_1", ...).
var unalignedRE = regexp.MustCompile(`^.*Unaligned[^/]*/`)

// MetaPath reduces an extracted member path to the part that carries naming
// information: everything through "Unaligned*/" and any "uploads/" prefix is
// removed, and "Project_" markers are dropped.
func MetaPath(p string) string {
	if i := strings.LastIndex(p, "uploads/"); i >= 0 {
		p = p[i+len("uploads/"):]
	}
	p = unalignedRE.ReplaceAllString(p, "")
	return strings.ReplaceAll(p, "Project_", "")
}

// FlowcellID returns the flowcell barcode encoded in a run or tarball name.
func FlowcellID(archive string) (string, bool) {
	return flowcellFromArchive(Source{Archive: archive})
}

// RunName returns the run or tarball name without its extensions.
func RunName(archive string) (string, bool) {
	return runNameFromArchive(Source{Archive: archive})
}

func firstSegment(p string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	return seg
}

func projectSegment(src Source) (string, bool) {
	seg := firstSegment(src.Path)
	return seg, seg != ""
}

// piFromProjectSegment assumes last and first names are separated by "_" and
// that the PI comes first:
//
//	Smith_Jane_Doe_John_12345 -> Smith_Jane (4th token alpha)
//	Smith_X1_Jane_12345       -> Smith_Jane (3rd token alpha)
//	Smith_Jane_10_12345       -> Smith_Jane (2nd token alpha)
//	Smith_12345               -> Smith
func piFromProjectSegment(src Source) (string, bool) {
	toks := Tokenize(firstSegment(src.Path), "_")
	first := at(toks, 0)
	if !first.Alpha {
		return "", false
	}
	switch {
	case at(toks, 3).Alpha:
		return first.Text + "_" + at(toks, 1).Text, true
	case at(toks, 2).Alpha:
		return first.Text + "_" + at(toks, 2).Text, true
	case at(toks, 1).Alpha:
		return first.Text + "_" + at(toks, 1).Text, true
	}
	return first.Text, true
}

func contactFromProjectSegment(src Source) (string, bool) {
	toks := Tokenize(firstSegment(src.Path), "_")
	if !at(toks, 3).Alpha {
		return "", false
	}
	return toks[2].Text + "_" + toks[3].Text, true
}

// minProjectIDLen rejects short numeric tokens such as lane or index numbers.
const minProjectIDLen = 5

func projectIDFromProjectSegment(src Source) (string, bool) {
	toks := Tokenize(firstSegment(src.Path), "_")
	id := ""
	for _, t := range toks {
		if t.Numeric && len(t.Text) >= minProjectIDLen {
			id = t.Text
		}
	}
	return id, id != ""
}

func sampleFromDirectory(src Source) (string, bool) {
	segs := strings.Split(src.Path, "/")
	name := ""
	for _, seg := range segs[:len(segs)-1] {
		if strings.HasPrefix(seg, "Sample_") {
			name = strings.TrimPrefix(seg, "Sample_")
		}
	}
	return name, name != ""
}

func sampleFromFileName(src Source) (string, bool) {
	base := path.Base(src.Path)
	i := strings.LastIndex(base, "_S")
	if i <= 0 {
		return "", false
	}
	return base[:i], true
}

func runNameFromArchive(src Source) (string, bool) {
	base := path.Base(strings.TrimSpace(src.Archive))
	if base == "." || base == "/" {
		return "", false
	}
	name, _, _ := strings.Cut(base, ".")
	return name, name != ""
}

func flowcellFromArchive(src Source) (string, bool) {
	run, ok := runNameFromArchive(src)
	if !ok {
		return "", false
	}
	toks := strings.Split(run, "_")
	if len(toks) < 2 {
		return "", false
	}
	last := toks[len(toks)-1]
	if len(last) < 2 {
		return "", false
	}
	return last[1:], true
}

func runDateFromArchive(src Source) (string, bool) {
	run, ok := runNameFromArchive(src)
	if !ok {
		return "", false
	}
	first, _, _ := strings.Cut(run, "_")
	if len(first) != 6 {
		return "", false
	}
	d, err := time.Parse("060102", first)
	if err != nil {
		return "", false
	}
	return d.Format("01-02-06"), true
}

// platformCodes maps the first letter of the instrument id to its family.
var platformCodes = map[byte]string{
	'N': "NextSeq",
	'J': "HiSeq",
	'D': "HiSeq",
	'M': "MiSeq",
	'A': "NovaSeq",
}

func platformFromArchive(src Source) (string, bool) {
	run, ok := runNameFromArchive(src)
	if !ok {
		return "", false
	}
	toks := strings.Split(run, "_")
	if len(toks) < 2 || toks[1] == "" {
		return "", false
	}
	p, ok := platformCodes[toks[1][0]]
	return p, ok
}

func applicationFromPath(src Source) (string, bool) {
	switch {
	case strings.Contains(src.Path, "RNA_"):
		return "RNA", true
	case strings.Contains(src.Path, "Chip_"):
		return "Chip", true
	case strings.Contains(src.Path, "exomelib"):
		return "exomelib", true
	}
	return "", false
}

// mrnLen is the number of characters of the patient token kept as the MRN.
const mrnLen = 4

func mrnFromSCAFPath(src Source) (string, bool) {
	_, sub, found := strings.Cut(src.Path, "/SCAF")
	if !found || strings.HasPrefix(sub, "/") {
		return "", false
	}
	toks := strings.Split(sub, "_")
	if len(toks) < 2 || len(toks[1]) < mrnLen {
		return "", false
	}
	return toks[1][:mrnLen], true
}
