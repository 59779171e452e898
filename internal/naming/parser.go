package naming

import (
	"strings"

	"go.uber.org/zap"
)

// DefaultUnassignedMarkers put a source into the flowcell-level branch.
var DefaultUnassignedMarkers = []string{"Undetermined", "singlecell", "10x"}

// supplementSuffix marks supplementary run tarballs.
const supplementSuffix = "supplement.tar"

// Parser applies a RuleSet and a NameTable to sources.
type Parser struct {
	rules   RuleSet
	names   *NameTable
	markers []string
	logger  *zap.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for per-field debug output.
func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

// WithUnassignedMarkers replaces DefaultUnassignedMarkers.
func WithUnassignedMarkers(markers ...string) Option {
	return func(p *Parser) { p.markers = markers }
}

// NewParser returns a parser for the given convention. names may be nil.
func NewParser(rules RuleSet, names *NameTable, opts ...Option) *Parser {
	p := &Parser{
		rules:   rules,
		names:   names,
		markers: DefaultUnassignedMarkers,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Convention returns the rule set name.
func (p *Parser) Convention() string {
	return p.rules.Name
}

// IsUnassigned reports whether s names flowcell-level data that belongs to
// no sample: Undetermined reads, supplement tarballs, single-cell and 10x
// runs.
func (p *Parser) IsUnassigned(s string) bool {
	if strings.HasSuffix(strings.TrimSpace(s), supplementSuffix) {
		return true
	}
	for _, m := range p.markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// sampleLevelFields are replaced by sentinels for unassigned sources.
var sampleLevelFields = map[Field]string{
	FieldPIName:      FacilityName,
	FieldContactName: "",
	FieldProjectID:   Unspecified,
	FieldProjectName: Unspecified,
	FieldSampleName:  "",
}

// Derive builds the Identity for src. It never fails: fields no rule can
// derive take the convention default and are listed in LowConfidence.
func (p *Parser) Derive(src Source) Identity {
	var id Identity
	id.Unassigned = p.IsUnassigned(src.Path) || p.IsUnassigned(src.Archive)

	for _, f := range p.rules.Fields() {
		if id.Unassigned {
			if v, ok := sampleLevelFields[f]; ok {
				id.set(f, v)
				continue
			}
		}
		if f == FieldPIName {
			if name, ok := p.names.Lookup(src.Path); ok {
				p.logger.Debug("name table override", zap.String("path", src.Path), zap.String("pi_name", name))
				id.set(f, name)
				continue
			}
		}
		v, rule := p.apply(f, src)
		if rule == "" {
			v = p.rules.Default(f)
			if v != "" {
				id.LowConfidence = append(id.LowConfidence, f)
			}
		}
		p.logger.Debug("derived field",
			zap.String("field", string(f)),
			zap.String("value", v),
			zap.String("rule", rule),
			zap.String("path", src.Path),
		)
		id.set(f, v)
	}
	return id
}

func (p *Parser) apply(f Field, src Source) (string, string) {
	for _, r := range p.rules.RulesFor(f) {
		if v, ok := r.Extract(src); ok && v != "" {
			return v, r.Name
		}
	}
	return "", ""
}
