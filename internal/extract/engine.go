// Package extract turns free-form chat text into a partial lead/customer record.
//
// Extraction runs in two phases. The labeled pass tries each field's
// patterns, in order, against the whole normalized text. The line pass then
// scans unlabeled lines for bare values, but only for fields still empty.
// A field is written at most once per call.
package extract

import (
	"strings"

	"github.com/matheus3301/crmchat/internal/metrics"
	"github.com/matheus3301/crmchat/internal/templates"
)

// Enumerated values written into a Record.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderUnknown = "unknown"

	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

const (
	phaseLabel = "label"
	phaseLine  = "line"
)

// Record maps field names to extracted values. Address decomposition is
// flattened into the province, city and district keys.
type Record map[string]string

// Has reports whether field was extracted.
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// Engine extracts records. The zero value is ready to use.
type Engine struct {
	report func(field, phase string)
}

// New returns an engine that does not report metrics.
func New() *Engine {
	return &Engine{}
}

// NewInstrumented returns an engine that counts filled fields in Prometheus.
func NewInstrumented() *Engine {
	return &Engine{report: func(field, phase string) {
		metrics.FieldsExtracted.WithLabelValues(field, phase).Inc()
	}}
}

// Extract runs both phases over text. Patterns come from set when it has a
// non-empty list for a field, otherwise from the built-in defaults. It never
// fails; a missing key is the only signal that a field was not found.
func (e *Engine) Extract(text string, set *templates.Set) Record {
	acc := &accumulator{rec: Record{}, report: e.report}
	if strings.TrimSpace(text) == "" {
		return acc.rec
	}

	acc.phase = phaseLabel
	normalized := normalizeText(text)
	for _, field := range templates.LabeledFields {
		if acc.rec.Has(field) {
			continue
		}
		patterns := set.Compiled(field)
		if len(patterns) == 0 {
			patterns = templates.Defaults().Compiled(field)
		}
		for _, re := range patterns {
			m := re.FindStringSubmatch(normalized)
			if m == nil {
				continue
			}
			if applyLabeled(acc, field, m) {
				break
			}
		}
	}

	acc.phase = phaseLine
	for _, line := range splitLines(text) {
		for _, rule := range lineRules {
			if !rule.eligible(acc.rec) {
				continue
			}
			if rule.apply(acc, line) {
				break
			}
		}
	}
	return acc.rec
}

// accumulator is the partial record threaded through both phases.
type accumulator struct {
	rec    Record
	phase  string
	report func(field, phase string)
}

// fill writes value unless it is empty or field is already set.
func (a *accumulator) fill(field, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || a.rec.Has(field) {
		return false
	}
	a.rec[field] = value
	if a.report != nil {
		a.report(field, a.phase)
	}
	return true
}

// applyLabeled converts a pattern match into the field's value. A match that
// does not normalize counts as no match, so the next pattern is tried.
func applyLabeled(acc *accumulator, field string, m []string) bool {
	switch field {
	case templates.FieldGender:
		v, ok := normalizeGender(firstGroup(m))
		return ok && acc.fill(field, v)
	case templates.FieldAnnualIncome:
		v, ok := normalizeIncome(joinGroups(m, ""))
		return ok && acc.fill(field, v)
	case templates.FieldBirthDate, templates.FieldFollowUpDate:
		v, ok := normalizeDate(joinGroups(m, "-"))
		return ok && acc.fill(field, v)
	case templates.FieldAddress:
		addr := firstGroup(m)
		if !acc.fill(field, addr) {
			return false
		}
		decomposeAddress(acc, strings.TrimSpace(addr))
		return true
	default:
		return acc.fill(field, firstGroup(m))
	}
}

// firstGroup returns the first non-empty capture group, or the whole match
// for patterns without groups.
func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return m[0]
}

func joinGroups(m []string, sep string) string {
	var parts []string
	for _, g := range m[1:] {
		if g != "" {
			parts = append(parts, g)
		}
	}
	if len(parts) == 0 {
		return m[0]
	}
	return strings.Join(parts, sep)
}
