package extract

import (
	"regexp"
	"strings"

	"github.com/matheus3301/crmchat/internal/templates"
)

// lineRule recognises one kind of bare value on a single line. A rule is only
// consulted while at least one of its fields is unset, and the first rule that
// fires consumes the line.
type lineRule struct {
	fields []string
	apply  func(acc *accumulator, line string) bool
}

func (r lineRule) eligible(rec Record) bool {
	for _, f := range r.fields {
		if !rec.Has(f) {
			return true
		}
	}
	return false
}

var (
	linePhone   = regexp.MustCompile(`^1[3-9]\d{9}$`)
	lineIncome  = regexp.MustCompile(`(\d+(?:\.\d+)?)万`)
	lineDate    = regexp.MustCompile(`\d{4}[-/年]\d{1,2}[-/月]\d{1,2}`)
	lineGrade   = regexp.MustCompile(`([A-Da-d])级$`)
	lineRegion  = regexp.MustCompile(`[省市区县]$`)
	lineName    = regexp.MustCompile(`^\p{Han}{2,6}$`)
	lineOccupat = regexp.MustCompile(`^[\p{Han}A-Za-z]{2,10}$`)
)

// lineRules run in this order for every line.
var lineRules = []lineRule{
	{
		fields: []string{templates.FieldPhone},
		apply: func(acc *accumulator, line string) bool {
			return linePhone.MatchString(line) && acc.fill(templates.FieldPhone, line)
		},
	},
	{
		fields: []string{templates.FieldGender},
		apply: func(acc *accumulator, line string) bool {
			if line != "男" && line != "女" {
				return false
			}
			v, _ := normalizeGender(line)
			return acc.fill(templates.FieldGender, v)
		},
	},
	{
		// The number is kept as written; no unit conversion on this path.
		fields: []string{templates.FieldAnnualIncome},
		apply: func(acc *accumulator, line string) bool {
			m := lineIncome.FindStringSubmatch(line)
			return m != nil && acc.fill(templates.FieldAnnualIncome, m[1])
		},
	},
	{
		fields: []string{templates.FieldBirthDate},
		apply: func(acc *accumulator, line string) bool {
			d := lineDate.FindString(line)
			if d == "" {
				return false
			}
			v, ok := normalizeDate(d)
			return ok && acc.fill(templates.FieldBirthDate, v)
		},
	},
	{
		fields: []string{templates.FieldQualityGrade},
		apply: func(acc *accumulator, line string) bool {
			m := lineGrade.FindStringSubmatch(line)
			return m != nil && acc.fill(templates.FieldQualityGrade, strings.ToUpper(m[1]))
		},
	},
	{
		// One line sets both priority and value grade.
		fields: []string{templates.FieldPriority, templates.FieldValueGrade},
		apply: func(acc *accumulator, line string) bool {
			v, ok := normalizeLevel(line)
			if !ok {
				return false
			}
			p := acc.fill(templates.FieldPriority, v)
			g := acc.fill(templates.FieldValueGrade, v)
			return p || g
		},
	},
	{
		fields: []string{templates.FieldAddress},
		apply: func(acc *accumulator, line string) bool {
			if !lineRegion.MatchString(line) && !strings.ContainsAny(line, "区县") {
				return false
			}
			if !acc.fill(templates.FieldAddress, line) {
				return false
			}
			decomposeAddress(acc, line)
			return true
		},
	},
	{
		fields: []string{templates.FieldName},
		apply: func(acc *accumulator, line string) bool {
			return lineName.MatchString(line) && acc.fill(templates.FieldName, line)
		},
	},
	{
		fields: []string{templates.FieldOccupation},
		apply: func(acc *accumulator, line string) bool {
			if !lineOccupat.MatchString(line) || strings.ContainsAny(line, "省市区县") {
				return false
			}
			return acc.fill(templates.FieldOccupation, line)
		},
	},
}
