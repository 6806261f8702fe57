package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	blankRun = regexp.MustCompile(`[ \t\x{3000}]+`)
	incomeRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)[ \t]*(万|w|k|千|元)?`)
	dateRe   = regexp.MustCompile(`(\d{4})[ \t]*[年/.-][ \t]*(\d{1,2})[ \t]*[月/.-][ \t]*(\d{1,2})`)
)

// normalizeText collapses runs of blanks and trims, keeping newlines.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(blankRun.ReplaceAllString(text, " "))
}

// splitLines returns the trimmed non-empty lines of text.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// normalizeIncome converts an amount with an optional unit to 万 (10k yuan).
// 元 and a missing unit are taken as already being in 万; this matches the
// behaviour the CRM forms were built against and is pinned by tests.
func normalizeIncome(s string) (string, bool) {
	m := incomeRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(m[2]) {
	case "k", "千":
		v /= 10
	}
	return formatAmount(v), true
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// normalizeDate rewrites the first Y-M-D shaped date in s as YYYY-MM-DD.
func normalizeDate(s string) (string, bool) {
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, mo, d), true
}

func normalizeGender(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "男", "male", "m":
		return GenderMale, true
	case "女", "female", "f":
		return GenderFemale, true
	case "未知", "不详", "unknown":
		return GenderUnknown, true
	}
	return "", false
}

func normalizeLevel(s string) (string, bool) {
	switch s {
	case "高":
		return LevelHigh, true
	case "中":
		return LevelMedium, true
	case "低":
		return LevelLow, true
	}
	return "", false
}
