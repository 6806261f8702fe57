package extract

import (
	"regexp"

	"github.com/matheus3301/crmchat/internal/templates"
)

var (
	// Lazy two-or-more character segments with optional 省/市 and a required
	// 区/县 suffix, so "山东济南历城区" splits into 山东 / 济南 / 历城.
	regionPermissive = regexp.MustCompile(`^(\p{Han}{2,}?)省?(\p{Han}{2,}?)市?(\p{Han}{2,}?)(?:区|县)`)
	// Every segment optional but identified only by its suffix.
	regionSuffix = regexp.MustCompile(`^(?:(\p{Han}+?)省)?(?:(\p{Han}+?)市)?(?:(\p{Han}+?)(?:区|县))?`)
)

// decomposeAddress fills province, city and district from addr when it can
// find them. Fields that are already set or cannot be detected are left alone.
func decomposeAddress(acc *accumulator, addr string) {
	m := regionPermissive.FindStringSubmatch(addr)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		m = regionSuffix.FindStringSubmatch(addr)
	}
	if m == nil {
		return
	}
	acc.fill(templates.FieldProvince, m[1])
	acc.fill(templates.FieldCity, m[2])
	acc.fill(templates.FieldDistrict, m[3])
}
