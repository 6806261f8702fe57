package extract

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/crmchat/internal/metrics"
	"github.com/matheus3301/crmchat/internal/templates"
)

func extract(t *testing.T, text string) Record {
	t.Helper()
	return New().Extract(text, templates.Defaults())
}

func TestExtractLabeledBlock(t *testing.T) {
	got := extract(t, "姓名：王芳\n手机：13912345678\n年收入：12万")
	assert.Equal(t, Record{
		"name":          "王芳",
		"phone":         "13912345678",
		"annual_income": "12",
	}, got)
}

func TestExtractBareAddressLine(t *testing.T) {
	got := extract(t, "山东济南历城区")
	assert.Equal(t, Record{
		"address":  "山东济南历城区",
		"province": "山东",
		"city":     "济南",
		"district": "历城",
	}, got)
}

// A lone 高/中/低 line writes both priority and value_grade.
func TestExtractGradeAndLevelLines(t *testing.T) {
	got := extract(t, "B级\n高")
	assert.Equal(t, Record{
		"quality_grade": "B",
		"priority":      "high",
		"value_grade":   "high",
	}, got)
}

func TestLabeledValueBeatsBareLine(t *testing.T) {
	for _, text := range []string{
		"电话: 13800138000\n13900139001",
		"13900139001\n电话: 13800138000",
	} {
		got := extract(t, text)
		assert.Equal(t, "13800138000", got["phone"], "text %q", text)
	}
}

func TestFirstLineWins(t *testing.T) {
	got := extract(t, "王芳\n李雷\n低\n高\nc级\na级")
	assert.Equal(t, "王芳", got["name"])
	assert.Equal(t, LevelLow, got["priority"])
	assert.Equal(t, LevelLow, got["value_grade"])
	assert.Equal(t, "C", got["quality_grade"])
	// 李雷 is not a name anymore, so it falls through to occupation.
	assert.Equal(t, "李雷", got["occupation"])
}

func TestFirstLevelLineWins(t *testing.T) {
	got := extract(t, "中\n高")
	assert.Equal(t, LevelMedium, got["priority"])
	assert.Equal(t, LevelMedium, got["value_grade"])
}

func TestIncomeNormalization(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"年收入：12万", "12"},
		{"年收入：12W", "12"},
		{"年收入：150k", "15"},
		{"年收入: 8千", "0.8"},
		{"年收入：12.5万", "12.5"},
		{"年收入：1.234万", "1.23"},
		// 元 and a bare number are NOT divided by 10000: the value is taken
		// as already being in 万. Kept on purpose until product decides.
		{"年收入：30元", "30"},
		{"年收入：30", "30"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, extract(t, tt.text)["annual_income"])
		})
	}
}

func TestLabelDoesNotReadTheNextLine(t *testing.T) {
	got := extract(t, "姓名：\n手机：13912345678")
	assert.NotEqual(t, "手机", got["name"])
	assert.Equal(t, "13912345678", got["phone"])

	// The K of the next line is not a thousands unit.
	got = extract(t, "年收入：50\nKevin")
	assert.Equal(t, "50", got["annual_income"])

	got = extract(t, "出生日期：1990\n3月7日")
	assert.NotEqual(t, "1990-03-07", got["birth_date"])
}

func TestIncomeLineKeepsNumberAsWritten(t *testing.T) {
	got := extract(t, "大概 20.50万 左右")
	assert.Equal(t, "20.50", got["annual_income"])
}

func TestDates(t *testing.T) {
	got := extract(t, "出生日期：1990年3月7日")
	assert.Equal(t, "1990-03-07", got["birth_date"])

	got = extract(t, "生日: 1985/12/1")
	assert.Equal(t, "1985-12-01", got["birth_date"])

	got = extract(t, "下次跟进时间：2024-5-20")
	assert.Equal(t, "2024-05-20", got["follow_up_date"])

	got = extract(t, "备注\n1992/06/09")
	assert.Equal(t, "1992-06-09", got["birth_date"])
}

func TestLabeledFields(t *testing.T) {
	text := strings.Join([]string{
		"客户名：Alice",
		"性别：女",
		"邮箱：alice.w@example.com",
		"微信：alice_2024",
		"身份证：11010119900307123X",
		"公司：星辰科技有限公司",
		"职业： 产品经理",
		"来源：转介绍",
		"邮编：250100",
	}, "\n")
	got := extract(t, text)
	assert.Equal(t, "Alice", got["name"])
	assert.Equal(t, GenderFemale, got["gender"])
	assert.Equal(t, "alice.w@example.com", got["email"])
	assert.Equal(t, "alice_2024", got["wechat"])
	assert.Equal(t, "11010119900307123X", got["identification_number"])
	assert.Equal(t, "星辰科技有限公司", got["company"])
	assert.Equal(t, "产品经理", got["occupation"])
	assert.Equal(t, "转介绍", got["source"])
	assert.Equal(t, "250100", got["postal_code"])
	assert.False(t, got.Has("phone"), "digits inside the id number must not be read as a phone")
}

func TestGenderUnknown(t *testing.T) {
	assert.Equal(t, GenderUnknown, extract(t, "性别：不详")["gender"])
	assert.Equal(t, GenderMale, extract(t, "男")["gender"])
}

func TestLabeledAddressDecomposition(t *testing.T) {
	got := extract(t, "地址：山东省济南市历城区工业北路88号")
	assert.Equal(t, "山东省济南市历城区工业北路88号", got["address"])
	assert.Equal(t, "山东", got["province"])
	assert.Equal(t, "济南", got["city"])
	assert.Equal(t, "历城", got["district"])

	got = extract(t, "地址：北京市朝阳区建国路")
	assert.Equal(t, "北京", got["city"])
	assert.Equal(t, "朝阳", got["district"])
	assert.False(t, got.Has("province"))
}

func TestSuffixOnlyAddressLine(t *testing.T) {
	got := extract(t, "广州市天河区")
	assert.Equal(t, "广州市天河区", got["address"])
	assert.Equal(t, "广州", got["city"])
	assert.Equal(t, "天河", got["district"])
}

func TestCustomTemplatesOverrideDefaults(t *testing.T) {
	s := templates.NewStore(nil, nil)
	require.NoError(t, s.Import(`{"name": ["客户[:：](\\S+)"], "email": []}`))

	got := New().Extract("客户：张三\n姓名：李四\n邮箱：z@corp.cn\n手机 13512345678", s.Active())
	assert.Equal(t, "张三", got["name"])
	// Empty custom list falls back to the defaults.
	assert.Equal(t, "z@corp.cn", got["email"])
	// Absent field falls back to the defaults.
	assert.Equal(t, "13512345678", got["phone"])
}

func TestNonNormalizingMatchTriesNextPattern(t *testing.T) {
	s := templates.NewStore(nil, nil)
	require.NoError(t, s.Import(`{"gender": ["性别[:：](\\S+)", "(男|女)士"]}`))
	got := New().Extract("性别：保密\n王女士", s.Active())
	assert.Equal(t, GenderFemale, got["gender"])
}

func TestExtractIsDeterministic(t *testing.T) {
	text := "姓名：王芳\n山东济南历城区\nB级\n高\n13912345678\n年收入：12万"
	first := extract(t, text)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, extract(t, text))
	}
}

func TestExtractToleratesGarbage(t *testing.T) {
	for _, text := range []string{
		"",
		"   \n\t\n",
		"：：：",
		"\x00\xff\xfe",
		strings.Repeat("区", 5000),
		"姓名：",
		"年收入：万",
	} {
		assert.NotPanics(t, func() { _ = New().Extract(text, nil) })
	}
	assert.Empty(t, extract(t, ""))
}

func TestInstrumentedEngineCountsFields(t *testing.T) {
	c := metrics.FieldsExtracted.WithLabelValues("phone", "line")
	before := testutil.ToFloat64(c)
	NewInstrumented().Extract("13912345678", templates.Defaults())
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
