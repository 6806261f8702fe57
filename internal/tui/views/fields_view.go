package views

import (
	"fmt"
	"sort"

	"github.com/rivo/tview"

	"github.com/matheus3301/crmchat/internal/tui/ui"
)

// fieldLabels are the form labels of extracted fields.
var fieldLabels = map[string]string{
	"name":                  "Name",
	"phone":                 "Phone",
	"email":                 "Email",
	"wechat":                "WeChat",
	"gender":                "Gender",
	"birth_date":            "Birth date",
	"identification_number": "ID number",
	"company":               "Company",
	"occupation":            "Occupation",
	"annual_income":         "Income (万)",
	"address":               "Address",
	"province":              "Province",
	"city":                  "City",
	"district":              "District",
	"postal_code":           "Postal code",
	"source":                "Source",
	"priority":              "Priority",
	"value_grade":           "Value grade",
	"quality_grade":         "Quality",
	"follow_up_date":        "Follow-up",
}

// FieldsView shows the record extracted from a message selection.
type FieldsView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewFieldsView creates a new fields view.
func NewFieldsView(theme *ui.Theme) *FieldsView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Prefill ")
	tv.SetTitleColor(theme.TitleColor)

	return &FieldsView{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders fields extracted from n messages.
func (fv *FieldsView) Update(fields map[string]string, n int) {
	fv.Clear()
	fv.SetTitle(fmt.Sprintf(" Prefill (%d messages, %d fields) ", n, len(fields)))
	if len(fields) == 0 {
		_, _ = fmt.Fprint(fv, "\n No fields found in the selection.")
		return
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fg := fmt.Sprintf("#%06x", fv.theme.FgColor.Hex())
	ct := fmt.Sprintf("#%06x", fv.theme.CounterColor.Hex())
	_, _ = fmt.Fprintln(fv)
	for _, k := range keys {
		label := fieldLabels[k]
		if label == "" {
			label = k
		}
		_, _ = fmt.Fprintf(fv, " [%s::b]%-14s[-:-:-] [%s]%s[-]\n", fg, label+":", ct, tview.Escape(fields[k]))
	}
}
