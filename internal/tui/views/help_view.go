package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/crmchat/internal/tui/ui"
)

// HelpView displays the key binding and command reference.
type HelpView struct {
	*tview.TextView
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{TextView: tv}
	hv.render(fmt.Sprintf("#%06x", theme.MenuKeyColor.Hex()))
	return hv
}

var helpSections = []struct {
	title string
	rows  [][2]string
}{
	{"Global", [][2]string{
		{":", "Command mode"},
		{"/", "Filter conversations"},
		{"Esc", "Back"},
		{"?", "Help"},
		{"q", "Quit"},
	}},
	{"Conversations", [][2]string{
		{"Enter", "Open conversation"},
		{"1-9", "Open the Nth conversation"},
		{"r", "Reload"},
	}},
	{"Thread", [][2]string{
		{"i", "Focus composer (Enter sends)"},
		{"Space", "Mark / unmark message"},
		{"c", "Clear marks"},
		{"p", "Prefill from marked messages"},
		{"e", "Edit your message"},
		{"x", "Delete your message"},
		{"D", "Discard a pending or failed message"},
		{"R", "Resend a failed message"},
	}},
	{"Commands", [][2]string{
		{":open <id>", "Open or start tracking a conversation"},
		{":prefill", "Same as p"},
		{":help", "Show this help"},
		{":quit", "Quit"},
	}},
}

func (hv *HelpView) render(kc string) {
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  [%s]%-12s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
