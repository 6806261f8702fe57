package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// MenuHint describes a keyboard shortcut for display in the menu.
type MenuHint struct {
	Key         string
	Description string
}

// ProfileData is the daemon summary shown in the header.
type ProfileData struct {
	Profile       string
	Sender        string
	State         string
	Conversations int
	Uptime        time.Duration
}

// Header is the top bar: profile summary, key hints and the page trail.
type Header struct {
	*tview.Flex
	theme  *Theme
	info   *tview.TextView
	menu   *tview.TextView
	crumbs *tview.TextView
}

// NewHeader creates the header.
func NewHeader(theme *Theme) *Header {
	newText := func() *tview.TextView {
		tv := tview.NewTextView().SetDynamicColors(true)
		tv.SetBackgroundColor(theme.BgColor)
		return tv
	}
	h := &Header{
		theme:  theme,
		info:   newText(),
		menu:   newText(),
		crumbs: newText(),
	}
	h.info.SetBorderPadding(0, 0, 1, 1)
	h.menu.SetBorderPadding(0, 0, 2, 0)

	top := tview.NewFlex().
		AddItem(h.info, 40, 0, false).
		AddItem(h.menu, 0, 1, false)
	h.Flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(top, 5, 0, false).
		AddItem(h.crumbs, 1, 0, false)
	return h
}

// SetProfile renders the daemon summary.
func (h *Header) SetProfile(d *ProfileData) {
	h.info.Clear()
	if d == nil {
		return
	}
	fg := colorName(h.theme.FgColor)
	ct := colorName(h.theme.CounterColor)
	row := func(label, value string) string {
		return fmt.Sprintf("[%s::b]%-8s[-:-:-] [%s]%s[-]", label+":", fg, ct, tview.Escape(value))
	}
	sender := d.Sender
	if sender == "" {
		sender = "-"
	}
	_, _ = fmt.Fprint(h.info, strings.Join([]string{
		row("Profile", d.Profile),
		row("Sender", sender),
		row("State", d.State),
		row("Open", fmt.Sprint(d.Conversations)),
		row("Uptime", formatDuration(d.Uptime)),
	}, "\n"))
}

// SetHints renders key hints, two columns when they do not fit in one.
func (h *Header) SetHints(hints []MenuHint) {
	h.menu.Clear()
	kc := colorName(h.theme.MenuKeyColor)
	cells := make([]string, len(hints))
	for i, hint := range hints {
		cells[i] = fmt.Sprintf("[%s::b]%-8s[-:-:-] %-12s", kc, "<"+hint.Key+">", hint.Description)
	}
	const rows = 5
	var lines []string
	for r := 0; r < rows && r < len(cells); r++ {
		line := cells[r]
		for c := r + rows; c < len(cells); c += rows {
			line += " " + cells[c]
		}
		lines = append(lines, line)
	}
	_, _ = fmt.Fprint(h.menu, strings.Join(lines, "\n"))
}

// SetCrumbs renders the page trail, the last entry highlighted.
func (h *Header) SetCrumbs(crumbs []string) {
	h.crumbs.Clear()
	parts := make([]string, len(crumbs))
	for i, name := range crumbs {
		fg, bg, attr := h.theme.CrumbInactiveFg, h.theme.CrumbInactiveBg, ""
		if i == len(crumbs)-1 {
			fg, bg, attr = h.theme.CrumbActiveFg, h.theme.CrumbActiveBg, "b"
		}
		parts[i] = fmt.Sprintf("[%s:%s:%s] %s [-:-:-]", colorName(fg), colorName(bg), attr, tview.Escape(name))
	}
	_, _ = fmt.Fprint(h.crumbs, strings.Join(parts, " "))
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
