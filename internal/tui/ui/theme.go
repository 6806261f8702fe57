// Package ui holds the reusable widgets of the TUI.
package ui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/matheus3301/crmchat/internal/message"
)

// Theme holds the colors of every widget.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
	SelectedMarkColor tcell.Color
	SendingColor      tcell.Color
	FailedColor       tcell.Color
	ReadColor         tcell.Color
}

// palette is the handful of base colors a theme is derived from.
type palette struct {
	bg, fg    tcell.Color
	accent    tcell.Color // borders, keys, cursor
	highlight tcell.Color // active crumb, warnings
	title     tcell.Color
	muted     tcell.Color // counters, pending sends
	info      tcell.Color
	danger    tcell.Color
	mark      tcell.Color
}

var palettes = map[string]palette{
	"dark": {
		bg:        tcell.ColorBlack,
		fg:        tcell.ColorCadetBlue,
		accent:    tcell.ColorDodgerBlue,
		highlight: tcell.ColorOrange,
		title:     tcell.ColorFuchsia,
		muted:     tcell.ColorPapayaWhip,
		info:      tcell.ColorNavajoWhite,
		danger:    tcell.ColorOrangeRed,
		mark:      tcell.ColorGreenYellow,
	},
	"light": {
		bg:        tcell.ColorWhite,
		fg:        tcell.ColorDarkSlateGray,
		accent:    tcell.ColorRoyalBlue,
		highlight: tcell.ColorDarkOrange,
		title:     tcell.ColorDarkMagenta,
		muted:     tcell.ColorDimGray,
		info:      tcell.ColorNavy,
		danger:    tcell.ColorFireBrick,
		mark:      tcell.ColorForestGreen,
	},
}

func (p palette) theme() *Theme {
	return &Theme{
		BgColor:           p.bg,
		FgColor:           p.fg,
		BorderColor:       p.accent,
		TableHeaderFg:     p.title,
		TableHeaderBg:     p.bg,
		TableCursorFg:     p.bg,
		TableCursorBg:     p.accent,
		CrumbActiveFg:     p.bg,
		CrumbActiveBg:     p.highlight,
		CrumbInactiveFg:   p.bg,
		CrumbInactiveBg:   p.accent,
		MenuKeyColor:      p.accent,
		TitleColor:        p.title,
		CounterColor:      p.muted,
		FlashInfoColor:    p.info,
		FlashWarnColor:    p.highlight,
		FlashErrColor:     p.danger,
		PromptBorderColor: p.accent,
		SelectedMarkColor: p.mark,
		SendingColor:      p.muted,
		FailedColor:       p.danger,
		ReadColor:         p.accent,
	}
}

// DefaultTheme returns the dark theme.
func DefaultTheme() *Theme {
	return palettes["dark"].theme()
}

// ThemeNamed returns the theme called name ("dark" or "light").
func ThemeNamed(name string) (*Theme, error) {
	p, ok := palettes[name]
	if !ok {
		names := make([]string, 0, len(palettes))
		for n := range palettes {
			names = append(names, n)
		}
		slices.Sort(names)
		return nil, fmt.Errorf("unknown theme %q (have %s)", name, strings.Join(names, ", "))
	}
	return p.theme(), nil
}

// StatusColor picks the color of a delivery status marker.
func (t *Theme) StatusColor(s message.Status) tcell.Color {
	switch s {
	case message.StatusSending:
		return t.SendingColor
	case message.StatusFailed:
		return t.FailedColor
	case message.StatusRead:
		return t.ReadColor
	default:
		return t.FgColor
	}
}

// colorName returns the tview color tag for c.
func colorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
