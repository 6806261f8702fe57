package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/crmchat/internal/tui/model"
	"github.com/matheus3301/crmchat/internal/tui/ui"
)

// ConversationList is the table of tracked conversations.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	convs   []model.ConversationSummary
	visible []string
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	cl := &ConversationList{
		Table: table,
		theme: theme,
	}
	cl.render()
	return cl
}

// Update refreshes the list, keeping the selected conversation selected.
func (cl *ConversationList) Update(convs []model.ConversationSummary) {
	selected := cl.Selected()
	cl.convs = convs
	cl.render()
	cl.selectID(selected)
}

// SetFilter narrows the list to conversations whose id or last message
// contains filter. An empty filter shows everything.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" CONVERSATION", 1},
		{" LAST MESSAGE", 3},
		{" MSGS", 0},
		{" TIME", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	cl.visible = cl.visible[:0]
	row := 1
	for _, c := range cl.convs {
		preview, at := "", ""
		if c.Last != nil {
			preview = c.Last.Content
			at = formatTimestamp(c.Last.CreatedAt)
		}
		if !containsFold(c.ID, cl.filter) && !containsFold(preview, cl.filter) {
			continue
		}
		cl.visible = append(cl.visible, c.ID)
		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(c.ID)).SetExpansion(1).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(previewLine(preview, previewCells))).SetExpansion(3).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d ", c.Count)).SetAlign(tview.AlignRight).SetTextColor(cl.theme.CounterColor))
		cl.SetCell(row, 3, tview.NewTableCell(at).SetAlign(tview.AlignRight).SetTextColor(cl.theme.FgColor))
		row++
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.convs), cl.filter))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// Selected returns the id of the selected conversation, or "".
func (cl *ConversationList) Selected() string {
	row, _ := cl.GetSelection()
	return cl.byRow(row)
}

// ByIndex returns the id of the Nth visible conversation (1-based).
func (cl *ConversationList) ByIndex(n int) string {
	return cl.byRow(n)
}

func (cl *ConversationList) byRow(row int) string {
	idx := row - 1 // header
	if idx < 0 || idx >= len(cl.visible) {
		return ""
	}
	return cl.visible[idx]
}

func (cl *ConversationList) selectID(id string) {
	for i, v := range cl.visible {
		if v == id {
			cl.Select(i+1, 0)
			return
		}
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// previewCells is the width of the last message column.
const previewCells = 48

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
