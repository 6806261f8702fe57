package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/crmchat/internal/message"
	"github.com/matheus3301/crmchat/internal/tui/ui"
)

// MessageThread shows one conversation as a selectable table with a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	table    *tview.Table
	composer *tview.InputField
	self     string
	msgs     []message.Message
	marked   map[string]bool
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Messages ")
	table.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	mt := &MessageThread{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(table, 0, 1, true).
			AddItem(composer, 3, 0, false),
		theme:    theme,
		table:    table,
		composer: composer,
		marked:   make(map[string]bool),
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := strings.TrimSpace(composer.GetText())
			if text != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})

	return mt
}

// SetConversation resets the view for a newly opened conversation. self is
// the sender id of the local user.
func (mt *MessageThread) SetConversation(id, self string) {
	mt.self = self
	mt.marked = make(map[string]bool)
	mt.msgs = nil
	mt.table.SetTitle(fmt.Sprintf(" %s ", tview.Escape(id)))
	mt.table.Clear()
}

// SetOnSend sets the callback when the composer submits text.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update re-renders msgs (oldest first). The cursor follows the message it
// was on; marks on messages that disappeared are dropped. A temporary id
// confirmed in the meantime loses its mark.
func (mt *MessageThread) Update(msgs []message.Message) {
	current := mt.Current()
	atEnd := current == "" || (len(mt.msgs) > 0 && current == mt.msgs[len(mt.msgs)-1].ID)
	mt.msgs = msgs

	present := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		present[m.ID] = true
	}
	for id := range mt.marked {
		if !present[id] {
			delete(mt.marked, id)
		}
	}

	mt.render()

	row := len(msgs) - 1
	if !atEnd {
		for i, m := range msgs {
			if m.ID == current {
				row = i
				break
			}
		}
	}
	if row >= 0 {
		mt.table.Select(row, 0)
	}
}

func (mt *MessageThread) render() {
	mt.table.Clear()
	for row, m := range mt.msgs {
		mark := " "
		if mt.marked[m.ID] {
			mark = "*"
		}
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		if m.SenderID == mt.self && m.Kind.UserMutable() {
			sender = "You"
		}
		content := m.Content
		if m.Kind != message.KindText {
			content = fmt.Sprintf("[%s] %s", m.Kind, content)
		}
		if m.ReplyTo != "" {
			content = "↪ " + content
		}
		if m.Edited {
			content += " (edited)"
		}

		mt.table.SetCell(row, 0, tview.NewTableCell(mark).SetTextColor(mt.theme.SelectedMarkColor))
		mt.table.SetCell(row, 1, tview.NewTableCell(formatTimestamp(m.CreatedAt)).SetTextColor(mt.theme.FgColor))
		mt.table.SetCell(row, 2, tview.NewTableCell(tview.Escape(sanitizeForTerminal(sender))).SetMaxWidth(16).SetTextColor(mt.theme.CounterColor))
		mt.table.SetCell(row, 3, tview.NewTableCell(tview.Escape(sanitizeForTerminal(strings.ReplaceAll(content, "\n", " ⏎ ")))).SetExpansion(1).SetTextColor(mt.theme.FgColor))
		mt.table.SetCell(row, 4, tview.NewTableCell(statusGlyph(m.Status)).SetAlign(tview.AlignRight).SetTextColor(mt.theme.StatusColor(m.Status)))
	}
}

// Current returns the id of the message under the cursor, or "".
func (mt *MessageThread) Current() string {
	row, _ := mt.table.GetSelection()
	if row < 0 || row >= len(mt.msgs) {
		return ""
	}
	return mt.msgs[row].ID
}

// ToggleMark adds or removes the message under the cursor from the selection.
func (mt *MessageThread) ToggleMark() {
	id := mt.Current()
	if id == "" {
		return
	}
	if mt.marked[id] {
		delete(mt.marked, id)
	} else {
		mt.marked[id] = true
	}
	mt.render()
}

// ClearMarks empties the selection.
func (mt *MessageThread) ClearMarks() {
	mt.marked = make(map[string]bool)
	mt.render()
}

// Marked returns the selected ids in list order, or the message under the
// cursor when nothing is marked.
func (mt *MessageThread) Marked() []string {
	var ids []string
	for _, m := range mt.msgs {
		if mt.marked[m.ID] {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		if id := mt.Current(); id != "" {
			ids = []string{id}
		}
	}
	return ids
}

// Table returns the message table (for focus management).
func (mt *MessageThread) Table() *tview.Table {
	return mt.table
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

func statusGlyph(s message.Status) string {
	switch s {
	case message.StatusSending:
		return "… "
	case message.StatusSent:
		return "✓ "
	case message.StatusDelivered, message.StatusRead:
		return "✓✓"
	case message.StatusFailed:
		return "! "
	default:
		return "  "
	}
}
