package ui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what the prompt input is used for.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
	PromptEdit
)

var promptLooks = map[PromptMode]struct{ label, title string }{
	PromptCommand: {":", " Command "},
	PromptFilter:  {"/", " Filter "},
	PromptEdit:    {"> ", " Edit message "},
}

const promptHistorySize = 50

// Prompt is the input bar for commands, list filters and message edits.
// Submitted commands are kept in a history browsable with Up and Down.
type Prompt struct {
	*tview.InputField
	mode     PromptMode
	history  []string
	cursor   int
	commands []string
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates a hidden prompt styled with theme.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{InputField: input}
	input.SetAutocompleteFunc(p.complete)
	input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if p.mode != PromptCommand || !p.browsing() {
			return event
		}
		switch event.Key() {
		case tcell.KeyUp:
			p.recall(-1)
			return nil
		case tcell.KeyDown:
			p.recall(1)
			return nil
		}
		return event
	})
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			p.submit(p.GetText())
		case tcell.KeyEscape:
			p.cancel()
		}
	})
	return p
}

// SetOnSubmit registers the callback run with the entered text.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel registers the callback run when the prompt closes without a
// submission.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// SetCommands sets the command names offered as completions in command mode.
func (p *Prompt) SetCommands(names []string) {
	p.commands = names
}

// Activate opens the prompt in mode with initial text.
func (p *Prompt) Activate(mode PromptMode, initial string) {
	p.mode = mode
	p.cursor = len(p.history)
	look := promptLooks[mode]
	p.SetLabel(look.label)
	p.SetTitle(look.title)
	p.SetText(initial)
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}

// History returns the submitted commands, oldest first.
func (p *Prompt) History() []string {
	return append([]string(nil), p.history...)
}

// submit hands text to the submit callback. An empty filter clears the
// filter; empty input in the other modes cancels.
func (p *Prompt) submit(text string) {
	p.SetText("")
	if text == "" && p.mode != PromptFilter {
		p.cancel()
		return
	}
	if p.mode == PromptCommand {
		p.remember(text)
	}
	if p.onSubmit != nil {
		p.onSubmit(p.mode, text)
	}
}

func (p *Prompt) cancel() {
	p.SetText("")
	if p.onCancel != nil {
		p.onCancel()
	}
}

func (p *Prompt) remember(cmd string) {
	if n := len(p.history); n > 0 && p.history[n-1] == cmd {
		p.cursor = n
		return
	}
	p.history = append(p.history, cmd)
	if len(p.history) > promptHistorySize {
		p.history = p.history[len(p.history)-promptHistorySize:]
	}
	p.cursor = len(p.history)
}

// browsing reports whether Up and Down belong to the history rather than to
// the completion list: the input is empty or shows a recalled command.
func (p *Prompt) browsing() bool {
	text := p.GetText()
	if text == "" {
		return true
	}
	return p.cursor < len(p.history) && p.history[p.cursor] == text
}

// recall moves through the history. Moving past the newest entry clears
// the input.
func (p *Prompt) recall(step int) {
	next := p.cursor + step
	if next < 0 || next > len(p.history) {
		return
	}
	p.cursor = next
	if next == len(p.history) {
		p.SetText("")
		return
	}
	p.SetText(p.history[next])
}

func (p *Prompt) complete(current string) []string {
	if p.mode != PromptCommand || current == "" || strings.Contains(current, " ") {
		return nil
	}
	var out []string
	for _, name := range p.commands {
		if strings.HasPrefix(name, current) && name != current {
			out = append(out, name)
		}
	}
	return out
}
