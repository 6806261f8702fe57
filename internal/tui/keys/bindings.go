// Package keys maps key events to TUI actions per page.
package keys

import (
	"github.com/gdamore/tcell/v2"

	"github.com/matheus3301/crmchat/internal/tui/ui"
)

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string // menu text; required for non-rune keys
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if the key (and rune, for KeyRune) match this action.
func (a *Action) Matches(key tcell.Key, r rune) bool {
	if a.Key != tcell.KeyRune {
		return key == a.Key
	}
	return key == tcell.KeyRune && r == a.Rune
}

// Registry holds keybindings organized by page. Bindings keep their
// registration order so menu hints are stable between redraws.
type Registry struct {
	global []*Action
	pages  map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{pages: make(map[string][]*Action)}
}

// AddGlobal registers a binding active on every page.
func (r *Registry) AddGlobal(action *Action) {
	r.global = append(r.global, action)
}

// AddPage registers a binding for one page.
func (r *Registry) AddPage(page string, action *Action) {
	r.pages[page] = append(r.pages[page], action)
}

// Hints returns the visible bindings of a page followed by the global ones.
func (r *Registry) Hints(page string) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, a := range append(append([]*Action(nil), r.pages[page]...), r.global...) {
		if a.Visible {
			hints = append(hints, ui.MenuHint{Key: a.label(), Description: a.Description})
		}
	}
	return hints
}

// HandleEvent dispatches a key event to the first matching action, page
// bindings first. Returns true if a handler ran.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	return r.HandleKey(page, ev.Key(), ev.Rune())
}

// HandleKey is HandleEvent for an already decoded key.
func (r *Registry) HandleKey(page string, key tcell.Key, ch rune) bool {
	for _, a := range r.pages[page] {
		if a.Matches(key, ch) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.global {
		if a.Matches(key, ch) {
			a.Handler()
			return true
		}
	}
	return false
}

func (a *Action) label() string {
	if a.Label != "" {
		return a.Label
	}
	return string(a.Rune)
}
