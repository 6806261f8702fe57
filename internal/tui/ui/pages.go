package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages keeps a navigation stack on top of tview.Pages. The bottom page is
// the root and cannot be popped. Each page shows in the breadcrumbs under
// its title, which defaults to its name.
type Pages struct {
	*tview.Pages
	stack    []string
	titles   map[string]string
	onChange func(crumbs []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{
		Pages:  tview.NewPages(),
		titles: make(map[string]string),
	}
}

// SetOnChange registers fn to receive the breadcrumb titles after every
// stack change.
func (p *Pages) SetOnChange(fn func(crumbs []string)) {
	p.onChange = fn
}

// SetTitle changes the breadcrumb label of a page. An empty title restores
// the page name. A page already on the stack refreshes the crumbs.
func (p *Pages) SetTitle(name, title string) {
	if title == "" {
		delete(p.titles, name)
	} else {
		p.titles[name] = title
	}
	if slices.Contains(p.stack, name) {
		p.notify()
	}
}

// Push shows name on top of the stack. If name is already on the stack the
// pages above it are dropped instead, so a page never appears twice.
func (p *Pages) Push(name string) {
	if i := slices.Index(p.stack, name); i >= 0 {
		if i == len(p.stack)-1 {
			return
		}
		p.truncate(i + 1)
		p.notify()
		return
	}
	if top := p.Current(); top != "" {
		p.HidePage(top)
	}
	p.stack = append(p.stack, name)
	p.show(name)
	p.notify()
}

// Pop drops the top page and returns its name, or "" when only the root is
// left.
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.Current()
	p.truncate(len(p.stack) - 1)
	p.notify()
	return top
}

// Current returns the name of the top page.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Crumbs returns the titles of the stacked pages, root first.
func (p *Pages) Crumbs() []string {
	crumbs := make([]string, len(p.stack))
	for i, name := range p.stack {
		crumbs[i] = p.title(name)
	}
	return crumbs
}

// Reset replaces the whole stack with names, the first being the new root.
func (p *Pages) Reset(names ...string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = append(p.stack[:0], names...)
	if top := p.Current(); top != "" {
		p.show(top)
	}
	p.notify()
}

func (p *Pages) truncate(n int) {
	for _, name := range p.stack[n:] {
		p.HidePage(name)
	}
	p.stack = p.stack[:n]
	p.show(p.Current())
}

func (p *Pages) show(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
}

func (p *Pages) title(name string) string {
	if t, ok := p.titles[name]; ok {
		return t
	}
	return name
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Crumbs())
	}
}
