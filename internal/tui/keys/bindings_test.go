package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestPageBindingShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'd', Handler: func() { got = "global" }})
	r.AddPage("thread", &Action{Key: tcell.KeyRune, Rune: 'd', Handler: func() { got = "thread" }})

	if !r.HandleKey("thread", tcell.KeyRune, 'd') || got != "thread" {
		t.Errorf("thread page: handled by %q, want thread", got)
	}
	if !r.HandleKey("conversations", tcell.KeyRune, 'd') || got != "global" {
		t.Errorf("other page: handled by %q, want global", got)
	}
	if r.HandleKey("thread", tcell.KeyRune, 'z') {
		t.Error("unbound rune should not be handled")
	}
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	hit := false
	r.AddPage("thread", &Action{Key: tcell.KeyEnter, Handler: func() { hit = true }})
	r.HandleKey("thread", tcell.KeyEnter, 0)
	if !hit {
		t.Error("Enter binding not dispatched")
	}
}

func TestHintsKeepOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true, Handler: func() {}})
	r.AddPage("thread", &Action{Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Visible: true, Handler: func() {}})
	r.AddPage("thread", &Action{Key: tcell.KeyRune, Rune: ' ', Label: "Space", Description: "Select", Visible: true, Handler: func() {}})
	r.AddPage("thread", &Action{Key: tcell.KeyRune, Rune: 'r', Description: "hidden", Handler: func() {}})

	for i := 0; i < 10; i++ {
		hints := r.Hints("thread")
		if len(hints) != 3 {
			t.Fatalf("got %d hints, want 3", len(hints))
		}
		if hints[0].Key != "i" || hints[1].Key != "Space" || hints[2].Key != "q" {
			t.Fatalf("hints out of order: %+v", hints)
		}
	}
}
