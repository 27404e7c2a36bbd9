package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestHandleEventPrefersView(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "global" }})
	r.AddView("help", "back", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "view" }})

	if !r.handle("help", tcell.KeyRune, 'q') || got != "view" {
		t.Errorf("help view: got %q, want view binding", got)
	}
	if !r.handle("pending", tcell.KeyRune, 'q') || got != "global" {
		t.Errorf("pending view: got %q, want global binding", got)
	}
	if r.handle("pending", tcell.KeyRune, 'x') {
		t.Error("unbound key handled")
	}
}

func TestMatchesSpecialKey(t *testing.T) {
	a := &Action{Key: tcell.KeyEscape}
	if !a.matches(tcell.KeyEscape, 0) {
		t.Error("Esc not matched")
	}
	if a.matches(tcell.KeyRune, 'e') {
		t.Error("rune matched a special-key action")
	}
}

func TestHintsAreStable(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("quit", &Action{Label: "q", Description: "Quit", Visible: true})
	r.AddGlobal("help", &Action{Label: "?", Description: "Help", Visible: true})
	r.AddGlobal("hidden", &Action{Label: "x", Description: "Hidden"})
	r.AddView("pending", "sweep", &Action{Label: "s", Description: "Sweep", Visible: true})

	hints := r.Hints("pending")
	want := []string{"s", "?", "q"}
	if len(hints) != len(want) {
		t.Fatalf("hints = %+v", hints)
	}
	for i, k := range want {
		if hints[i].Key != k {
			t.Errorf("hint %d = %q, want %q", i, hints[i].Key, k)
		}
	}
}
