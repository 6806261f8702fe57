package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"open lead-42", Command{Name: "open", Args: "lead-42"}},
		{"  o   lead-42  ", Command{Name: "open", Args: "lead-42"}},
		{"q", Command{Name: "quit"}},
		{"HELP", Command{Name: "help"}},
		{"prefill", Command{Name: "prefill"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.in); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestAliasesResolveToKnownCommands(t *testing.T) {
	known := make(map[string]bool, len(commandNames))
	for _, n := range commandNames {
		known[n] = true
	}
	for alias, full := range commandAliases {
		if !known[full] {
			t.Errorf("alias %q points at unknown command %q", alias, full)
		}
	}
}
