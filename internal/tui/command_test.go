package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"sweep", Command{Name: "sweep"}},
		{"  Filter  5511 ", Command{Name: "filter", Args: "5511"}},
		{"f 5511", Command{Name: "filter", Args: "5511"}},
		{"q", Command{Name: "quit"}},
		{"h", Command{Name: "help"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.in); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestCommandNamesParseToThemselves(t *testing.T) {
	for _, name := range CommandNames {
		if got := ParseCommand(name); got.Name != name || got.Args != "" {
			t.Errorf("ParseCommand(%q) = %+v", name, got)
		}
	}
}
