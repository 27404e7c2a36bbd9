package tui

import "strings"

// CommandNames are the commands the prompt completes.
var CommandNames = []string{"quit", "help", "sweep", "refresh", "pair", "filter"}

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
// Short aliases are expanded.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	switch cmd.Name {
	case "q":
		cmd.Name = "quit"
	case "h":
		cmd.Name = "help"
	case "f":
		cmd.Name = "filter"
	}
	return cmd
}
