package tui

import "strings"

// Command represents a parsed ':' command.
type Command struct {
	Name string
	Args string
}

// commandNames lists the full command names offered for completion.
var commandNames = []string{"help", "open", "prefill", "quit"}

var commandAliases = map[string]string{
	"q":    "quit",
	"q!":   "quit",
	"h":    "help",
	"o":    "open",
	"conv": "open",
	"p":    "prefill",
}

// ParseCommand parses a command string (without the leading ':') and
// resolves short aliases.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if full, ok := commandAliases[cmd.Name]; ok {
		cmd.Name = full
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}
