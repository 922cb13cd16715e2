package cli

import (
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// Confirm asks a yes/no question on the terminal and reports the answer.
// Only an explicit "y" or "yes" counts as confirmation; Ctrl+C, Ctrl+D and
// an empty line all decline. Errors are only returned when the terminal
// itself is unusable.
func Confirm(question string) (bool, error) {
	rl, err := readline.New(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err == readline.ErrInterrupt || err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
