package util

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// IsInteractive reports whether stdin is attached to a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// StderrIsTerminal reports whether stderr is attached to a terminal, which
// gates progress-bar rendering.
func StderrIsTerminal() bool {
	return term.IsTerminal(int(syscall.Stderr))
}

// PromptPath asks the user for a path on the controlling terminal.
func PromptPath(prompt string) (string, error) {
	if !IsInteractive() {
		return "", fmt.Errorf("interactive prompting requires a terminal")
	}

	fmt.Fprint(os.Stderr, prompt+": ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	response = strings.TrimSpace(response)
	if response == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	return response, nil
}
