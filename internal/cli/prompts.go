package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// Prompt hooks, swapped out in tests.
//
//nolint:gochecknoglobals // Replaced by tests
var (
	promptSecretFn  = promptSecret
	promptConfirmFn = promptConfirm
)

// promptSecret reads a line from the terminal without echoing it.
func promptSecret(prompt string) (string, error) {
	out(os.Stderr, "%s", prompt)

	secret, err := term.ReadPassword(syscall.Stdin)
	outln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

// promptConfirm asks a yes/no question; anything but y or yes is a no.
func promptConfirm(question string) bool {
	out(os.Stderr, "%s [y/N]: ", question)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}
