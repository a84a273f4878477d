package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// openBrowser launches the system browser at the given URL. The command is
// fire-and-forget; the authorization flow falls back to the paste-a-code
// prompt if the launch fails.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}

	// Detach; the browser outlives this process's interest in it.
	go cmd.Wait() //nolint:errcheck

	return nil
}

// promptForCode prints the authorization URL and reads the pasted code from
// stdin. Prompts must always be visible, so they bypass --quiet and go to
// stderr.
func promptForCode(authURL string) (string, error) {
	fmt.Fprintf(os.Stderr, "Visit this URL to authorize:\n\n  %s\n\nEnter the authorization code: ", authURL)

	reader := bufio.NewReader(os.Stdin)

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading authorization code: %w", err)
	}

	return strings.TrimSpace(line), nil
}
