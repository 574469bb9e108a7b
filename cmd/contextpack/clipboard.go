package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/agusx1211/contextpack/internal/config"
)

// deliver sends the payload where the output mode says.
func deliver(mode, payload string) error {
	switch mode {
	case config.OutputCopy:
		if err := copyToClipboard(payload); err != nil {
			return fmt.Errorf("failed to copy content: %w", err)
		}
		notify("Full content copied to clipboard!")
	case config.OutputSSHCopy:
		if err := copyToOSC52(payload); err != nil {
			return fmt.Errorf("failed to copy content: %w", err)
		}
		notify("Full content copied to clipboard!")
	default:
		fmt.Print(payload)
	}
	return nil
}

func notify(msg string) {
	if !quiet {
		fmt.Fprintln(os.Stderr, msg)
	}
}

func runClipboardCommand(name string, args []string, data string, stdout io.Writer) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(data)
	if stdout != nil {
		cmd.Stdout = stdout
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s failed: %s", name, msg)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

// clipboardCommand picks the clipboard utility for goos, using lookPath to
// probe the candidates.
func clipboardCommand(goos string, lookPath func(string) (string, error)) (string, []string, error) {
	switch goos {
	case "darwin":
		if _, err := lookPath("pbcopy"); err != nil {
			return "", nil, fmt.Errorf("pbcopy not found in PATH")
		}
		return "pbcopy", nil, nil
	case "windows":
		if _, err := lookPath("clip"); err != nil {
			return "", nil, fmt.Errorf("clip not found in PATH")
		}
		return "clip", nil, nil
	}
	candidates := []struct {
		name string
		args []string
	}{
		{"wl-copy", nil},
		{"xclip", []string{"-selection", "clipboard"}},
		{"xsel", []string{"--clipboard", "--input"}},
		{"clip.exe", nil},
	}
	for _, c := range candidates {
		if path, _ := lookPath(c.name); path != "" {
			return path, c.args, nil
		}
	}
	return "", nil, fmt.Errorf("no clipboard utility found (tried wl-copy, xclip, xsel, clip.exe)")
}

func copyToClipboard(data string) error {
	name, args, err := clipboardCommand(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}
	return runClipboardCommand(name, args, data, io.Discard)
}

func osc52Sequence(data string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(data))
	seq := fmt.Sprintf("\x1b]52;c;%s\x07", encoded)
	if os.Getenv("TMUX") != "" {
		return "\x1bPtmux;" + seq + "\x1b\\"
	}
	if strings.HasPrefix(os.Getenv("TERM"), "screen") {
		return "\x1bP" + seq + "\x1b\\"
	}
	return seq
}

func copyToOSC52(data string) error {
	if _, err := io.WriteString(os.Stdout, osc52Sequence(data)); err != nil {
		return fmt.Errorf("failed to write OSC 52 sequence: %w", err)
	}
	return nil
}
