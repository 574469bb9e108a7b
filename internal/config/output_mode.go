package config

import (
	"fmt"
	"strings"
)

const (
	OutputPrint   = "print"
	OutputCopy    = "copy"
	OutputSSHCopy = "ssh-copy"
)

// NormalizeOutputMode maps user spellings onto the canonical modes.
func NormalizeOutputMode(mode string) (string, bool) {
	m := strings.TrimSpace(strings.ToLower(mode))
	switch m {
	case OutputPrint:
		return OutputPrint, true
	case OutputCopy:
		return OutputCopy, true
	case OutputSSHCopy, "sshcopy", "ssh", "osc52", "shh-copy", "shhcopy", "shh":
		return OutputSSHCopy, true
	default:
		return "", false
	}
}

// ResolveOutputMode picks the mode from the command-line flags, falling back
// to defaultMode and then to print.
func ResolveOutputMode(defaultMode string, printFlag, copyFlag, sshFlag bool) (string, error) {
	selected := 0
	for _, set := range []bool{printFlag, copyFlag, sshFlag} {
		if set {
			selected++
		}
	}
	if selected > 1 {
		return "", fmt.Errorf("only one of --print, --copy, or --ssh-copy may be set")
	}
	switch {
	case printFlag:
		return OutputPrint, nil
	case copyFlag:
		return OutputCopy, nil
	case sshFlag:
		return OutputSSHCopy, nil
	case defaultMode == "":
		return OutputPrint, nil
	}
	return defaultMode, nil
}

// SetOutputMode persists the default output mode.
func SetOutputMode(path, mode string) error {
	normalized, ok := NormalizeOutputMode(mode)
	if !ok {
		return fmt.Errorf("invalid output mode %q (expected print, copy, or ssh-copy)", mode)
	}
	return Update(path, func(doc map[string]any) error {
		doc["output"] = normalized
		return nil
	})
}
