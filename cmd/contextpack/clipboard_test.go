package main

import (
	"errors"
	"strings"
	"testing"
)

func TestOSC52Sequence(t *testing.T) {
	data := "hello"
	encoded := "aGVsbG8="

	t.Setenv("TMUX", "")
	t.Setenv("TERM", "xterm-256color")
	seq := osc52Sequence(data)
	if !strings.HasPrefix(seq, "\x1b]52;c;"+encoded) || !strings.HasSuffix(seq, "\x07") {
		t.Fatalf("unexpected OSC52 sequence for xterm: %q", seq)
	}

	t.Setenv("TMUX", "1")
	seq = osc52Sequence(data)
	wantTmux := "\x1bPtmux;\x1b]52;c;" + encoded + "\x07\x1b\\"
	if seq != wantTmux {
		t.Fatalf("unexpected OSC52 sequence for tmux: %q", seq)
	}

	t.Setenv("TMUX", "")
	t.Setenv("TERM", "screen")
	seq = osc52Sequence(data)
	wantScreen := "\x1bP\x1b]52;c;" + encoded + "\x07\x1b\\"
	if seq != wantScreen {
		t.Fatalf("unexpected OSC52 sequence for screen: %q", seq)
	}
}

func fakeLookPath(available ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, a := range available {
			if a == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestClipboardCommand(t *testing.T) {
	name, args, err := clipboardCommand("linux", fakeLookPath("xsel", "xclip"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "/usr/bin/xclip" || strings.Join(args, " ") != "-selection clipboard" {
		t.Fatalf("expected xclip to win over xsel, got %s %v", name, args)
	}

	name, _, err = clipboardCommand("linux", fakeLookPath("wl-copy", "xclip"))
	if err != nil || name != "/usr/bin/wl-copy" {
		t.Fatalf("expected wl-copy, got %q (%v)", name, err)
	}

	if _, _, err := clipboardCommand("linux", fakeLookPath()); err == nil {
		t.Fatalf("expected an error without any clipboard utility")
	}

	name, _, err = clipboardCommand("darwin", fakeLookPath("pbcopy"))
	if err != nil || name != "pbcopy" {
		t.Fatalf("expected pbcopy, got %q (%v)", name, err)
	}
	if _, _, err := clipboardCommand("windows", fakeLookPath()); err == nil {
		t.Fatalf("expected an error when clip is missing")
	}
}
