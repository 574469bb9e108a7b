package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/agusx1211/contextpack/internal/remote"
	"github.com/agusx1211/contextpack/internal/selection"
)

// Summarize replaces the content of a Loaded entry with a summary from the
// remote service. The entry is left untouched when the call fails or its
// content changes in the meantime.
func (s *Session) Summarize(ctx context.Context, path string) error {
	if s.opts.Remote == nil {
		return ErrNoService
	}

	var content string
	var hash uint64
	err := s.Do(ctx, func() error {
		e, ok := s.store.Get(path)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotSelected, path)
		}
		if e.State != selection.Loaded {
			return fmt.Errorf("%w: %s", ErrNotLoaded, path)
		}
		content, hash = e.Content, e.Hash
		s.busy.Begin()
		return nil
	})
	if err != nil {
		return err
	}

	sum, err := s.opts.Remote.Summarize(ctx, content, remote.DefaultSummaryLimit)
	return s.Do(context.WithoutCancel(ctx), func() error {
		s.busy.End()
		if err != nil {
			s.toast(fmt.Sprintf("Error summarizing file: %v", err), true)
			return err
		}
		e, ok := s.store.Get(path)
		if !ok || e.State != selection.Loaded || e.Hash != hash {
			return fmt.Errorf("%w: %s", ErrContentChanged, path)
		}
		s.store.ReplaceContent(path, sum.Content())
		s.publishSelection()
		s.toast(fmt.Sprintf("File summarized: %s", path), false)
		return nil
	})
}

// GeneratePrompt streams a generated prompt from the remote service into
// the prompt text. On failure the prompt reverts to what it was before the
// call.
func (s *Session) GeneratePrompt(ctx context.Context, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		s.toast("Please enter some text first", true)
		return "", ErrEmptyInput
	}
	if s.opts.Remote == nil {
		return "", ErrNoService
	}

	var previous string
	err := s.Do(ctx, func() error {
		previous = s.prompt
		s.busy.Begin()
		s.setPrompt("")
		return nil
	})
	if err != nil {
		return "", err
	}

	text, err := s.opts.Remote.GeneratePrompt(ctx, input, func(delta string) {
		s.post(func() { s.setPrompt(s.prompt + delta) })
	})
	doErr := s.Do(context.WithoutCancel(ctx), func() error {
		s.busy.End()
		if err != nil {
			s.setPrompt(previous)
			s.toast(fmt.Sprintf("Error generating meta-prompt: %v", err), true)
			return nil
		}
		s.setPrompt(text)
		s.engine.Notify(text)
		s.toast("Meta-prompt generated successfully!", false)
		return nil
	})
	if err != nil {
		return "", err
	}
	if doErr != nil {
		return "", doErr
	}
	return text, nil
}
