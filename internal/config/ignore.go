package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agusx1211/contextpack/internal/catalog"
)

// AddIgnoreRules appends rules to the stored ignore list, starting from the
// defaults when nothing is stored. Duplicates are skipped. It returns the
// resulting list.
func AddIgnoreRules(path string, rules ...string) ([]string, error) {
	cleaned := cleanRules(rules)
	if _, err := catalog.NewIgnorePolicy(cleaned); err != nil {
		return nil, err
	}
	return updateIgnore(path, func(current []string) []string {
		for _, r := range cleaned {
			if !slices.Contains(current, r) {
				current = append(current, r)
			}
		}
		return current
	})
}

// RemoveIgnoreRules drops rules from the stored ignore list.
func RemoveIgnoreRules(path string, rules ...string) ([]string, error) {
	drop := cleanRules(rules)
	return updateIgnore(path, func(current []string) []string {
		return slices.DeleteFunc(current, func(r string) bool {
			return slices.Contains(drop, r)
		})
	})
}

// ResetIgnoreRules removes the stored list so the defaults apply again.
func ResetIgnoreRules(path string) error {
	return Update(path, func(doc map[string]any) error {
		delete(doc, "ignore")
		return nil
	})
}

func updateIgnore(path string, change func([]string) []string) ([]string, error) {
	var result []string
	err := Update(path, func(doc map[string]any) error {
		current, err := storedRules(doc)
		if err != nil {
			return fmt.Errorf("invalid ignore value in %s: %w", path, err)
		}
		result = change(current)
		doc["ignore"] = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func storedRules(doc map[string]any) ([]string, error) {
	raw, ok := doc["ignore"]
	if !ok || raw == nil {
		return slices.Clone(catalog.DefaultIgnoreRules), nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list")
	}
	rules := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected strings, got %T", item)
		}
		rules = append(rules, s)
	}
	return rules, nil
}

func cleanRules(rules []string) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
