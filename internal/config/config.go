// Package config reads and writes the ~/.contextpack settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agusx1211/contextpack/internal/catalog"
)

// FileName is the settings file name under the home directory.
const FileName = ".contextpack"

// Preset is a named include/exclude glob set used to select files in bulk.
type Preset struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Matches reports whether rel is included and not excluded. Patterns with a
// directory part also match below any directory.
func (p Preset) Matches(rel string) bool {
	return catalog.MatchAny(rel, expand(p.Include)) && !catalog.MatchAny(rel, expand(p.Exclude))
}

func expand(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		out = append(out, pattern)
		if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
			out = append(out, "**/"+pattern)
		}
	}
	return out
}

// BuiltinPresets are available without any configuration.
var BuiltinPresets = map[string]Preset{
	"source-code": {
		Include: []string{"*.js", "*.jsx", "*.ts", "*.tsx", "*.py", "*.java", "*.cpp", "*.c", "*.h", "*.cs", "*.go", "*.rs", "*.rb", "*.php"},
		Exclude: []string{"*.min.js", "*.bundle.js", "dist/*", "build/*"},
	},
	"python": {
		Include: []string{"*.py", "*.pyw", "*.pyx", "*.pyi"},
		Exclude: []string{"__pycache__/*", "*.pyc"},
	},
	"javascript": {
		Include: []string{"*.js", "*.jsx", "*.ts", "*.tsx", "*.mjs"},
		Exclude: []string{"node_modules/*", "*.min.js", "dist/*"},
	},
	"documentation": {
		Include: []string{"*.md", "*.rst", "*.txt", "README*", "LICENSE*", "*.adoc"},
	},
	"config": {
		Include: []string{"*.json", "*.yaml", "*.yml", "*.toml", "*.ini", "*.cfg", ".env*", ".*rc"},
		Exclude: []string{"package-lock.json", "yarn.lock"},
	},
}

// Config holds the persisted settings. Zero values mean "use the default".
type Config struct {
	Ignore        []string          `yaml:"ignore,omitempty"`
	Output        string            `yaml:"output,omitempty"`
	Lazy          *bool             `yaml:"lazy,omitempty"`
	PreviewBudget int               `yaml:"preview_budget,omitempty"`
	ServiceURL    string            `yaml:"service_url,omitempty"`
	ServiceToken  string            `yaml:"service_token,omitempty"`
	StaleInterval time.Duration     `yaml:"stale_interval,omitempty"`
	Presets       map[string]Preset `yaml:"presets,omitempty"`
}

// IgnoreRules returns the configured ignore list, or the built-in defaults
// when none is stored.
func (c *Config) IgnoreRules() []string {
	if c == nil || c.Ignore == nil {
		return slices.Clone(catalog.DefaultIgnoreRules)
	}
	return slices.Clone(c.Ignore)
}

// LazyMode reports whether selection defers content reads. Defaults to true.
func (c *Config) LazyMode() bool {
	if c == nil || c.Lazy == nil {
		return true
	}
	return *c.Lazy
}

// Preset looks a preset up, user presets shadowing built-in ones.
func (c *Config) Preset(name string) (Preset, bool) {
	if c != nil {
		if p, ok := c.Presets[name]; ok {
			return p, true
		}
	}
	p, ok := BuiltinPresets[name]
	return p, ok
}

// PresetNames lists every available preset, sorted.
func (c *Config) PresetNames() []string {
	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for name := range BuiltinPresets {
		add(name)
	}
	if c != nil {
		for name := range c.Presets {
			add(name)
		}
	}
	sort.Strings(names)
	return names
}

// DefaultPath returns ~/.contextpack.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, FileName), nil
}

// Load reads the settings at path. A missing or empty file yields an empty
// Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	cfg := &Config{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Output != "" {
		normalized, ok := NormalizeOutputMode(cfg.Output)
		if !ok {
			return nil, fmt.Errorf("invalid output mode %q in %s (expected print, copy, or ssh-copy)", cfg.Output, path)
		}
		cfg.Output = normalized
	}
	if _, err := catalog.NewIgnorePolicy(cfg.IgnoreRules()); err != nil {
		return nil, fmt.Errorf("invalid ignore rules in %s: %w", path, err)
	}
	return cfg, nil
}

// Update applies set to the raw document at path and writes it back. Keys
// it does not touch are preserved, as are the file permissions.
func Update(path string, set func(doc map[string]any) error) error {
	var doc map[string]any
	data, err := os.ReadFile(path)
	if err == nil {
		if len(strings.TrimSpace(string(data))) > 0 {
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	if err := set(doc); err != nil {
		return err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return os.WriteFile(path, out, perm)
}
