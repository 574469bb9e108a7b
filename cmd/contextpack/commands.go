package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agusx1211/contextpack/internal/catalog"
	"github.com/agusx1211/contextpack/internal/config"
	"github.com/agusx1211/contextpack/internal/detect"
)

var findLimit int

func dirArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return "."
}

var treeCmd = &cobra.Command{
	Use:   "tree [directory]",
	Short: "Print the directory tree with sizes and file counts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, stop := startSession(ctx, sessionOptions(cfg), nil)
		defer stop()

		cat, err := s.Open(ctx, dirArg(args, 0))
		if err != nil {
			return err
		}
		fmt.Print(catalog.RenderTree(cat.Tree()))
		return nil
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect [directory]",
	Short: "Show which files a prompt mentions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		prompt, err := readPrompt()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, stop := startSession(ctx, sessionOptions(cfg), nil)
		defer stop()

		if _, err := s.Open(ctx, dirArg(args, 0)); err != nil {
			return err
		}
		if err := s.SetPrompt(ctx, prompt); err != nil {
			return err
		}
		res, err := s.DetectNow(ctx)
		if err != nil {
			return err
		}
		fmt.Print(formatDetection(res))
		return nil
	},
}

func formatDetection(res detect.Result) string {
	var b strings.Builder
	fuzzy := make(map[string]detect.FuzzyMatch, len(res.Fuzzy))
	for _, f := range res.Fuzzy {
		fuzzy[f.Matched] = f
	}
	for _, p := range res.Mentioned {
		if f, ok := fuzzy[p]; ok {
			fmt.Fprintf(&b, "~ %s (from %q, score %.2f)\n", p, f.Original, f.Score)
			continue
		}
		fmt.Fprintf(&b, "= %s\n", p)
	}
	for _, u := range res.Unmatched {
		fmt.Fprintf(&b, "? %s\n", u)
	}
	if msg := res.Message(); msg != "" {
		fmt.Fprintf(&b, "%s\n", msg)
	}
	return b.String()
}

var findCmd = &cobra.Command{
	Use:   "find <query> [directory]",
	Short: "Search files with glob:, type: and size: filters and fuzzy text",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s, stop := startSession(ctx, sessionOptions(cfg), nil)
		defer stop()

		if _, err := s.Open(ctx, dirArg(args, 1)); err != nil {
			return err
		}
		found, err := s.Search(ctx, args[0], findLimit)
		if err != nil {
			return err
		}
		for _, p := range found {
			fmt.Println(p)
		}
		return nil
	},
}

var ignoreCmd = &cobra.Command{
	Use:   "ignore",
	Short: "Manage the persisted ignore rules",
}

var ignoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the ignore rules in effect",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		for _, r := range cfg.IgnoreRules() {
			fmt.Println(r)
		}
		return nil
	},
}

var ignoreAddCmd = &cobra.Command{
	Use:   "add <rule>...",
	Short: "Append ignore rules",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, err := loadConfig()
		if err != nil {
			return err
		}
		rules, err := config.AddIgnoreRules(path, args...)
		if err != nil {
			return fmt.Errorf("failed to save ignore rules: %w", err)
		}
		notify(fmt.Sprintf("Ignore rules saved! (%d rules)", len(rules)))
		return nil
	},
}

var ignoreRemoveCmd = &cobra.Command{
	Use:   "remove <rule>...",
	Short: "Remove ignore rules",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, err := loadConfig()
		if err != nil {
			return err
		}
		rules, err := config.RemoveIgnoreRules(path, args...)
		if err != nil {
			return fmt.Errorf("failed to save ignore rules: %w", err)
		}
		notify(fmt.Sprintf("Ignore rules saved! (%d rules)", len(rules)))
		return nil
	},
}

var ignoreResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default ignore rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, err := loadConfig()
		if err != nil {
			return err
		}
		if err := config.ResetIgnoreRules(path); err != nil {
			return fmt.Errorf("failed to reset ignore rules: %w", err)
		}
		notify("Ignore rules reset to defaults")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change settings",
}

var configSetOutputCmd = &cobra.Command{
	Use:   "set-output <print|copy|ssh-copy>",
	Short: "Set the default output mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, err := loadConfig()
		if err != nil {
			return err
		}
		if err := config.SetOutputMode(path, args[0]); err != nil {
			return err
		}
		mode, _ := config.NormalizeOutputMode(args[0])
		notify(fmt.Sprintf("Default output set to %s in %s", mode, path))
		return nil
	},
}

var configPresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List selection presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		for _, name := range cfg.PresetNames() {
			p, _ := cfg.Preset(name)
			fmt.Printf("%s: include %s", name, strings.Join(p.Include, " "))
			if len(p.Exclude) > 0 {
				fmt.Printf("; exclude %s", strings.Join(p.Exclude, " "))
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	findCmd.Flags().IntVarP(&findLimit, "limit", "l", detect.DefaultSearchLimit, "Maximum number of results")
	detectCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "Prompt text to scan")
	detectCmd.Flags().StringVarP(&promptFile, "prompt-file", "P", "", "Read the prompt from a file (- for stdin)")

	ignoreCmd.AddCommand(ignoreListCmd, ignoreAddCmd, ignoreRemoveCmd, ignoreResetCmd)
	configCmd.AddCommand(configSetOutputCmd, configPresetsCmd)
	rootCmd.AddCommand(treeCmd, detectCmd, findCmd, ignoreCmd, configCmd)
}
