package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agusx1211/contextpack/internal/config"
	"github.com/agusx1211/contextpack/internal/events"
	"github.com/agusx1211/contextpack/internal/logging"
	"github.com/agusx1211/contextpack/internal/remote"
	"github.com/agusx1211/contextpack/internal/render"
	"github.com/agusx1211/contextpack/internal/session"
)

var configPath string
var logLevel string
var quiet bool

var promptText string
var promptFile string
var generateInput string
var selectGlobs []string
var selectAll bool
var presetName string
var noDetect bool
var previewOnly bool
var lazyFlag bool
var eagerFlag bool
var dedup bool
var summarizePaths []string
var showTokens bool
var tokenModel string
var printOutput bool
var copyOutput bool
var sshCopyOutput bool
var toFile bool
var fileName string

var rootCmd = &cobra.Command{
	Use:   "contextpack [directory]",
	Short: "Contextpack packs a prompt and the files it needs into one payload",
	Long: `Contextpack scans a directory, selects files by glob, preset or by
detecting the paths a prompt mentions, and renders the prompt followed by
the selected files as a single payload for a language model.`,
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) { _ = logging.Sync() },
	RunE:              runPack,
}

func setup(cmd *cobra.Command, args []string) error {
	return logging.Init(logging.Config{Level: logLevel, Format: "console", OutputPath: "stderr"})
}

func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, "", fmt.Errorf("failed to locate home directory: %w", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func sessionOptions(cfg *config.Config) session.Options {
	opts := session.Options{
		Config:        cfg,
		StaleInterval: cfg.StaleInterval,
		Render:        render.Options{PreviewBudget: cfg.PreviewBudget, Dedup: dedup},
	}
	if lazyFlag {
		opts.Lazy = boolPtr(true)
	}
	if eagerFlag {
		opts.Lazy = boolPtr(false)
	}
	if cfg.ServiceURL != "" {
		opts.Remote = remote.NewClient(cfg.ServiceURL, cfg.ServiceToken)
	}
	return opts
}

func boolPtr(v bool) *bool { return &v }

// startSession runs a session until the returned stop function is called.
func startSession(ctx context.Context, opts session.Options, w io.Writer) (*session.Session, func()) {
	ctx, cancel := context.WithCancel(ctx)
	s := session.New(opts)
	go s.Run(ctx)

	ch := s.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printToasts(ch, w)
	}()
	return s, func() {
		s.Unsubscribe(ch)
		<-printed
		cancel()
		<-s.Done()
	}
}

func printToasts(ch <-chan events.Event, w io.Writer) {
	for ev := range ch {
		if ev.Kind != events.KindToast || w == nil {
			continue
		}
		if ev.IsError {
			fmt.Fprintf(w, "error: %s\n", ev.Message)
		} else {
			fmt.Fprintln(w, ev.Message)
		}
	}
}

func toastWriter() io.Writer {
	if quiet {
		return nil
	}
	return os.Stderr
}

func readPrompt() (string, error) {
	if promptText != "" && promptFile != "" {
		return "", fmt.Errorf("only one of --prompt or --prompt-file may be set")
	}
	if promptFile == "" {
		return promptText, nil
	}
	var data []byte
	var err error
	if promptFile == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(promptFile)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func runPack(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if lazyFlag && eagerFlag {
		return fmt.Errorf("only one of --lazy or --eager may be set")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	mode, err := config.ResolveOutputMode(cfg.Output, printOutput, copyOutput, sshCopyOutput)
	if err != nil {
		return err
	}
	prompt, err := readPrompt()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, stop := startSession(ctx, sessionOptions(cfg), toastWriter())
	defer stop()

	if _, err := s.Open(ctx, dir); err != nil {
		return fmt.Errorf("failed to open %s: %w", dir, err)
	}

	if presetName != "" {
		if _, err := s.ApplyPreset(ctx, presetName); err != nil {
			return err
		}
	}
	if selectAll {
		if _, err := s.SelectAll(ctx); err != nil {
			return err
		}
	}
	if len(selectGlobs) > 0 {
		if _, err := s.SelectGlob(ctx, selectGlobs...); err != nil {
			return err
		}
	}

	if generateInput != "" {
		generated, err := s.GeneratePrompt(ctx, generateInput)
		if err != nil {
			return fmt.Errorf("failed to generate prompt: %w", err)
		}
		prompt = generated
	}
	if err := s.SetPrompt(ctx, prompt); err != nil {
		return err
	}
	if !noDetect && strings.TrimSpace(prompt) != "" {
		if _, err := s.DetectNow(ctx); err != nil {
			return err
		}
	}

	if len(summarizePaths) > 0 {
		if _, err := s.LoadPending(ctx); err != nil {
			return err
		}
		for _, p := range summarizePaths {
			if err := s.Summarize(ctx, p); err != nil {
				return fmt.Errorf("failed to summarize %s: %w", p, err)
			}
		}
	}

	var payload string
	if previewOnly {
		payload, err = s.Render(ctx, render.Preview)
	} else {
		payload, err = s.Export(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("nothing to output: no prompt and no files selected")
	}

	if showTokens {
		st, err := s.Stats(ctx, render.CounterFor(tokenModel))
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stderr, st.Report(0))
	}

	if toFile {
		if err := os.WriteFile(fileName, []byte(payload), 0o644); err != nil {
			return fmt.Errorf("failed to write to file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Output written to: %s\n", fileName)
		return nil
	}
	return deliver(mode, payload)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default ~/.contextpack)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Do not print notifications")
	rootCmd.PersistentFlags().BoolVar(&lazyFlag, "lazy", false, "Defer reading selected files until output")
	rootCmd.PersistentFlags().BoolVar(&eagerFlag, "eager", false, "Read selected files as soon as they are selected")
	rootCmd.PersistentFlags().BoolVar(&dedup, "dedup", false, "Replace repeated file contents with a reference to the first copy")

	rootCmd.Flags().StringVarP(&promptText, "prompt", "p", "", "Prompt text placed before the files")
	rootCmd.Flags().StringVarP(&promptFile, "prompt-file", "P", "", "Read the prompt from a file (- for stdin)")
	rootCmd.Flags().StringVar(&generateInput, "generate", "", "Generate the prompt from this text with the remote service")
	rootCmd.Flags().StringSliceVarP(&selectGlobs, "select", "s", nil, "Select files matching these globs")
	rootCmd.Flags().BoolVarP(&selectAll, "all", "a", false, "Select every file")
	rootCmd.Flags().StringVar(&presetName, "preset", "", "Apply a selection preset")
	rootCmd.Flags().BoolVar(&noDetect, "no-detect", false, "Do not select files mentioned in the prompt")
	rootCmd.Flags().BoolVar(&previewOnly, "preview", false, "Render a truncated preview instead of the full payload")
	rootCmd.Flags().StringSliceVar(&summarizePaths, "summarize", nil, "Replace these files with a remote summary")
	rootCmd.Flags().BoolVarP(&showTokens, "tokens", "t", false, "Print token statistics to stderr")
	rootCmd.Flags().StringVar(&tokenModel, "model", render.DefaultModel, "Tokenizer model for --tokens")
	rootCmd.Flags().BoolVar(&printOutput, "print", false, "Print the payload to stdout")
	rootCmd.Flags().BoolVar(&copyOutput, "copy", false, "Copy the payload to the system clipboard")
	rootCmd.Flags().BoolVar(&sshCopyOutput, "ssh-copy", false, "Copy the payload through the terminal (OSC 52)")
	rootCmd.Flags().BoolVarP(&toFile, "to-file", "f", false, "Write output to file instead of stdout")
	rootCmd.Flags().StringVarP(&fileName, "file-name", "n", "./context.md", "Output file name (only used with --to-file)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
