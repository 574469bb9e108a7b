package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agusx1211/contextpack/internal/catalog"
	"github.com/agusx1211/contextpack/internal/config"
	"github.com/agusx1211/contextpack/internal/logging"
	"github.com/agusx1211/contextpack/internal/metrics"
	"github.com/agusx1211/contextpack/internal/render"
	"github.com/agusx1211/contextpack/internal/session"
)

var metricsAddr string

const shellHelp = `commands:
  open <dir>             scan a folder
  tree                   print the directory tree
  find <query>           search (glob:, type:, size:<N(kb|mb))
  select <path|glob>...  select files
  deselect <path>...     remove files from the selection
  all                    select every file
  dir <dir>              select a directory subtree
  preset <name>          replace the selection with a preset
  clear                  empty the selection
  ls                     list the selection
  prompt <text>          set the prompt (files it mentions are auto-selected)
  detect                 reconcile the prompt now
  generate <text>        generate a prompt with the remote service
  summarize <path>       replace a file with a remote summary
  load                   read every pending file
  refresh                reread every selected file
  stale                  check for changed files and reread them
  lazy on|off            toggle lazy loading
  preview                render a truncated preview
  tokens                 print token statistics
  copy | print | ssh-copy  export the full payload
  quit`

var shellCmd = &cobra.Command{
	Use:   "shell [directory]",
	Short: "Build a payload interactively",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if metricsAddr != "" {
			srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logging.L().Error("metrics server failed", logging.Err(err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		opts := sessionOptions(cfg)
		if opts.StaleInterval <= 0 {
			opts.StaleInterval = 5 * time.Second
		}
		opts.Watch = true
		s, stop := startSession(ctx, opts, os.Stderr)
		defer stop()

		if len(args) > 0 {
			if _, err := s.Open(ctx, args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
		return runShell(ctx, s, os.Stdin, os.Stdout)
	},
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func runShell(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" || line == "exit" {
			return nil
		}
		if line != "" {
			if err := execLine(ctx, s, line, out); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func execLine(ctx context.Context, s *session.Session, line string, out io.Writer) error {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	fields := strings.Fields(rest)

	switch name {
	case "help":
		fmt.Fprintln(out, shellHelp)
	case "open":
		if rest == "" {
			return fmt.Errorf("usage: open <dir>")
		}
		_, err := s.Open(ctx, rest)
		return err
	case "tree":
		cat, err := s.Catalog(ctx)
		if err != nil {
			return err
		}
		if cat == nil {
			return session.ErrNoCatalog
		}
		fmt.Fprint(out, catalog.RenderTree(cat.Tree()))
	case "find":
		found, err := s.Search(ctx, rest, 0)
		if err != nil {
			return err
		}
		for _, p := range found {
			fmt.Fprintln(out, p)
		}
	case "select":
		for _, f := range fields {
			if strings.ContainsAny(f, "*?[{") {
				n, err := s.SelectGlob(ctx, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "selected %d files\n", n)
				continue
			}
			if err := s.Select(ctx, f); err != nil {
				return err
			}
		}
	case "deselect":
		for _, f := range fields {
			if err := s.Deselect(ctx, f); err != nil {
				return err
			}
		}
	case "all":
		n, err := s.SelectAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "selected %d files\n", n)
	case "dir":
		n, err := s.SelectDir(ctx, rest)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "selected %d files\n", n)
	case "preset":
		_, err := s.ApplyPreset(ctx, rest)
		return err
	case "clear":
		n, err := s.Clear(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d files\n", n)
	case "ls":
		entries, err := s.Entries(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			var flags []string
			if e.AutoSelected {
				flags = append(flags, "auto")
			}
			if e.Stale {
				flags = append(flags, "stale")
			}
			if e.Summarized {
				flags = append(flags, "summarized")
			}
			suffix := ""
			if len(flags) > 0 {
				suffix = " [" + strings.Join(flags, ",") + "]"
			}
			fmt.Fprintf(out, "%-8s %8s  %s%s\n", e.State, catalog.FormatBytes(e.Size), e.Path, suffix)
		}
	case "prompt":
		return s.SetPrompt(ctx, rest)
	case "detect":
		res, err := s.DetectNow(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(out, formatDetection(res))
	case "generate":
		text, err := s.GeneratePrompt(ctx, rest)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
	case "summarize":
		return s.Summarize(ctx, rest)
	case "load":
		report, err := s.LoadPending(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "loaded %d files, %d failed\n", report.Loaded, len(report.Failed))
	case "refresh":
		report, err := s.RefreshAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "refreshed %d files, %d failed\n", report.Loaded, len(report.Failed))
	case "stale":
		stale, err := s.ScanStale(ctx)
		if err != nil {
			return err
		}
		for _, p := range stale {
			fmt.Fprintf(out, "changed: %s\n", p)
		}
		report, err := s.RefreshStale(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "refreshed %d files\n", report.Loaded)
	case "lazy":
		switch rest {
		case "on":
			return s.SetLazy(ctx, true)
		case "off":
			return s.SetLazy(ctx, false)
		}
		return fmt.Errorf("usage: lazy on|off")
	case "preview":
		payload, err := s.Render(ctx, render.Preview)
		if err != nil {
			return err
		}
		fmt.Fprint(out, payload)
	case "tokens":
		st, err := s.Stats(ctx, render.CounterFor(tokenModel))
		if err != nil {
			return err
		}
		fmt.Fprint(out, st.Report(0))
	case config.OutputPrint, config.OutputCopy, config.OutputSSHCopy:
		payload, err := s.Export(ctx)
		if err != nil {
			return err
		}
		if name == config.OutputPrint {
			fmt.Fprint(out, payload)
			return nil
		}
		return deliver(name, payload)
	default:
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	return nil
}

func init() {
	shellCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	shellCmd.Flags().StringVar(&tokenModel, "model", render.DefaultModel, "Tokenizer model for the tokens command")
	rootCmd.AddCommand(shellCmd)
}
