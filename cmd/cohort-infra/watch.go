package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cohort-modeler/cohort-infra/internal/config"
	"github.com/cohort-modeler/cohort-infra/internal/lint"
	"github.com/cohort-modeler/cohort-infra/internal/validation"
)

// newWatchCmd creates the "watch" subcommand for re-synthesizing on changes.
func newWatchCmd(c *cli) *cobra.Command {
	var (
		debounce    time.Duration
		skipCfnLint bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-synthesize when the config or assets change",
		Long: `Watch monitors the config file and the asset directory and, after each
change, re-synthesizes the assembly, validates it and lints it.

Rapid changes are debounced.

Examples:
    cohort-infra watch
    cohort-infra watch --debounce 1s --skip-cfn-lint`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, c, debounce, skipCfnLint)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Debounce duration for rapid changes")
	cmd.Flags().BoolVar(&skipCfnLint, "skip-cfn-lint", false, "Skip the cfn-lint pass")

	return cmd
}

func runWatch(cmd *cobra.Command, c *cli, debounce time.Duration, skipCfnLint bool) error {
	if err := c.load(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	outDir, err := filepath.Abs(c.cfg.OutDir)
	if err != nil {
		return err
	}
	configPath := c.configPath
	if configPath == "" {
		configPath = config.Find(".")
	}
	if configPath != "" {
		// Editors replace files on save, so watch the directory.
		if err := watcher.Add(filepath.Dir(configPath)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", configPath, err)
		}
		fmt.Fprintf(out, "Watching: %s\n", configPath)
	}
	if err := addDirRecursive(watcher, c.cfg.Assets.Dir, outDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", c.cfg.Assets.Dir, err)
	}
	fmt.Fprintf(out, "Watching: %s\n", c.cfg.Assets.Dir)

	fmt.Fprintln(out, "Running initial synth...")
	runCycle(out, c, skipCfnLint)

	var debounceTimer *time.Timer
	rebuildChan := make(chan struct{}, 1)

	fmt.Fprintln(out, "\nWatching for changes... (Ctrl+C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, configPath, outDir) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addDirRecursive(watcher, event.Name, outDir)
				}
			}

			// Debounce: reset timer on each change
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				select {
				case rebuildChan <- struct{}{}:
				default:
				}
			})

		case <-rebuildChan:
			fmt.Fprintf(out, "\n[%s] Change detected, re-synthesizing...\n", time.Now().Format("15:04:05"))
			c.cfg = nil
			if err := c.load(); err != nil {
				fmt.Fprintf(out, "Config error: %v\n", err)
				continue
			}
			runCycle(out, c, skipCfnLint)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("watch error", zap.Error(err))

		case <-cmd.Context().Done():
			fmt.Fprintln(out, "\nStopping watch...")
			return nil
		}
	}
}

// relevant reports whether an event should trigger a rebuild: writes to the
// config file or anything in the asset tree outside the assembly directory.
func relevant(event fsnotify.Event, configPath, outDir string) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if name == outDir || strings.HasPrefix(name, outDir+string(filepath.Separator)) {
		return false
	}
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	if configPath != "" && filepath.Dir(name) == mustAbs(filepath.Dir(configPath)) {
		return filepath.Base(name) == filepath.Base(configPath)
	}
	return true
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// addDirRecursive adds a directory and all subdirectories to the watcher,
// skipping hidden directories and the assembly directory.
func addDirRecursive(watcher *fsnotify.Watcher, dir, skip string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(filepath.Base(path), ".") && path != dir {
			return filepath.SkipDir
		}
		if mustAbs(path) == skip {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// runCycle synthesizes, validates and lints, printing a short report.
func runCycle(out io.Writer, c *cli, skipCfnLint bool) {
	asm, err := c.synth()
	if err != nil {
		fmt.Fprintf(out, "Synth failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Synthesized %d stacks, %d resources\n", len(asm.Manifest.Stacks), asm.ResourceCount())

	result, err := validation.Validate(c.cfg.OutDir, asm, validation.Options{SkipCfnLint: skipCfnLint})
	if err != nil {
		fmt.Fprintf(out, "Validation error: %v\n", err)
		return
	}
	for _, e := range result.Errors {
		fmt.Fprintf(out, "error: %s\n", e)
	}
	if !result.Success {
		fmt.Fprintln(out, "Validation failed")
		return
	}
	fmt.Fprintln(out, "Validation passed")

	found := lint.LintAssembly(c.cfg.OutDir, asm, lint.Options{})
	for _, f := range found.Findings {
		if f.Severity == lint.SeverityInfo {
			continue
		}
		fmt.Fprintf(out, "%s/%s: %s: %s [%s]\n", f.Stack, f.Resource, f.Severity, f.Message, f.Rule)
	}
}
