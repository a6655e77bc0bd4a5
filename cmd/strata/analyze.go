package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"strata/internal/config"
	"strata/internal/diagfmt"
	"strata/internal/driver"
	"strata/internal/frontend"
	"strata/internal/source"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] [directory]",
	Short: "Analyze Go packages for path-sensitive bugs",
	Long:  `Analyze loads the packages under a directory, explores the feasible paths of every function, and reports findings with the path that triggers each one`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("format", "pretty", "output format (pretty|json)")
	analyzeCmd.Flags().StringSlice("patterns", []string{"./..."}, "package patterns to load")
	analyzeCmd.Flags().Int("jobs", 0, "max parallel workers (0=auto)")
	analyzeCmd.Flags().Bool("no-path", false, "omit path annotations from output")
	analyzeCmd.Flags().Bool("preview", false, "show offending source lines")
	analyzeCmd.Flags().Bool("disk-cache", false, "reuse findings for unchanged functions across runs")
	analyzeCmd.Flags().Int("max", 0, "truncate JSON output after this many findings (0=all)")
	analyzeCmd.Flags().String("ui", "auto", "live progress view (auto|on|off)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	if info, err := os.Stat(dir); err != nil {
		return err
	} else if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", dir)
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	format = strings.ToLower(format)
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}

	patterns, err := cmd.Flags().GetStringSlice("patterns")
	if err != nil {
		return fmt.Errorf("failed to get patterns flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	noPath, err := cmd.Flags().GetBool("no-path")
	if err != nil {
		return fmt.Errorf("failed to get no-path flag: %w", err)
	}
	preview, err := cmd.Flags().GetBool("preview")
	if err != nil {
		return fmt.Errorf("failed to get preview flag: %w", err)
	}
	useCache, err := cmd.Flags().GetBool("disk-cache")
	if err != nil {
		return fmt.Errorf("failed to get disk-cache flag: %w", err)
	}
	maxFindings, err := cmd.Flags().GetInt("max")
	if err != nil {
		return fmt.Errorf("failed to get max flag: %w", err)
	}
	uiFlag, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode(uiFlag)
	if err != nil {
		return err
	}

	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	timings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	configPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Resolve(dir, configPath)
	if err != nil {
		return err
	}

	_, traceCleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer traceCleanup()

	var cache *driver.DiskCache
	if useCache {
		cache, err = driver.OpenDiskCache("strata")
		if err != nil {
			return fmt.Errorf("failed to open disk cache: %w", err)
		}
	}

	// The tracer travels through the command context; the driver reads
	// it back with trace.FromContext.
	opts := driver.Options{
		Config: cfg,
		Cache:  cache,
		Jobs:   jobs,
	}

	// The TUI only makes sense for interactive pretty output.
	useTUI := shouldUseTUI(mode) && format == "pretty" && !quiet

	var res *driver.RunResult
	var files *source.FileSet
	if useTUI {
		res, files, err = analyzeWithUI(cmd, dir, opts, patterns)
	} else {
		prog, loadErr := frontend.Load(dir, patterns...)
		if loadErr != nil {
			err = loadErr
		} else {
			files = prog.Files
			res, err = driver.AnalyzeFunctions(cmd.Context(), prog.Lowered(), files, opts)
		}
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		if err := diagfmt.JSON(out, res.Findings, diagfmt.JSONOpts{
			IncludePath: !noPath,
			Max:         maxFindings,
		}); err != nil {
			return err
		}
	default:
		diagfmt.Pretty(out, res.Findings, files, diagfmt.PrettyOpts{
			Color:       useColor(cmd),
			ShowPath:    !noPath,
			ShowPreview: preview,
		})
		if !quiet {
			summary(cmd, res)
		}
	}

	if timings && !quiet {
		for _, ph := range res.Timings.Phases {
			fmt.Fprintf(cmd.ErrOrStderr(), "%-12s %8.2f ms  %s\n", ph.Name, ph.DurationMS, ph.Note)
		}
	}

	if len(res.Findings) > 0 {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return fmt.Errorf("%d finding(s)", len(res.Findings))
	}
	return nil
}

func summary(cmd *cobra.Command, res *driver.RunResult) {
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "analyzed %d function(s): %d finding(s)", res.Functions, len(res.Findings))
	if res.CacheHits > 0 {
		fmt.Fprintf(w, ", %d cached", res.CacheHits)
	}
	if res.Incomplete > 0 {
		fmt.Fprintf(w, ", %d hit an exploration budget", res.Incomplete)
	}
	fmt.Fprintln(w)
}

func useColor(cmd *cobra.Command) bool {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return false
	}
	switch strings.ToLower(mode) {
	case "on":
		return true
	case "off":
		return false
	default:
		return isTerminal(os.Stdout)
	}
}
