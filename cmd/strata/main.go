package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"strata/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata path-sensitive static analyzer",
	Long:  `Strata explores the feasible execution paths of Go functions and reports bugs with the path that triggers them`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cleanCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().String("config", "", "path to strata.toml (default: <dir>/strata.toml)")
	rootCmd.PersistentFlags().String("trace", "", "trace output path ('-' for stderr)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|phase|detail|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace storage mode (stream|ring)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 4096, "ring buffer capacity in events")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
