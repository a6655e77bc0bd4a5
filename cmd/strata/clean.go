package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"strata/internal/driver"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Drop the findings disk cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := driver.OpenDiskCache("strata")
		if err != nil {
			return fmt.Errorf("failed to open disk cache: %w", err)
		}
		if err := cache.DropAll(); err != nil {
			return fmt.Errorf("failed to drop cache: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cache dropped")
		return nil
	},
}
