// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Command memzip reads ZIP archives entirely in memory.
//
// Environment:
//   - MEMZIP_GB caps the size of any one archive, compressed or not (default 1)
//   - MEMZIP_ARCHIVES is how many parsed archives serve keeps (default 64)
package main

import (
	"log/slog"
	"os"

	"charm.land/log/v2"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "memzip",
	Short:         "Read ZIP archives entirely in memory",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level := log.InfoLevel
		if verbose {
			level = log.DebugLevel
		}
		slog.SetDefault(slog.New(log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
			Level:           level,
			ReportTimestamp: verbose,
			Prefix:          "memzip",
		})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug events")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("memzipFailed", "err", err)
		os.Exit(1)
	}
}
