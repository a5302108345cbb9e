// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/elliotnunn/memzip/internal/zip"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var checkCmd = &cobra.Command{
	Use:     "test ARCHIVE...",
	Aliases: []string{"check"},
	Short:   "Decompress every member and verify its checksum",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bad := 0
		for _, name := range args {
			a, err := loadFile(name)
			if err != nil {
				slog.Error("testLoad", "archive", name, "err", err)
				bad++
				continue
			}
			failures := checkArchive(a)
			for _, err := range failures {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", name, err)
			}
			if len(failures) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries ok\n", name, len(a.Files))
			} else {
				bad++
			}
		}
		if bad != 0 {
			return fmt.Errorf("%d of %d archives failed", bad, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// checkArchive materializes every member concurrently and returns the errors in directory order
func checkArchive(a *zip.Archive) []error {
	t := time.Now()
	errs := make([]error, len(a.Files))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	var mu sync.Mutex
	total := 0
	for i, f := range a.Files {
		g.Go(func() error {
			data, err := f.Data()
			errs[i] = err
			mu.Lock()
			total += len(data)
			mu.Unlock()
			return nil // keep going to report everything
		})
	}
	g.Wait()
	slog.Debug("testDone", "entries", len(a.Files), "bytes", total, "duration", time.Since(t).String())

	var ret []error
	for _, err := range errs {
		if err != nil {
			ret = append(ret, err)
		}
	}
	return ret
}
