// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/elliotnunn/memzip/internal/zip"
	"github.com/spf13/cobra"
)

var listLong bool

var listCmd = &cobra.Command{
	Use:   "list ARCHIVE [PATTERN...]",
	Short: "List members, optionally only those matching doublestar patterns",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadFile(args[0])
		if err != nil {
			return err
		}
		files, err := selectFiles(a, args[1:])
		if err != nil {
			return err
		}
		if c := a.Comment(); c != "" && listLong {
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", c)
		}
		for _, f := range files {
			listOne(cmd.OutOrStdout(), f, listLong)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "show mode, size, method, checksum and time")
	rootCmd.AddCommand(listCmd)
}

// selectFiles returns every member matching any pattern, in directory order.
// No patterns selects everything.
func selectFiles(a *zip.Archive, patterns []string) ([]*zip.File, error) {
	if len(patterns) == 0 {
		return a.Files, nil
	}
	want := make(map[*zip.File]bool)
	for _, p := range patterns {
		matched, err := a.Glob(p)
		if err != nil {
			return nil, err
		}
		for _, f := range matched {
			want[f] = true
		}
	}
	var ret []*zip.File
	for _, f := range a.Files {
		if want[f] {
			ret = append(ret, f)
		}
	}
	return ret, nil
}

func methodName(m uint16) string {
	switch m {
	case zip.Store:
		return "stored"
	case zip.Deflate:
		return "deflated"
	default:
		return fmt.Sprintf("method%d", m)
	}
}

func listOne(w io.Writer, f *zip.File, long bool) {
	if !long {
		fmt.Fprintln(w, f.Name)
		return
	}
	fmt.Fprintf(w, "%v %9s %-8s %08x %s %s\n",
		f.Mode(),
		humanize.IBytes(uint64(f.UncompressedSize)),
		methodName(f.Method),
		f.CRC32,
		f.Modified().Format("2006-01-02 15:04"),
		f.Name)
}
