// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/dustin/go-humanize"
	"github.com/elliotnunn/memzip/internal/zip"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree ARCHIVE",
	Short: "Print the directory tree the archive implies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadFile(args[0])
		if err != nil {
			return err
		}
		return dumpFS(cmd.OutOrStdout(), a.FS())
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)
}

func dumpFS(w io.Writer, fsys fs.FS) error {
	const tfmt = "2006-01-02T15:04:05"
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			fmt.Fprintf(w, "%#v\n    dump error: %s\n", p, err.Error())
			return fs.SkipDir
		}
		fmt.Fprintf(w, "%#v\n", p)
		i, err := d.Info()
		if err != nil {
			fmt.Fprintf(w, "    dump error: %s\n", err.Error())
			return nil
		}
		fmt.Fprintf(w, "    %v size=%s modtime=%s\n",
			i.Mode(), humanize.IBytes(uint64(i.Size())), i.ModTime().Format(tfmt))
		if f, ok := i.Sys().(*zip.File); ok && f.Comment != "" {
			fmt.Fprintf(w, "    comment=%q\n", f.Comment)
		}
		return nil
	})
}
