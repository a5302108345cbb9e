// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/elliotnunn/memzip/internal/zip"
	"github.com/spf13/cobra"
)

var (
	extractDir   string
	extractStrip int
)

var extractCmd = &cobra.Command{
	Use:   "extract ARCHIVE [PATTERN...]",
	Short: "Write members to a directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadFile(args[0])
		if err != nil {
			return err
		}
		n, err := extractTo(a, extractDir, extractStrip, args[1:])
		slog.Info("extractDone", "archive", args[0], "dir", extractDir, "files", n)
		return err
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractDir, "dir", "d", ".", "destination directory")
	extractCmd.Flags().IntVar(&extractStrip, "strip-components", 0, "drop this many leading path elements")
	rootCmd.AddCommand(extractCmd)
}

// extractTo walks the archive's file tree and recreates it under dir.
// Patterns are matched against the tree path before stripping.
func extractTo(a *zip.Archive, dir string, strip int, patterns []string) (n int, err error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return 0, fmt.Errorf("%w: %q", doublestar.ErrBadPattern, p)
		}
	}
	if strip < 0 {
		return 0, errors.New("negative --strip-components")
	}

	fsys := a.FS()
	var dirTimes []func() // directories are stamped last, after their contents are written
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." || plen(p) <= strip {
			return nil
		}
		if !wanted(p, patterns) {
			return nil // but keep descending
		}

		rel := pright(p, strip)
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			slog.Warn("extractUnsafeName", "name", p)
			return nil
		}
		dst := filepath.Join(dir, filepath.FromSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := os.MkdirAll(dst, info.Mode().Perm()|0o700); err != nil {
				return err
			}
			dirTimes = append(dirTimes, func() { stamp(dst, info.ModTime()) })
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
			return err
		}
		stamp(dst, info.ModTime())
		slog.Debug("extractFile", "name", p, "size", len(data))
		n++
		return nil
	})
	for i := len(dirTimes) - 1; i >= 0; i-- {
		dirTimes[i]()
	}
	return n, err
}

// stamp sets a file's times, which is worth trying but not worth failing over
func stamp(name string, t time.Time) {
	if err := os.Chtimes(name, t, t); err != nil {
		slog.Debug("extractChtimesError", "path", name, "err", err)
	}
}

func wanted(p string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pat := range patterns {
		if doublestar.MatchUnvalidated(pat, p) {
			return true
		}
	}
	return false
}
