// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"io/fs"
	"log/slog"
	"strings"
	"time"
)

// Prefetch walks the whole tree, descending into every archive,
// so that the archives most likely to be wanted are parsed before anyone asks.
func (fsys *FS) Prefetch() {
	slog.Info("prefetchStart")
	t := time.Now()
	n := 0
	fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if fsys.ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			slog.Debug("prefetchSkip", "path", p, "err", err)
			return nil
		}
		if d.IsDir() && strings.HasSuffix(p, Special) {
			n++
		}
		return nil
	})
	slog.Info("prefetchStop", "archives", n, "duration", time.Since(t).Truncate(time.Millisecond).String())
}
