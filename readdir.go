// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"io/fs"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

func (fsys *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, ok := f.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return d.ReadDir(-1)
}

// mountPoints returns an extra directory entry for each archive in a listing.
// Only the first few bytes of each file are read.
func (fsys *FS) mountPoints(dir path, listing []fs.DirEntry) []fs.DirEntry {
	var (
		mu  sync.Mutex
		ret []fs.DirEntry
		g   errgroup.Group
	)
	g.SetLimit(runtime.NumCPU())
	for _, l := range listing {
		if !l.Type().IsRegular() {
			continue // no to directories
		}
		g.Go(func() error {
			if _, isar := fsys.isArchive(dir.join(l.Name())); !isar {
				return nil
			}
			info, err := l.Info()
			if err != nil {
				return nil // vanished
			}
			mu.Lock()
			ret = append(ret, mountPointEntry{archiveStat: info})
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return ret
}
