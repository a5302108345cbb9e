// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"fmt"
	"io/fs"
)

func (fsys *FS) Open(name string) (f fs.File, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "open", Path: name, Err: err}
		}
	}()

	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}

	o, err := fsys.path(name)
	if err != nil {
		return nil, err
	}

	f, err = o.fsys.Open(o.name)
	if err != nil {
		return nil, err
	}
	s, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unexpectedly unable to stat an open file: %w", err)
	}
	if !s.IsDir() {
		return f, nil // os.File and archive members both seek
	}

	// all directories must have mountpoints added to their listing
	rdf, ok := f.(fs.ReadDirFile)
	if !ok {
		f.Close()
		return nil, fs.ErrInvalid
	}
	return &dirWithExtraChildren{
		ReadDirFile:   rdf,
		stat:          func() (fs.FileInfo, error) { return fsys.Stat(name) },
		extraChildren: func(l []fs.DirEntry) []fs.DirEntry { return fsys.mountPoints(o, l) },
	}, nil
}
