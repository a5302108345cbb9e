// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"cmp"
	"io"
	"io/fs"
	"slices"
)

type dirWithExtraChildren struct {
	fs.ReadDirFile
	stat          func() (fs.FileInfo, error)
	extraChildren func([]fs.DirEntry) []fs.DirEntry
	listing       []fs.DirEntry
	listOffset    int
	listed        bool
}

// Stat knows the public name, which differs from the inner one at a mountpoint
func (f *dirWithExtraChildren) Stat() (fs.FileInfo, error) { return f.stat() }

// Has slightly tricky partial-listing semantics
func (f *dirWithExtraChildren) ReadDir(count int) ([]fs.DirEntry, error) {
	if !f.listed {
		l, err := f.ReadDirFile.ReadDir(-1)
		if err != nil {
			return nil, err
		}
		f.listing = append(l, f.extraChildren(l)...)
		slices.SortFunc(f.listing, func(a, b fs.DirEntry) int {
			return cmp.Compare(a.Name(), b.Name())
		})
		f.listed = true
	}

	n := len(f.listing) - f.listOffset
	if n == 0 && count > 0 {
		return nil, io.EOF
	}
	if count > 0 && n > count {
		n = count
	}
	list := make([]fs.DirEntry, n)
	copy(list, f.listing[f.listOffset:][:n])
	f.listOffset += n
	return list, nil
}
