// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"io/fs"
	gopath "path"
	"strings"
)

// A generalisation of a "file path"
// - names the hidden sub-FS (the root or an archive) and the path within it
// - remembers the archive's cache key and where it is mounted in the public tree
type path struct {
	fsys   fs.FS
	name   string
	key    uint64 // 0 for the root
	prefix string // public path of the sub-FS, "" for the root
}

// join returns a path with some elements added. Caution! It is only a lexical operation,
// and will return an unusable path if passed a Special character
func (o path) join(p string) path { o.name = gopath.Join(o.name, p); return o }

// String returns the full public path to the file
func (o path) String() string {
	if o.prefix == "" {
		return o.name
	}
	return gopath.Join(o.prefix, o.name)
}

// path turns a string into our internal path representation
//
// Nonexistent paths might, but won't always, return fs.ErrNotExist
func (fsys *FS) path(name string) (path, error) {
	warps := strings.Split(name, Special+"/")
	if strings.HasSuffix(name, Special) {
		warps[len(warps)-1] = strings.TrimSuffix(warps[len(warps)-1], Special)
		warps = append(warps, ".")
	}

	p := path{fsys: fsys.root, name: "."}
	for _, el := range warps[:len(warps)-1] {
		var isar bool
		p, isar = fsys.getArchive(p.join(el))
		if !isar {
			return path{}, fs.ErrNotExist
		}
	}
	return p.join(warps[len(warps)-1]), nil
}
