// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	gopath "path"
	"path/filepath"
	"sync"

	"github.com/elliotnunn/memzip/internal/archivecache"
	"github.com/elliotnunn/memzip/internal/zip"
)

// Special marks the directory that stands in for an archive's contents.
// "a.zip◆/b.txt" is b.txt inside a.zip.
const Special = "◆"

// FS is a read-only view of a directory tree in which every ZIP archive
// is also browsable as a directory named after it plus [Special].
// Archives inside archives work the same way.
type FS struct {
	root  fs.FS
	base  string // host directory behind root, or "" if there is none
	ctx   context.Context
	cache *archivecache.Cache

	mu     sync.RWMutex
	probes map[uint64]bool // absent: not yet looked at
}

// Wrapper layers archive browsing over root.
// If base is not empty it must be the host directory root was made from,
// which lets top-level archives be memory mapped rather than read.
func Wrapper(ctx context.Context, root fs.FS, base string, cache *archivecache.Cache) *FS {
	return &FS{
		root:   root,
		base:   base,
		ctx:    ctx,
		cache:  cache,
		probes: make(map[uint64]bool),
	}
}

// archiveKey identifies the file at o, changing whenever the file might have
func (fsys *FS) archiveKey(o path, info fs.FileInfo) uint64 {
	if o.key != 0 {
		return archivecache.Key(o.key, o.name) // archive contents never change
	}
	ino, _ := fileID(info)
	return archivecache.Key(fsys.base, o.name, info.Size(), info.ModTime().UnixNano(), ino)
}

// isArchive decides, cheaply and once per file version, whether o deserves a mount point
func (fsys *FS) isArchive(o path) (uint64, bool) {
	if o.key == 0 {
		switch gopath.Ext(o.name) {
		case ".crdownload", ".part": // undercooked files, do not touch
			return 0, false
		}
	}
	info, err := fs.Stat(o.fsys, o.name)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	key := fsys.archiveKey(o, info)

	fsys.mu.RLock()
	isar, known := fsys.probes[key]
	fsys.mu.RUnlock()
	if known {
		return key, isar
	}

	isar, err = probe(o)
	if err != nil {
		slog.Warn("archiveProbeError", "path", o, "err", err)
	}
	fsys.mu.Lock()
	fsys.probes[key] = isar
	fsys.mu.Unlock()
	return key, isar
}

func probe(o path) (bool, error) {
	f, err := o.fsys.Open(o.name)
	if err != nil {
		return false, err
	}
	defer f.Close()
	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	return looksLikeArchive(o.name, head[:n]), nil
}

// getArchive returns the root of the archive at o, loading it if it is not cached
func (fsys *FS) getArchive(o path) (path, bool) {
	key, isar := fsys.isArchive(o)
	if !isar {
		return path{}, false
	}
	a, err := fsys.cache.Get(fsys.ctx, key, func() (*zip.Archive, error) { return fsys.load(o) })
	if err != nil {
		slog.Warn("archiveInstantiateError", "path", o, "err", err)
		fsys.mu.Lock()
		fsys.probes[key] = false // until the file changes
		fsys.mu.Unlock()
		return path{}, false
	}
	return path{fsys: a.FS(), name: ".", key: key, prefix: o.String() + Special}, true
}

func (fsys *FS) load(o path) (*zip.Archive, error) {
	slog.Debug("archiveLoad", "path", o)
	if o.key == 0 && fsys.base != "" {
		return loadFile(filepath.Join(fsys.base, filepath.FromSlash(o.name)))
	}
	info, err := fs.Stat(o.fsys, o.name)
	if err != nil {
		return nil, err
	}
	if info.Size() > int64(memLimit) {
		return nil, errTooBig
	}
	buf, err := fs.ReadFile(o.fsys, o.name)
	if err != nil {
		return nil, err
	}
	return extract(buf, o.String())
}

var (
	_ fs.StatFS    = new(FS)
	_ fs.ReadDirFS = new(FS)
)
