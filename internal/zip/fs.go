// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package zip

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// FS presents the archive as a read-only [fs.FS].
//   - parent directories are implied when the archive omits them
//   - names that are not valid [fs.ValidPath] paths are skipped
//   - when two members share a name the first one wins, as with [Archive.Find]
//   - symlinks appear as regular files holding the link target
//
// Opening a file inflates it, so errors in the data surface from Open.
// The tree is built on the first call and shared after that.
// The result is safe for concurrent use.
func (a *Archive) FS() fs.FS {
	a.fsOnce.Do(func() { a.fsys = a.buildFS() })
	return a.fsys
}

func (a *Archive) buildFS() *archiveFS {
	root := &node{name: ".", mode: fs.ModeDir | 0o755}
	dirs := map[string]*node{".": root}
	taken := map[string]bool{".": true}

	var mkdirAll func(name string) *node
	mkdirAll = func(name string) *node {
		if d, ok := dirs[name]; ok {
			return d
		} else if taken[name] {
			return nil // already a file
		}
		parent := mkdirAll(path.Dir(name))
		if parent == nil {
			return nil
		}
		d := &node{name: path.Base(name), mode: fs.ModeDir | 0o755}
		parent.children = append(parent.children, d)
		dirs[name] = d
		taken[name] = true
		return d
	}

	for _, f := range a.Files {
		name, ok := fsName(&f.CentralDirectoryEntry)
		if !ok {
			continue
		}
		mode := f.Mode()
		if mode.IsDir() {
			if d := mkdirAll(name); d != nil && d.f == nil {
				d.f = f
				d.mode = mode&fs.ModePerm | fs.ModeDir
				d.mtime = f.Modified()
			}
			continue
		}

		if taken[name] {
			continue
		}
		parent := mkdirAll(path.Dir(name))
		if parent == nil {
			continue
		}
		taken[name] = true
		parent.children = append(parent.children, &node{
			name:  path.Base(name),
			mode:  mode &^ fs.ModeType,
			mtime: f.Modified(),
			f:     f,
		})
	}

	for _, d := range dirs {
		slices.SortFunc(d.children, func(a, b *node) int { return strings.Compare(a.name, b.name) })
	}
	return &archiveFS{root: root}
}

// fsName turns a member name into an io/fs path, or reports false
func fsName(e *CentralDirectoryEntry) (string, bool) {
	name := e.Name
	if nx, ok := parseExtra(e.Extra)[0x7055]; ok && len(nx) >= 6 && nx[0] == 1 {
		name = string(nx[5:]) // Info-ZIP Unicode Path
	}
	name = unicode(name)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimSuffix(name, "/")
	if name == "" || name == "." || !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}

// unicode percent-escapes a name that is not valid UTF-8
func unicode(s string) string {
	for _, rune := range s {
		if rune == 0xfffd {
			goto bad
		}
	}
	return s
bad:
	var b strings.Builder
	for _, byte := range []byte(s) {
		if byte < 128 && byte != '%' {
			b.WriteByte(byte)
		} else {
			fmt.Fprintf(&b, "%%%02x", byte)
		}
	}
	return b.String()
}

type archiveFS struct {
	root *node
}

// Our internal representation of a node in the tree,
// doubling as its own fs.FileInfo
type node struct {
	name     string
	mode     fs.FileMode
	mtime    time.Time
	f        *File   // nil for implied directories
	children []*node // sorted by name
}

func (n *node) child(name string) (*node, bool) {
	i, ok := slices.BinarySearchFunc(n.children, name, func(c *node, s string) int { return strings.Compare(c.name, s) })
	if !ok {
		return nil, false
	}
	return n.children[i], true
}

func (n *node) Name() string       { return n.name }
func (n *node) Mode() fs.FileMode  { return n.mode }
func (n *node) ModTime() time.Time { return n.mtime }
func (n *node) IsDir() bool        { return n.mode.IsDir() }

func (n *node) Size() int64 {
	if n.f == nil || n.IsDir() {
		return 0
	}
	return int64(n.f.UncompressedSize)
}

// Sys returns the *File behind the node, or nil
func (n *node) Sys() any {
	if n.f == nil {
		return nil
	}
	return n.f
}

func (fsys *archiveFS) lookup(name string) (*node, error) {
	n := fsys.root
	if name == "." {
		return n, nil
	}
	for c := range strings.SplitSeq(name, "/") {
		if !n.IsDir() {
			return nil, fs.ErrNotExist
		}
		var ok bool
		n, ok = n.child(c)
		if !ok {
			return nil, fs.ErrNotExist
		}
	}
	return n, nil
}

func (fsys *archiveFS) Open(name string) (_ fs.File, err error) {
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "open", Path: name, Err: err}
		}
	}()

	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	n, err := fsys.lookup(name)
	if err != nil {
		return nil, err
	}
	if n.IsDir() {
		return &lister{node: n}, nil
	}
	data, err := n.f.Data()
	if err != nil {
		return nil, err
	}
	return &openFile{node: n, Reader: bytes.NewReader(data)}, nil
}

func (fsys *archiveFS) Stat(name string) (_ fs.FileInfo, err error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	n, err := fsys.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return n, nil
}

func (fsys *archiveFS) ReadFile(name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	of, ok := f.(*openFile)
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	data, _ := of.node.f.Data()
	return bytes.Clone(data), nil
}

type openFile struct {
	*node
	*bytes.Reader
}

func (f *openFile) Stat() (fs.FileInfo, error) { return f.node, nil }
func (f *openFile) Close() error               { return nil }

// Size resolves the clash between fs.FileInfo and bytes.Reader
func (f *openFile) Size() int64 { return f.node.Size() }

type lister struct {
	*node
	progress int
}

func (l *lister) Stat() (fs.FileInfo, error) { return l.node, nil }
func (l *lister) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: l.name, Err: fs.ErrInvalid}
}
func (l *lister) Close() error { return nil }

// Tricky partial-listing semantics
func (l *lister) ReadDir(count int) ([]fs.DirEntry, error) {
	n := len(l.children) - l.progress
	if n == 0 && count > 0 {
		return nil, io.EOF
	}
	if count > 0 && n > count {
		n = count
	}
	list := make([]fs.DirEntry, n)
	for i := range list {
		list[i] = fs.FileInfoToDirEntry(l.children[l.progress+i])
	}
	l.progress += n
	return list, nil
}

var (
	_ fs.ReadDirFile = new(lister)
	_ fs.StatFS      = new(archiveFS)
	_ fs.ReadFileFS  = new(archiveFS)
	_ io.ReaderAt    = new(openFile)
	_ io.Seeker      = new(openFile)
)
