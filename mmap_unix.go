//go:build unix

package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// mapFile makes the whole file addressable without reading it into the heap.
// The slice is invalid after release.
func mapFile(name string) (buf []byte, release func(), err error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close() // the mapping outlives the descriptor

	s, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if !s.Mode().IsRegular() {
		return nil, nil, &fs.PathError{Op: "mmap", Path: name, Err: fs.ErrInvalid}
	}
	if s.Size() > int64(memLimit) {
		return nil, nil, fmt.Errorf("%s is %s: %w", name, humanize.IBytes(uint64(s.Size())), errTooBig)
	}
	if s.Size() == 0 {
		return nil, func() {}, nil // cannot map nothing
	}

	buf, err = unix.Mmap(int(f.Fd()), 0, int(s.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, &fs.PathError{Op: "mmap", Path: name, Err: err}
	}
	return buf, func() { unix.Munmap(buf) }, nil
}
