// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package zip reads a ZIP archive that is already entirely in memory.
//   - the central directory is trusted for sizes and compression method
//   - member data is copied out of the caller's buffer at extraction time
//   - DEFLATE members are inflated on first access, at most once
//   - no ZIP64, no spanning, no encryption
package zip

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/elliotnunn/memzip/internal/flate"
)

var (
	ErrFormat    = errors.New("zip: not a valid zip file")
	ErrAlgorithm = errors.New("zip: unsupported compression algorithm")
	ErrTruncated = errors.New("zip: record runs past end of archive")
	ErrChecksum  = errors.New("zip: checksum error")
	ErrNoSpanned = errors.New("zip: spanned archives not supported")
)

// Compression methods
const (
	Store   uint16 = 0
	Deflate uint16 = 8
)

const flagEncrypted = 0x1

// replaced by tests that count decompressions
var inflate = flate.DecompressLimit

// Archive is the parsed form of a whole ZIP file. It never changes after [Extract].
type Archive struct {
	EOCD  EndOfCentralDirectory
	Files []*File // central directory order

	fsOnce sync.Once
	fsys   *archiveFS
}

// File is one member of an [Archive].
type File struct {
	CentralDirectoryEntry
	Header LocalFileHeader

	once     sync.Once
	deflated bool   // packed holds a DEFLATE stream
	packed   []byte // dropped once inflated
	data     []byte
	err      error
}

// Extract parses buf and stages every member's raw bytes.
// buf is not retained, so the caller may reuse or unmap it afterwards.
// A member using any method other than [Store] or [Deflate] fails the whole archive.
func Extract(buf []byte) (*Archive, error) {
	eocdOffset, err := findEOCD(buf)
	if err != nil {
		return nil, err
	}
	eocd, err := parseEOCD(buf, eocdOffset)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		EOCD:  eocd,
		Files: make([]*File, 0, eocd.TotalEntries),
	}
	next := int(eocd.CentralDirectoryOffset)
	for range eocd.TotalEntries {
		e, err := parseCentralDirectoryEntry(buf, next)
		if err != nil {
			return nil, err
		}
		next = e.Next

		h, err := parseLocalFileHeader(buf, int(e.LocalHeaderOffset))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", e.Name, err)
		}

		f := &File{CentralDirectoryEntry: e, Header: h}
		switch e.Method {
		case Store:
			raw, err := span(buf, h.DataOffset, int(e.UncompressedSize))
			if err != nil {
				return nil, fmt.Errorf("%q: %w", e.Name, err)
			}
			f.data = bytes.Clone(raw)
		case Deflate:
			raw, err := span(buf, h.DataOffset, int(e.CompressedSize))
			if err != nil {
				return nil, fmt.Errorf("%q: %w", e.Name, err)
			}
			f.packed = bytes.Clone(raw)
			f.deflated = true
		default:
			return nil, fmt.Errorf("%w: method %d for %q", ErrAlgorithm, e.Method, e.Name)
		}
		a.Files = append(a.Files, f)
	}

	end := int(eocd.CentralDirectoryOffset) + int(eocd.CentralDirectorySize)
	if next != end {
		return nil, fmt.Errorf("%w: %d entries end at %#x, expected %#x", ErrFormat, eocd.TotalEntries, next, end)
	}
	return a, nil
}

// Names lists the member names in central directory order.
func (a *Archive) Names() []string {
	ret := make([]string, len(a.Files))
	for i, f := range a.Files {
		ret[i] = f.Name
	}
	return ret
}

// Find returns the first member whose name matches exactly, or nil.
func (a *Archive) Find(name string) *File {
	for _, f := range a.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Glob returns the members whose names match a doublestar pattern, in central directory order.
func (a *Archive) Glob(pattern string) ([]*File, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", doublestar.ErrBadPattern, pattern)
	}
	var ret []*File
	for _, f := range a.Files {
		if doublestar.MatchUnvalidated(pattern, f.Name) {
			ret = append(ret, f)
		}
	}
	return ret, nil
}

// Comment is the archive comment from the end of central directory record.
func (a *Archive) Comment() string { return a.EOCD.Comment }

// Data returns the member's uncompressed bytes, inflating them on the first call.
// A DEFLATE member must inflate to exactly the size in the directory;
// inflating stops as soon as it would exceed it.
// Every call returns the same slice, which must not be modified.
// Safe for concurrent use.
func (f *File) Data() ([]byte, error) {
	f.once.Do(f.materialize)
	return f.data, f.err
}

func (f *File) materialize() {
	if f.Flags&flagEncrypted != 0 {
		f.packed, f.data = nil, nil
		f.err = fmt.Errorf("%w: %q is encrypted", ErrAlgorithm, f.Name)
		return
	}
	if f.deflated {
		packed := f.packed
		f.packed = nil
		if len(packed) == 0 && f.UncompressedSize == 0 {
			f.data = []byte{} // some writers deflate empty directories to nothing at all
		} else {
			size := int(f.UncompressedSize)
			f.data, f.err = inflate(packed, size, size)
			if f.err == nil && len(f.data) != size {
				f.data, f.err = nil, fmt.Errorf("%w: inflated to %d bytes, directory says %d", ErrFormat, len(f.data), size)
			}
			if f.err != nil {
				f.err = fmt.Errorf("%q: %w", f.Name, f.err)
				return
			}
		}
	}
	if err := checkCRC(f.data, f.CRC32); err != nil {
		f.data, f.err = nil, fmt.Errorf("%q: %w", f.Name, err)
	}
}
