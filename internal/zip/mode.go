// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"io/fs"
	"strings"
)

// Creator systems, the high byte of the "version made by" field
const (
	creatorMSDOS  = 0
	creatorUnix   = 3
	creatorNTFS   = 11
	creatorVFAT   = 14
	creatorMacOSX = 19
)

// Mode interprets the external attributes according to the system that made the archive.
// A trailing slash makes a directory whatever the attributes say.
func (e *CentralDirectoryEntry) Mode() fs.FileMode {
	isdir := strings.HasSuffix(e.Name, "/")

	var mode fs.FileMode
	switch e.Version >> 8 {
	case creatorUnix, creatorMacOSX:
		mode = unixModeToFileMode(e.ExternalAttributes >> 16)
	case creatorMSDOS, creatorNTFS, creatorVFAT:
		mode = msdosModeToFileMode(e.ExternalAttributes)
	default:
		if isdir {
			mode = 0o755
		} else {
			mode = 0o644
		}
	}
	if isdir {
		mode |= fs.ModeDir
	}
	return mode
}

// IsDir reports whether the entry names a directory.
func (e *CentralDirectoryEntry) IsDir() bool {
	return e.Mode().IsDir()
}

const (
	// Unix constants. The specification doesn't mention them,
	// but these seem to be the values agreed on by tools.
	s_IFMT   = 0xf000
	s_IFSOCK = 0xc000
	s_IFLNK  = 0xa000
	s_IFREG  = 0x8000
	s_IFBLK  = 0x6000
	s_IFDIR  = 0x4000
	s_IFCHR  = 0x2000
	s_IFIFO  = 0x1000
	s_ISUID  = 0x800
	s_ISGID  = 0x400
	s_ISVTX  = 0x200

	msdosDir      = 0x10
	msdosReadOnly = 0x01
)

func msdosModeToFileMode(m uint32) (mode fs.FileMode) {
	if m&msdosDir != 0 {
		mode = fs.ModeDir | 0777
	} else {
		mode = 0666
	}
	if m&msdosReadOnly != 0 {
		mode &^= 0222
	}
	return mode
}

func unixModeToFileMode(m uint32) fs.FileMode {
	mode := fs.FileMode(m & 0777)
	switch m & s_IFMT {
	case s_IFBLK:
		mode |= fs.ModeDevice
	case s_IFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case s_IFDIR:
		mode |= fs.ModeDir
	case s_IFIFO:
		mode |= fs.ModeNamedPipe
	case s_IFLNK:
		mode |= fs.ModeSymlink
	case s_IFREG:
		// nothing to do
	case s_IFSOCK:
		mode |= fs.ModeSocket
	}
	if m&s_ISGID != 0 {
		mode |= fs.ModeSetgid
	}
	if m&s_ISUID != 0 {
		mode |= fs.ModeSetuid
	}
	if m&s_ISVTX != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}
