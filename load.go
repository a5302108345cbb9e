// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/elliotnunn/memzip/internal/zip"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/therootcompany/xz"
)

var errTooBig = errors.New("archive exceeds memory limit (see MEMZIP_GB)")

// loadFile brings a whole archive file into memory and parses it.
func loadFile(name string) (*zip.Archive, error) {
	buf, release, err := mapFile(name)
	if err != nil {
		return nil, err
	}
	defer release() // Extract copies what it keeps
	return extract(buf, name)
}

// extract removes any outer layer of compression and parses what is left.
func extract(buf []byte, name string) (*zip.Archive, error) {
	inner, wrapper, err := unwrap(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", name, wrapper, err)
	}
	if wrapper != "" {
		slog.Debug("archiveUnwrap", "path", name, "wrapper", wrapper,
			"packed", humanize.IBytes(uint64(len(buf))), "unpacked", humanize.IBytes(uint64(len(inner))))
	}
	a, err := zip.Extract(inner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if total := expandedSize(a); total > uint64(memLimit) {
		return nil, fmt.Errorf("%s expands to %s: %w", name, humanize.IBytes(total), errTooBig)
	}
	return a, nil
}

// expandedSize is what the archive would occupy once every member is inflated.
// Members cannot inflate past their directory size, so this bounds memory.
func expandedSize(a *zip.Archive) uint64 {
	var total uint64
	for _, f := range a.Files {
		total += uint64(f.UncompressedSize)
	}
	return total
}

// sniff names the compression wrapped around buf, or returns ""
func sniff(buf []byte) string {
	switch {
	case bytes.HasPrefix(buf, []byte("\x1f\x8b")):
		return "gzip"
	case bytes.HasPrefix(buf, []byte("\x28\xb5\x2f\xfd")):
		return "zstd"
	case bytes.HasPrefix(buf, []byte("\xfd7zXZ\x00")):
		return "xz"
	case bytes.HasPrefix(buf, []byte("BZh")):
		return "bzip2"
	}
	return ""
}

// unwrap decompresses buf if it is wrapped in a known stream format
func unwrap(buf []byte) ([]byte, string, error) {
	wrapper := sniff(buf)
	var r io.Reader
	switch wrapper {
	case "":
		return buf, "", nil
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(buf))
		if err != nil {
			return nil, wrapper, err
		}
		r = gz
	case "zstd":
		zs, err := zstd.NewReader(bytes.NewReader(buf), zstd.WithDecoderMaxMemory(uint64(memLimit)))
		if err != nil {
			return nil, wrapper, err
		}
		defer zs.Close()
		r = zs
	case "xz":
		x, err := xz.NewReader(bytes.NewReader(buf), xz.DefaultDictMax)
		if err != nil {
			return nil, wrapper, err
		}
		r = x
	case "bzip2":
		r = bzip2.NewReader(bytes.NewReader(buf))
	}

	out, err := io.ReadAll(io.LimitReader(r, int64(memLimit)+1))
	if err != nil {
		return nil, wrapper, err
	}
	if len(out) > memLimit {
		return nil, wrapper, errTooBig
	}
	return out, wrapper, nil
}

// looksLikeArchive decides from its first bytes and its name whether a file deserves a mount point.
// A compressed file counts when its name, with the compression suffix taken off, ends in .zip.
func looksLikeArchive(name string, head []byte) bool {
	if bytes.HasPrefix(head, []byte("PK\x03\x04")) || bytes.HasPrefix(head, []byte("PK\x05\x06")) {
		return true
	}
	if sniff(head) == "" {
		return false
	}
	base := strings.ToLower(path.Base(name))
	inner := changeSuffix(base, ".gz .gzip .zst .zstd .xz .bz2 .bz .bzip2")
	return inner != base && path.Ext(inner) == ".zip"
}

func changeSuffix(s string, suffixes string) string {
	for rule := range strings.SplitSeq(suffixes, " ") {
		from, to, _ := strings.Cut(rule, "=")
		if strings.HasSuffix(s, from) && len(s) > len(from) {
			return s[:len(s)-len(from)] + to
		}
	}
	return s
}
