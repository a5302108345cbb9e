// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package zip

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	eocdLen = 22
	cdLen   = 46
	lfhLen  = 30

	eocdSig = "PK\x05\x06"
	cdSig   = "PK\x01\x02"
	lfhSig  = "PK\x03\x04"
)

// EndOfCentralDirectory is the record at the tail of the archive that locates everything else.
type EndOfCentralDirectory struct {
	TotalEntries           uint16
	CentralDirectorySize   uint32
	CentralDirectoryOffset uint32
	Comment                string
}

// CentralDirectoryEntry describes one member of the archive.
type CentralDirectoryEntry struct {
	Version            uint16
	MinVersion         uint16
	Flags              uint16
	Method             uint16
	ModTime            uint16
	ModDate            uint16
	CRC32              uint32
	CompressedSize     uint32
	UncompressedSize   uint32
	Name               string
	Extra              []byte
	Comment            string
	InternalAttributes uint16
	ExternalAttributes uint32
	LocalHeaderOffset  uint32

	Next int // offset of the entry that follows this one
}

// LocalFileHeader immediately precedes each member's data.
// Its extra field often differs from the central directory's and is left raw.
type LocalFileHeader struct {
	MinVersion       uint16
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Name             string
	Extra            []byte

	DataOffset int
}

// span returns buf[off:off+n], or ErrTruncated
func span(buf []byte, off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > len(buf) || len(buf)-off < n {
		return nil, fmt.Errorf("%w: need %d bytes at %#x, archive is %#x bytes", ErrTruncated, n, off, len(buf))
	}
	return buf[off : off+n], nil
}

// findEOCD scans backward from the last possible position for the EOCD signature.
// The highest match wins, even if it turns out to sit inside the archive comment.
func findEOCD(buf []byte) (int, error) {
	for off := len(buf) - 4; off >= 0; off-- {
		if string(buf[off:off+4]) == eocdSig {
			return off, nil
		}
	}
	return 0, fmt.Errorf("%w: no end of central directory record", ErrFormat)
}

func parseEOCD(buf []byte, off int) (EndOfCentralDirectory, error) {
	b, err := span(buf, off, eocdLen)
	if err != nil {
		return EndOfCentralDirectory{}, err
	}
	if string(b[:4]) != eocdSig {
		return EndOfCentralDirectory{}, fmt.Errorf("%w: bad end of central directory signature at %#x", ErrFormat, off)
	}
	if binary.LittleEndian.Uint16(b[4:]) != 0 || binary.LittleEndian.Uint16(b[6:]) != 0 {
		return EndOfCentralDirectory{}, ErrNoSpanned
	}
	e := EndOfCentralDirectory{
		TotalEntries:           binary.LittleEndian.Uint16(b[10:]),
		CentralDirectorySize:   binary.LittleEndian.Uint32(b[12:]),
		CentralDirectoryOffset: binary.LittleEndian.Uint32(b[16:]),
	}
	cmtLen := int(binary.LittleEndian.Uint16(b[20:]))
	cmt, err := span(buf, off+eocdLen, cmtLen)
	if err != nil {
		return EndOfCentralDirectory{}, err
	}
	e.Comment = string(cmt)
	return e, nil
}

func parseCentralDirectoryEntry(buf []byte, off int) (CentralDirectoryEntry, error) {
	b, err := span(buf, off, cdLen)
	if err != nil {
		return CentralDirectoryEntry{}, err
	}
	if string(b[:4]) != cdSig {
		return CentralDirectoryEntry{}, fmt.Errorf("%w: bad central directory signature at %#x", ErrFormat, off)
	}
	e := CentralDirectoryEntry{
		Version:            binary.LittleEndian.Uint16(b[4:]),
		MinVersion:         binary.LittleEndian.Uint16(b[6:]),
		Flags:              binary.LittleEndian.Uint16(b[8:]),
		Method:             binary.LittleEndian.Uint16(b[10:]),
		ModTime:            binary.LittleEndian.Uint16(b[12:]),
		ModDate:            binary.LittleEndian.Uint16(b[14:]),
		CRC32:              binary.LittleEndian.Uint32(b[16:]),
		CompressedSize:     binary.LittleEndian.Uint32(b[20:]),
		UncompressedSize:   binary.LittleEndian.Uint32(b[24:]),
		InternalAttributes: binary.LittleEndian.Uint16(b[36:]),
		ExternalAttributes: binary.LittleEndian.Uint32(b[38:]),
		LocalHeaderOffset:  binary.LittleEndian.Uint32(b[42:]),
	}
	nameLen := int(binary.LittleEndian.Uint16(b[28:]))
	extraLen := int(binary.LittleEndian.Uint16(b[30:]))
	cmtLen := int(binary.LittleEndian.Uint16(b[32:]))

	rest, err := span(buf, off+cdLen, nameLen+extraLen+cmtLen)
	if err != nil {
		return CentralDirectoryEntry{}, err
	}
	e.Name = string(rest[:nameLen])
	e.Extra = bytes.Clone(rest[nameLen:][:extraLen])
	e.Comment = string(rest[nameLen+extraLen:])
	e.Next = off + cdLen + len(rest)
	return e, nil
}

func parseLocalFileHeader(buf []byte, off int) (LocalFileHeader, error) {
	b, err := span(buf, off, lfhLen)
	if err != nil {
		return LocalFileHeader{}, err
	}
	if string(b[:4]) != lfhSig {
		return LocalFileHeader{}, fmt.Errorf("%w: bad local file header signature at %#x", ErrFormat, off)
	}
	h := LocalFileHeader{
		MinVersion:       binary.LittleEndian.Uint16(b[4:]),
		Flags:            binary.LittleEndian.Uint16(b[6:]),
		Method:           binary.LittleEndian.Uint16(b[8:]),
		ModTime:          binary.LittleEndian.Uint16(b[10:]),
		ModDate:          binary.LittleEndian.Uint16(b[12:]),
		CRC32:            binary.LittleEndian.Uint32(b[14:]),
		CompressedSize:   binary.LittleEndian.Uint32(b[18:]),
		UncompressedSize: binary.LittleEndian.Uint32(b[22:]),
	}
	nameLen := int(binary.LittleEndian.Uint16(b[26:]))
	extraLen := int(binary.LittleEndian.Uint16(b[28:]))

	rest, err := span(buf, off+lfhLen, nameLen+extraLen)
	if err != nil {
		return LocalFileHeader{}, err
	}
	h.Name = string(rest[:nameLen])
	h.Extra = bytes.Clone(rest[nameLen:][:extraLen])
	h.DataOffset = off + lfhLen + len(rest)
	return h, nil
}
