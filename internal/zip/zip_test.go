// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	gozip "archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"math/rand/v2"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/elliotnunn/memzip/internal/flate"
	kpflate "github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"
)

var hi = []byte("hi")

// fixed-Huffman encoding of "hi"
var hiDeflated = []byte{0xcb, 0xc8, 0x04, 0x00}

// handZip lays out a one-member archive byte by byte
func handZip(name string, method uint16, payload []byte, crc, usize uint32) []byte {
	var b []byte
	le16 := func(v uint16) { b = binary.LittleEndian.AppendUint16(b, v) }
	le32 := func(v uint32) { b = binary.LittleEndian.AppendUint32(b, v) }
	const dosDate = 1<<5 | 1 // 1980-01-01

	b = append(b, lfhSig...)
	le16(20) // min version
	le16(0)  // flags
	le16(method)
	le16(0)
	le16(dosDate)
	le32(crc)
	le32(uint32(len(payload)))
	le32(usize)
	le16(uint16(len(name)))
	le16(0)
	b = append(b, name...)
	b = append(b, payload...)

	cdOffset := len(b)
	b = append(b, cdSig...)
	le16(20) // made by MS-DOS
	le16(20)
	le16(0)
	le16(method)
	le16(0)
	le16(dosDate)
	le32(crc)
	le32(uint32(len(payload)))
	le32(usize)
	le16(uint16(len(name)))
	le16(0) // extra
	le16(0) // comment
	le16(0) // disk
	le16(0) // internal attributes
	le32(0) // external attributes
	le32(0) // local header offset
	b = append(b, name...)
	cdSize := len(b) - cdOffset

	b = append(b, eocdSig...)
	le16(0)
	le16(0)
	le16(1)
	le16(1)
	le32(uint32(cdSize))
	le32(uint32(cdOffset))
	le16(0)
	return b
}

func TestStoredHi(t *testing.T) {
	a, err := Extract(handZip("a.txt", Store, hi, crc32.ChecksumIEEE(hi), 2))
	require.NoError(t, err)
	f := a.Find("a.txt")
	require.NotNil(t, f)
	data, err := f.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{0x68, 0x69}, data)
}

func TestDeflatedHi(t *testing.T) {
	a, err := Extract(handZip("a.txt", Deflate, hiDeflated, crc32.ChecksumIEEE(hi), 2))
	require.NoError(t, err)
	f := a.Find("a.txt")
	require.NotNil(t, f)
	data, err := f.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{0x68, 0x69}, data)
}

func TestFindMissing(t *testing.T) {
	a, err := Extract(handZip("a.txt", Store, hi, crc32.ChecksumIEEE(hi), 2))
	require.NoError(t, err)
	require.Nil(t, a.Find("A.TXT"))
	require.Nil(t, a.Find("b.txt"))
}

func TestUnsupportedMethod(t *testing.T) {
	_, err := Extract(handZip("a.txt", 99, hi, crc32.ChecksumIEEE(hi), 2))
	require.ErrorIs(t, err, ErrAlgorithm)
}

func TestNotAZip(t *testing.T) {
	for _, buf := range [][]byte{nil, []byte("PK"), []byte("hello, world, this is not a zip file")} {
		_, err := Extract(buf)
		require.ErrorIs(t, err, ErrFormat)
	}
}

func TestTruncatedPayload(t *testing.T) {
	// directory claims 100 bytes where there are 2
	_, err := Extract(handZip("a.txt", Store, hi, crc32.ChecksumIEEE(hi), 100))
	require.ErrorIs(t, err, ErrTruncated)
}

func TestTruncatedDirectory(t *testing.T) {
	buf := handZip("a.txt", Store, hi, crc32.ChecksumIEEE(hi), 2)
	eocd := len(buf) - eocdLen
	binary.LittleEndian.PutUint32(buf[eocd+16:], uint32(eocd-10)) // directory offset
	_, err := Extract(buf)
	require.Error(t, err)
}

func TestBadChecksum(t *testing.T) {
	a, err := Extract(handZip("a.txt", Store, hi, 0xdeadbeef, 2))
	require.NoError(t, err)
	_, err = a.Files[0].Data()
	require.ErrorIs(t, err, ErrChecksum)
}

func TestCorruptStoredBlock(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x00, 0xfd, 0xfe, 'h', 'i'}
	a, err := Extract(handZip("a.txt", Deflate, payload, crc32.ChecksumIEEE(hi), 2))
	require.NoError(t, err)
	_, err = a.Files[0].Data()
	require.ErrorIs(t, err, flate.ErrStoredBlock)
}

func TestDeclaredSizeTooLarge(t *testing.T) {
	a, err := Extract(handZip("a.txt", Deflate, hiDeflated, crc32.ChecksumIEEE(hi), 0xfffffff0))
	require.NoError(t, err)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	data, err := a.Files[0].Data()
	runtime.ReadMemStats(&after)

	require.ErrorIs(t, err, ErrFormat)
	require.Nil(t, data)
	require.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20), "inflating 2 bytes should not allocate for the declared size")
}

func TestDeclaredSizeTooSmall(t *testing.T) {
	payload := mkTestBin(1, 1000)
	var buf bytes.Buffer
	w, err := kpflate.NewWriter(&buf, kpflate.BestSpeed)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	a, err := Extract(handZip("a.bin", Deflate, buf.Bytes(), crc32.ChecksumIEEE(payload), 999))
	require.NoError(t, err)
	_, err = a.Files[0].Data()
	require.ErrorIs(t, err, flate.ErrTooLarge)
}

func TestEntryCountMismatch(t *testing.T) {
	buf := stdlibZip(t, map[string]string{"one": "1", "two": "2"})
	binary.LittleEndian.PutUint16(buf[len(buf)-eocdLen+10:], 1)
	_, err := Extract(buf)
	require.ErrorIs(t, err, ErrFormat)
}

func TestSpanned(t *testing.T) {
	buf := handZip("a.txt", Store, hi, crc32.ChecksumIEEE(hi), 2)
	binary.LittleEndian.PutUint16(buf[len(buf)-eocdLen+4:], 1)
	_, err := Extract(buf)
	require.ErrorIs(t, err, ErrNoSpanned)
}

// The scan takes the highest signature, so a comment that contains one
// hides the real record. This is a known limitation.
func TestSignatureInComment(t *testing.T) {
	var buf bytes.Buffer
	w := gozip.NewWriter(&buf)
	require.NoError(t, w.SetComment("PK\x05\x06"))
	require.NoError(t, w.Close())

	off, err := findEOCD(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, buf.Len()-4, off)
	_, err = Extract(buf.Bytes())
	require.ErrorIs(t, err, ErrTruncated)
}

func TestIdempotent(t *testing.T) {
	var calls atomic.Int32
	saved := inflate
	inflate = func(src []byte, sizeHint, limit int) ([]byte, error) {
		calls.Add(1)
		return saved(src, sizeHint, limit)
	}
	t.Cleanup(func() { inflate = saved })

	a, err := Extract(handZip("a.txt", Deflate, hiDeflated, crc32.ChecksumIEEE(hi), 2))
	require.NoError(t, err)
	f := a.Files[0]

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	for i := range results {
		wg.Go(func() {
			results[i], _ = f.Data()
		})
	}
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.Equal(t, "hi", string(r))
		require.Same(t, &results[0][0], &r[0])
	}
	require.Nil(t, f.packed)
}

type entry struct {
	name    string
	method  uint16
	level   int
	data    []byte
	mode    fs.FileMode
	comment string
}

// stdlibZip writes an archive with the standard library, names sorted for repeatability
func stdlibZip(t testing.TB, files map[string]string) []byte {
	var entries []entry
	for name, data := range files {
		entries = append(entries, entry{name: name, method: Deflate, level: 6, data: []byte(data)})
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.name, b.name) })
	return writeZip(t, entries, "")
}

var mtime = time.Date(2021, time.March, 14, 15, 9, 26, 0, time.UTC)

func writeZip(t testing.TB, entries []entry, comment string) []byte {
	var buf bytes.Buffer
	w := gozip.NewWriter(&buf)
	for _, e := range entries {
		level := e.level
		w.RegisterCompressor(gozip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return kpflate.NewWriter(out, level)
		})
		h := &gozip.FileHeader{Name: e.name, Method: e.method, Modified: mtime, Comment: e.comment}
		if e.mode != 0 {
			h.SetMode(e.mode)
		}
		fw, err := w.CreateHeader(h)
		require.NoError(t, err)
		_, err = fw.Write(e.data)
		require.NoError(t, err)
	}
	if comment != "" {
		require.NoError(t, w.SetComment(comment))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func mkTestBin(seed uint64, n int) []byte {
	rng := rand.New(rand.NewPCG(seed, 0))
	r := make([]byte, 0, n)
	for len(r) < n {
		if len(r) > 1000 && rng.IntN(2) == 0 {
			back := r[len(r)-1-rng.IntN(1000):]
			r = append(r, back[:min(len(back), n-len(r))]...)
		} else {
			r = append(r, byte(rng.IntN(256)))
		}
	}
	return r
}

func testEntries() []entry {
	return []entry{
		{name: "empty", method: Store},
		{name: "empty.deflated", method: Deflate, level: 9},
		{name: "dir/", method: Store},
		{name: "dir/stored.bin", method: Store, data: mkTestBin(1, 5000)},
		{name: "dir/fast.bin", method: Deflate, level: 1, data: mkTestBin(2, 70000)},
		{name: "dir/best.bin", method: Deflate, level: 9, data: mkTestBin(3, 70000)},
		{name: "dir/huffman.bin", method: Deflate, level: -2, data: mkTestBin(4, 30000)},
		{name: "dir/nocompress.bin", method: Deflate, level: 0, data: mkTestBin(5, 30000)},
		{name: "implied/parent/text.txt", method: Deflate, level: 6,
			data: []byte(strings.Repeat("all work and no play\n", 500)), comment: "dull"},
		{name: "exec", method: Deflate, level: 6, data: []byte("#!/bin/sh\n"), mode: 0o755},
		{name: "noexec", method: Deflate, level: 6, data: []byte("plain\n"), mode: 0o644},
	}
}

func TestVsStdlib(t *testing.T) {
	entries := testEntries()
	buf := writeZip(t, entries, "archive comment")

	a, err := Extract(buf)
	require.NoError(t, err)
	stdlib, err := gozip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	require.NoError(t, err, "the canonical implementation complains")

	require.Equal(t, "archive comment", a.Comment())
	require.Len(t, a.Files, len(stdlib.File))

	for i, sf := range stdlib.File {
		f := a.Files[i]
		t.Run(sf.Name, func(t *testing.T) {
			require.Equal(t, sf.Name, f.Name)
			require.Equal(t, sf.Method, f.Method)
			require.Equal(t, sf.CRC32, f.CRC32)
			require.Equal(t, sf.Comment, f.Comment)
			require.Equal(t, sf.UncompressedSize64, uint64(f.UncompressedSize))
			require.Equal(t, sf.Mode().IsDir(), f.IsDir())
			require.Equal(t, sf.Mode()&fs.ModePerm, f.Mode()&fs.ModePerm)
			require.True(t, sf.Modified.Equal(f.Modified()), "mtime expect %s got %s", sf.Modified, f.Modified())

			rc, err := sf.Open()
			require.NoError(t, err)
			theirs, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)

			ours, err := f.Data()
			require.NoError(t, err)
			require.True(t, bytes.Equal(theirs, ours), "wrong data")
		})
	}
}

func TestDirectoryOrder(t *testing.T) {
	var entries []entry
	var want []string
	for i := range 50 {
		name := fmt.Sprintf("%02d-%c", (i*37)%50, 'a'+i%26) // deliberately unsorted
		entries = append(entries, entry{name: name, method: Store, data: []byte(name)})
		want = append(want, name)
	}
	a, err := Extract(writeZip(t, entries, ""))
	require.NoError(t, err)
	require.Equal(t, want, a.Names())
}

func TestDuplicateNames(t *testing.T) {
	buf := writeZip(t, []entry{
		{name: "same", method: Store, data: []byte("first")},
		{name: "same", method: Store, data: []byte("second")},
	}, "")
	a, err := Extract(buf)
	require.NoError(t, err)
	require.Equal(t, []string{"same", "same"}, a.Names())
	data, err := a.Find("same").Data()
	require.NoError(t, err)
	require.Equal(t, "first", string(data))

	got, err := fs.ReadFile(a.FS(), "same")
	require.NoError(t, err)
	require.Equal(t, "first", string(got))
}

func TestGlob(t *testing.T) {
	a, err := Extract(writeZip(t, testEntries(), ""))
	require.NoError(t, err)

	cases := []struct {
		pattern string
		want    []string
	}{
		{"dir/*.bin", []string{"dir/stored.bin", "dir/fast.bin", "dir/best.bin", "dir/huffman.bin", "dir/nocompress.bin"}},
		{"**/*.txt", []string{"implied/parent/text.txt"}},
		{"*exec", []string{"exec", "noexec"}},
		{"{empty,exec}", []string{"empty", "exec"}},
		{"nothing", nil},
	}
	for _, c := range cases {
		t.Run(c.pattern, func(t *testing.T) {
			files, err := a.Glob(c.pattern)
			require.NoError(t, err)
			var got []string
			for _, f := range files {
				got = append(got, f.Name)
			}
			require.Equal(t, c.want, got)
		})
	}

	_, err = a.Glob("[")
	require.Error(t, err)
}

func TestFS(t *testing.T) {
	a, err := Extract(writeZip(t, testEntries(), ""))
	require.NoError(t, err)
	fsys := a.FS()

	err = fstest.TestFS(fsys,
		"empty", "empty.deflated", "exec", "noexec",
		"dir/stored.bin", "dir/fast.bin", "dir/best.bin", "dir/huffman.bin", "dir/nocompress.bin",
		"implied/parent/text.txt")
	require.NoError(t, err)

	inf, err := fs.Stat(fsys, "implied/parent")
	require.NoError(t, err)
	require.True(t, inf.IsDir())
	require.Nil(t, inf.Sys())

	inf, err = fs.Stat(fsys, "dir")
	require.NoError(t, err)
	require.True(t, inf.IsDir())
	require.NotNil(t, inf.Sys())
	require.True(t, mtime.Equal(inf.ModTime()))

	for _, name := range []string{"noexec", "exec"} {
		inf, err := fs.Stat(fsys, name)
		require.NoError(t, err)
		require.Equal(t, name == "exec", inf.Mode()&0o100 != 0, "%q has perms %s", name, inf.Mode())
	}

	_, err = fsys.Open("nonexistent")
	require.ErrorIs(t, err, fs.ErrNotExist)
	_, err = fsys.Open("empty/child")
	require.ErrorIs(t, err, fs.ErrNotExist)
	_, err = fsys.Open("../escape")
	require.ErrorIs(t, err, fs.ErrInvalid)
}

func TestFSBadData(t *testing.T) {
	a, err := Extract(handZip("a.txt", Store, hi, 0xdeadbeef, 2))
	require.NoError(t, err)
	_, err = a.FS().Open("a.txt")
	var pe *fs.PathError
	require.ErrorAs(t, err, &pe)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestFSName(t *testing.T) {
	cases := map[string]string{
		"plain":       "plain",
		"/abs/path":   "abs/path",
		"dir/":        "dir",
		"bad\xffname": "bad%ffname",
		"a/../b":      "",
		"":            "",
	}
	for in, want := range cases {
		got, ok := fsName(&CentralDirectoryEntry{Name: in})
		require.Equal(t, want != "", ok, "%q", in)
		require.Equal(t, want, got, "%q", in)
	}
}

func TestDOSTime(t *testing.T) {
	// 2021-03-14 15:09:26
	date := uint16((2021-1980)<<9 | 3<<5 | 14)
	tm := uint16(15<<11 | 9<<5 | 26/2)
	require.Equal(t, time.Date(2021, time.March, 14, 15, 9, 26, 0, time.UTC), msDosTimeToTime(date, tm))
}

func TestExtendedTimestamp(t *testing.T) {
	x := []byte{0x55, 0x54, 5, 0, 1, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(x[5:], uint32(mtime.Unix()))
	e := CentralDirectoryEntry{ModDate: 1<<5 | 1, Extra: x}
	require.True(t, mtime.Equal(e.Modified()))
}

func TestModes(t *testing.T) {
	cases := []struct {
		version uint16
		attrs   uint32
		name    string
		want    fs.FileMode
	}{
		{creatorUnix << 8, (s_IFREG | 0o644) << 16, "f", 0o644},
		{creatorUnix << 8, (s_IFDIR | 0o755) << 16, "d/", fs.ModeDir | 0o755},
		{creatorUnix << 8, (s_IFLNK | 0o777) << 16, "l", fs.ModeSymlink | 0o777},
		{creatorMSDOS << 8, msdosReadOnly, "ro", 0o444},
		{creatorMSDOS << 8, msdosDir, "d/", fs.ModeDir | 0o777},
		{99 << 8, 0, "x", 0o644},
		{99 << 8, 0, "x/", fs.ModeDir | 0o755},
	}
	for _, c := range cases {
		e := CentralDirectoryEntry{Version: c.version, ExternalAttributes: c.attrs, Name: c.name}
		require.Equal(t, c.want, e.Mode(), "%#v", c)
	}
}

func TestRecordOffsets(t *testing.T) {
	buf := handZip("a.txt", Store, hi, crc32.ChecksumIEEE(hi), 2)
	eocdOff, err := findEOCD(buf)
	require.NoError(t, err)
	eocd, err := parseEOCD(buf, eocdOff)
	require.NoError(t, err)
	require.Equal(t, uint16(1), eocd.TotalEntries)

	cd, err := parseCentralDirectoryEntry(buf, int(eocd.CentralDirectoryOffset))
	require.NoError(t, err)
	require.Equal(t, "a.txt", cd.Name)
	require.Equal(t, eocdOff, cd.Next)

	lfh, err := parseLocalFileHeader(buf, int(cd.LocalHeaderOffset))
	require.NoError(t, err)
	require.Equal(t, lfhLen+len("a.txt"), lfh.DataOffset)
	require.Equal(t, "hi", string(buf[lfh.DataOffset:][:2]))

	_, err = parseLocalFileHeader(buf, int(eocd.CentralDirectoryOffset))
	require.ErrorIs(t, err, ErrFormat)
	_, err = parseCentralDirectoryEntry(buf, len(buf)-10)
	require.ErrorIs(t, err, ErrTruncated)
}

func BenchmarkExtract(b *testing.B) {
	buf := writeZip(b, testEntries(), "")
	for b.Loop() {
		a, err := Extract(buf)
		if err != nil {
			b.Fatal(err)
		}
		for _, f := range a.Files {
			if _, err := f.Data(); err != nil {
				b.Fatal(err)
			}
		}
	}
}
