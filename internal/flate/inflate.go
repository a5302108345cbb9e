// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package flate decodes the DEFLATE compressed data format, described in
// RFC 1951, from a byte slice held entirely in memory.
package flate

import (
	"errors"
	"fmt"
)

var (
	ErrCorrupt       = errors.New("flate: corrupt input")
	ErrStoredBlock   = fmt.Errorf("%w: stored block length does not match its complement", ErrCorrupt)
	ErrReservedBlock = fmt.Errorf("%w: reserved block type", ErrCorrupt)
	ErrTruncated     = fmt.Errorf("%w: unexpected end of input", ErrCorrupt)
	ErrTooLarge      = errors.New("flate: output exceeds limit")
)

const endBlockMarker = 256

// maxExpansion bounds the output of any DEFLATE stream per input byte:
// a 258-byte match can be coded in as little as 2 bits.
const maxExpansion = 1032

// corruptError is panicked deep inside the decoder and recovered by Decompress
type corruptError struct{ err error }

func fail(err error) {
	panic(corruptError{err})
}

var (
	lengthBits, lengthBase = bitsBase(4, 3)
	distBits, distBase     = bitsBase(2, 1)
)

func init() {
	// length symbol 285 is a special case
	lengthBits[28] = 0
	lengthBase[28] = 258
}

// bitsBase builds the extra-bit and base tables shared by the length and
// distance alphabets: the first delta entries have no extra bits, then each
// run of delta entries gets one more.
func bitsBase(delta, first int) (bits [30]uint8, base [30]uint16) {
	for i := delta; i < 30; i++ {
		bits[i] = uint8((i - delta) / delta)
	}
	sum := first
	for i := range base {
		base[i] = uint16(sum)
		sum += 1 << bits[i]
	}
	return bits, base
}

type decompressor struct {
	br       bitReader
	out      []byte
	limit    int // negative for none
	lengths  [maxNumLit + maxNumDist + 4]uint8 // 320 entries, room for any dynamic header
	codeTree huffmanTree
	lt, dt   huffmanTree
}

// Decompress inflates a complete raw DEFLATE stream.
// sizeHint is the expected output size, usually taken from an archive
// directory; a wrong hint costs only reallocation.
// Input is not retained and the returned slice is newly allocated.
// It is safe to call from many goroutines at once.
func Decompress(src []byte, sizeHint int) ([]byte, error) {
	return DecompressLimit(src, sizeHint, -1)
}

// DecompressLimit is [Decompress] but fails with [ErrTooLarge] as soon as
// the output would grow past limit bytes. A negative limit means none.
// Neither the hint nor the limit is trusted for the first allocation,
// which never exceeds what src could possibly expand to.
func DecompressLimit(src []byte, sizeHint, limit int) (ret []byte, err error) {
	hint := min(max(sizeHint, 0), len(src)*maxExpansion)
	if limit >= 0 {
		hint = min(hint, limit)
	}
	d := &decompressor{
		br:    bitReader{src: src},
		out:   make([]byte, 0, max(hint, 64)),
		limit: limit,
	}

	defer func() {
		r := recover()
		switch r := r.(type) {
		case nil:
		case corruptError:
			ret, err = nil, r.err
		default: // index out of range and friends
			ret, err = nil, fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	for final := false; !final; {
		final = d.br.readBit() == 1
		switch d.br.readBits(2, 0) {
		case 0:
			d.storedBlock()
		case 1:
			d.huffmanBlock(&fixedLit, &fixedDist)
		case 2:
			d.decodeTrees()
			d.huffmanBlock(&d.lt, &d.dt)
		default:
			fail(ErrReservedBlock)
		}
	}
	return d.out, nil
}

// checkOverrun stops a decoder that is reading far into the implicit zero
// padding, which would otherwise spin forever on a literal-zero code.
// A few bytes of slack allow for an encoder that trims its final byte.
func (d *decompressor) checkOverrun() {
	if d.br.consumed() > (len(d.br.src)+4)*8 {
		fail(ErrTruncated)
	}
}

func (d *decompressor) storedBlock() {
	br := &d.br
	br.alignToByte()
	if br.pos+4 > len(br.src) {
		fail(ErrTruncated)
	}
	n := int(br.src[br.pos]) | int(br.src[br.pos+1])<<8
	nn := int(br.src[br.pos+2]) | int(br.src[br.pos+3])<<8
	br.pos += 4
	if n != ^nn&0xffff {
		fail(ErrStoredBlock)
	}
	if br.pos+n > len(br.src) {
		fail(ErrTruncated)
	}
	d.reserve(n)
	d.out = append(d.out, br.src[br.pos:br.pos+n]...)
	br.pos += n
}

func (d *decompressor) huffmanBlock(lt, dt *huffmanTree) {
	br := &d.br
	for {
		sym := br.decodeSymbol(lt)
		d.checkOverrun()

		switch {
		case sym < endBlockMarker:
			d.reserve(1)
			d.out = append(d.out, byte(sym))
		case sym == endBlockMarker:
			return
		default:
			sym -= 257
			if sym >= 29 {
				fail(fmt.Errorf("%w: invalid length symbol %d", ErrCorrupt, sym+257))
			}
			length := br.readBits(uint(lengthBits[sym]), int(lengthBase[sym]))

			dsym := br.decodeSymbol(dt)
			if dsym >= maxNumDist {
				fail(fmt.Errorf("%w: invalid distance symbol %d", ErrCorrupt, dsym))
			}
			dist := br.readBits(uint(distBits[dsym]), int(distBase[dsym]))
			d.copyBack(dist, length)
		}
	}
}

// copyBack appends length bytes starting dist bytes before the end.
// When the ranges overlap the copy runs forward a byte at a time,
// so a short pattern repeats.
func (d *decompressor) copyBack(dist, length int) {
	if dist > len(d.out) {
		fail(fmt.Errorf("%w: distance %d too far back (have %d bytes)", ErrCorrupt, dist, len(d.out)))
	}
	d.reserve(length)
	from := len(d.out) - dist
	if dist >= length {
		d.out = append(d.out, d.out[from:from+length]...)
		return
	}
	for i := range length {
		d.out = append(d.out, d.out[from+i])
	}
}

// reserve grows the output so that n more bytes fit,
// doubling when that is enough but never past the limit.
func (d *decompressor) reserve(n int) {
	need := len(d.out) + n
	if d.limit >= 0 && need > d.limit {
		fail(fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.limit))
	}
	if need <= cap(d.out) {
		return
	}
	size := max(2*cap(d.out), need)
	if d.limit >= 0 {
		size = min(size, d.limit)
	}
	grown := make([]byte, len(d.out), size)
	copy(grown, d.out)
	d.out = grown
}
