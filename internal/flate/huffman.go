// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flate

import "fmt"

const (
	maxCodeLen = 16 // code lengths are 0-15
	// The next numbers come from RFC 1951 section 3.2.7, with the proviso
	// in section 3.2.5 that distance codes 30 and 31 never occur.
	maxNumLit  = 286
	maxNumDist = 30
	numSymbols = 288 // largest alphabet, the fixed literal/length one
	numCodes   = 19  // symbols in the code length alphabet
)

// huffmanTree is a canonical Huffman decode table.
// trans lists the symbols ordered by code length, and by symbol within a length.
type huffmanTree struct {
	table [maxCodeLen]uint16 // number of codes of each length
	trans [numSymbols]uint16 // code to symbol translation
}

// Built at package initialisation, read-only afterwards.
var fixedLit, fixedDist = buildFixedTrees()

// RFC 1951 section 3.2.6
func buildFixedTrees() (lit, dist huffmanTree) {
	var lengths [numSymbols]uint8
	for i := range lengths {
		switch {
		case i < 144:
			lengths[i] = 8
		case i < 256:
			lengths[i] = 9
		case i < 280:
			lengths[i] = 7
		default:
			lengths[i] = 8
		}
	}
	lit.build(lengths[:])

	var distLengths [32]uint8
	for i := range distLengths {
		distLengths[i] = 5
	}
	dist.build(distLengths[:])
	return lit, dist
}

// build fills the tree from per-symbol code lengths.
// It reports false if the lengths describe an over-subscribed code.
// Incomplete codes are accepted: a lone distance code is legal.
func (t *huffmanTree) build(lengths []uint8) bool {
	t.table = [maxCodeLen]uint16{}
	for _, n := range lengths {
		t.table[n]++
	}
	t.table[0] = 0

	left := 1
	for _, n := range t.table[1:] {
		left = left<<1 - int(n)
		if left < 0 {
			return false
		}
	}

	// distribution sort: offs[n] is where the next symbol of length n goes
	var offs [maxCodeLen]uint16
	var sum uint16
	for i, n := range t.table {
		offs[i] = sum
		sum += n
	}
	for sym, n := range lengths {
		if n != 0 {
			t.trans[offs[n]] = uint16(sym)
			offs[n]++
		}
	}
	return true
}

// decodeSymbol reads one code, one bit at a time.
// cur tracks how far the code so far sits past the last code of this length;
// it goes negative when the code lands inside the current length's range.
func (br *bitReader) decodeSymbol(t *huffmanTree) int {
	br.refill()
	sum, cur := 0, 0
	for n := 1; n < maxCodeLen; n++ {
		cur = 2*cur + int(br.tag&1)
		br.tag >>= 1
		br.count--

		sum += int(t.table[n])
		cur -= int(t.table[n])
		if cur < 0 {
			return int(t.trans[sum+cur])
		}
	}
	fail(fmt.Errorf("%w: invalid Huffman code", ErrCorrupt))
	return 0
}

// RFC 1951 section 3.2.7
var codeOrder = [numCodes]uint8{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// decodeTrees reads the code length code and then the literal/length and
// distance trees of a dynamic block into d.lt and d.dt.
func (d *decompressor) decodeTrees() {
	br := &d.br
	hlit := br.readBits(5, 257)
	hdist := br.readBits(5, 1)
	hclen := br.readBits(4, 4)
	if hlit > maxNumLit || hdist > maxNumDist {
		fail(fmt.Errorf("%w: %d literal and %d distance codes", ErrCorrupt, hlit, hdist))
	}

	lengths := d.lengths[:]
	clear(lengths[:numCodes])
	for i := range hclen {
		lengths[codeOrder[i]] = uint8(br.readBits(3, 0))
	}
	if !d.codeTree.build(lengths[:numCodes]) {
		fail(fmt.Errorf("%w: over-subscribed code length code", ErrCorrupt))
	}

	total := hlit + hdist
	for n := 0; n < total; {
		sym := br.decodeSymbol(&d.codeTree)
		d.checkOverrun()

		var rep int
		var val uint8
		switch sym {
		case 16: // previous length 3-6 times
			if n == 0 {
				fail(fmt.Errorf("%w: repeat with no previous length", ErrCorrupt))
			}
			val = lengths[n-1]
			rep = br.readBits(2, 3)
		case 17: // zero 3-10 times
			rep = br.readBits(3, 3)
		case 18: // zero 11-138 times
			rep = br.readBits(7, 11)
		default: // a length in itself
			lengths[n] = uint8(sym)
			n++
			continue
		}
		if n+rep > total {
			fail(fmt.Errorf("%w: code length run overflows", ErrCorrupt))
		}
		for range rep {
			lengths[n] = val
			n++
		}
	}

	if lengths[endBlockMarker] == 0 {
		fail(fmt.Errorf("%w: no end-of-block code", ErrCorrupt))
	}
	if !d.lt.build(lengths[:hlit]) || !d.dt.build(lengths[hlit:total]) {
		fail(fmt.Errorf("%w: over-subscribed Huffman code", ErrCorrupt))
	}
}
