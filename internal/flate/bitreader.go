// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package flate

// bitReader pulls bits LSB-first out of a byte slice.
// Bytes past the end of src read as zero, so a stream may end mid-byte.
type bitReader struct {
	src   []byte
	pos   int    // next byte to load, may run past len(src)
	tag   uint32 // bit accumulator
	count uint   // valid bits in tag
}

func (br *bitReader) nextByte() uint32 {
	var b uint32
	if br.pos < len(br.src) {
		b = uint32(br.src[br.pos])
	}
	br.pos++
	return b
}

func (br *bitReader) readBit() uint32 {
	if br.count == 0 {
		br.tag = br.nextByte()
		br.count = 8
	}
	bit := br.tag & 1
	br.tag >>= 1
	br.count--
	return bit
}

// refill tops the accumulator up to at least 24 bits
func (br *bitReader) refill() {
	for br.count < 24 {
		br.tag |= br.nextByte() << br.count
		br.count += 8
	}
}

// readBits returns the next n bits as an unsigned number, plus base.
func (br *bitReader) readBits(n uint, base int) int {
	if n == 0 {
		return base
	}
	br.refill()
	v := br.tag & (1<<n - 1)
	br.tag >>= n
	br.count -= n
	return int(v) + base
}

// alignToByte hands back whole bytes sitting in the accumulator
// and throws away the rest of the partially consumed byte.
func (br *bitReader) alignToByte() {
	for br.count >= 8 {
		br.pos--
		br.count -= 8
	}
	br.tag, br.count = 0, 0
}

// consumed is the number of bits actually taken from the stream
func (br *bitReader) consumed() int {
	return br.pos*8 - int(br.count)
}
