// Copyright Elliot Nunn. Portions copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zip

import (
	"fmt"
	"hash/crc32"
)

// checkCRC compares whole-member data against the CRC-32 from the central directory.
// A zero checksum is taken to mean the writer never filled it in.
func checkCRC(data []byte, sum uint32) error {
	if sum == 0 {
		return nil
	}
	if got := crc32.ChecksumIEEE(data); got != sum {
		return fmt.Errorf("%w: got %08x, directory says %08x", ErrChecksum, got, sum)
	}
	return nil
}
