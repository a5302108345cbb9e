//go:build !unix

package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
)

func mapFile(name string) (buf []byte, release func(), err error) {
	s, err := os.Stat(name)
	if err != nil {
		return nil, nil, err
	}
	if s.Size() > int64(memLimit) {
		return nil, nil, fmt.Errorf("%s is %s: %w", name, humanize.IBytes(uint64(s.Size())), errTooBig)
	}
	buf, err = os.ReadFile(name)
	if err != nil {
		return nil, nil, err
	}
	return buf, func() {}, nil
}
