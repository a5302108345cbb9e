// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package main

import (
	"io/fs"
	"strings"
)

func (fsys *FS) Stat(name string) (_ fs.FileInfo, err error) {
	// Special cases to cover:
	// - a mountpoint: it should not return a name of "."
	defer func() {
		if err != nil {
			err = &fs.PathError{Op: "stat", Path: name, Err: err}
		}
	}()

	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}

	o, err := fsys.path(name)
	if err != nil {
		return nil, err
	}

	imgname, isMountpoint := strings.CutSuffix(name, Special)
	if isMountpoint {
		img, err := fsys.path(imgname)
		if err != nil {
			return nil, err
		}
		imgStat, err := fs.Stat(img.fsys, img.name)
		if err != nil {
			return nil, err
		}
		return mountPointEntry{archiveStat: imgStat}, nil
	}
	return fs.Stat(o.fsys, o.name)
}
