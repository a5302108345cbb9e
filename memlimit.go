package main

import (
	"math"
	"os"
	"strconv"
)

var (
	memLimit     int = calcMemLimit()
	archiveSlots int = calcArchiveSlots()
)

// calcMemLimit caps the size of any single archive held in memory
func calcMemLimit() int {
	if e := os.Getenv("MEMZIP_GB"); e != "" {
		f, err := strconv.ParseFloat(e, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			panic("malformed MEMZIP_GB environment variable, should be a number of gigabytes: " + e)
		}
		return int(f * 1024 * 1024 * 1024)
	}
	return 1024 * 1024 * 1024 // fall back on 1GiB
}

// calcArchiveSlots is how many parsed archives the server keeps around
func calcArchiveSlots() int {
	if e := os.Getenv("MEMZIP_ARCHIVES"); e != "" {
		n, err := strconv.Atoi(e)
		if err != nil || n < 1 {
			panic("malformed MEMZIP_ARCHIVES environment variable, should be a positive integer: " + e)
		}
		return n
	}
	return 64
}
