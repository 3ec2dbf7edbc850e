// Package util contains small helpers shared across the kernel packages:
// integer rounding and the fixed-width little-endian accessors the block
// cache and on-disk structures use to read and write disk-block bytes.
package util

import (
	"encoding/binary"

	"caller"
)

// Int is satisfied by all built-in integer types.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T Int](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Rounddown aligns v down to the nearest multiple of b.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup aligns v up to the nearest multiple of b.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}

// Readn reads an n-byte little-endian integer from a at offset off.
// It panics if the requested region is out of bounds or n is unsupported.
func Readn(a []uint8, n int, off int) int {
	if off < 0 || off+n > len(a) {
		caller.Callerdump(1)
		panic("Readn out of bounds")
	}
	s := a[off : off+n]
	switch n {
	case 8:
		return int(binary.LittleEndian.Uint64(s))
	case 4:
		return int(binary.LittleEndian.Uint32(s))
	case 2:
		return int(binary.LittleEndian.Uint16(s))
	case 1:
		return int(s[0])
	default:
		caller.Callerdump(1)
		panic("unsupported size")
	}
}

// Writen writes val as an sz-byte little-endian integer into a at offset off.
// It panics if the destination is out of bounds or sz is unsupported.
func Writen(a []uint8, sz int, off int, val int) {
	if off < 0 || off+sz > len(a) {
		caller.Callerdump(1)
		panic("Writen out of bounds")
	}
	s := a[off : off+sz]
	switch sz {
	case 8:
		binary.LittleEndian.PutUint64(s, uint64(val))
	case 4:
		binary.LittleEndian.PutUint32(s, uint32(val))
	case 2:
		binary.LittleEndian.PutUint16(s, uint16(val))
	case 1:
		s[0] = uint8(val)
	default:
		caller.Callerdump(1)
		panic("unsupported size")
	}
}
