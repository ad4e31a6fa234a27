// I/O and memory utilities shared by the starnnue packages.

package common

import (
	"encoding/binary"
	"io"
	"unsafe"
)

// Alignment is the minimum byte alignment of activation and accumulator
// scratch buffers (one 256-bit vector register).
const Alignment = 32

// CeilToMultiple rounds n up to be a multiple of base.
func CeilToMultiple(n, base int) int {
	return (n + base - 1) / base * base
}

// AlignedInt8 returns a zeroed slice of n int8 values whose first element
// sits on an Alignment-byte boundary.
func AlignedInt8(n int) []int8 {
	buf := make([]int8, n+Alignment)
	off := alignOffset(unsafe.Pointer(unsafe.SliceData(buf)))
	return buf[off : off+n : off+n]
}

// AlignedInt32 returns a zeroed slice of n int32 values whose first element
// sits on an Alignment-byte boundary.
func AlignedInt32(n int) []int32 {
	const per = Alignment / 4
	buf := make([]int32, n+per)
	off := alignOffset(unsafe.Pointer(unsafe.SliceData(buf))) / 4
	return buf[off : off+n : off+n]
}

// alignOffset returns the number of bytes to skip from p to reach the next
// Alignment boundary.
func alignOffset(p unsafe.Pointer) int {
	return int((Alignment - uintptr(p)%Alignment) % Alignment)
}

// ReadLittleEndianSlice reads a slice of values in little-endian order.
func ReadLittleEndianSlice[T any](r io.Reader, out []T) error {
	return binary.Read(r, binary.LittleEndian, out)
}
