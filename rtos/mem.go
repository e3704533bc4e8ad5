package rtos

import (
	"bytes"

	"github.com/openembed/frdbg/target"
)

// readUint reads a little- or big-endian unsigned integer of size bytes.
// Sizes other than 1, 2, 4 and 8 are read as 8 and masked, which covers
// every integer width FreeRTOS ports use.
func readUint(mr target.MemReader, l *KernelLayout, addr, size uint64) (uint64, error) {
	if size == 0 || size > 8 {
		size = 8
	}
	buf := make([]byte, 8)
	if err := mr.ReadMem(addr, buf[:size]); err != nil {
		return 0, MemoryReadError{Addr: addr, Err: err}
	}
	var v uint64
	for i := uint64(0); i < size; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}
	if isBigEndian(l) {
		v = 0
		for i := uint64(0); i < size; i++ {
			v = v<<8 | uint64(buf[i])
		}
	}
	return v, nil
}

func isBigEndian(l *KernelLayout) bool {
	// binary.ByteOrder has no discriminator beyond its String method.
	return l.Order != nil && l.Order.String() == "BigEndian"
}

// readPointer reads a target pointer at addr.
func readPointer(mr target.MemReader, l *KernelLayout, addr uint64) (uint64, error) {
	return readUint(mr, l, addr, uint64(l.PointerSize))
}

// readString reads a fixed-size char array and truncates at the first NUL.
func readString(mr target.MemReader, l *KernelLayout, addr uint64, max int) (string, error) {
	buf := make([]byte, max)
	if err := mr.ReadMem(addr, buf); err != nil {
		return "", MemoryReadError{Addr: addr, Err: err}
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}
