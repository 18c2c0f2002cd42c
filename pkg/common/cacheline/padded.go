// Package cacheline isolates hot values on their own cache line.
package cacheline

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// Size is the padding width in bytes on the current architecture.
const Size = int(unsafe.Sizeof(cpu.CacheLinePad{}))

// Padded holds Value with a full cache line of padding on either side, so
// writes to it never invalidate the line holding a neighbouring field.
//
// Padded values must not be copied after first use when T is an atomic type.
type Padded[T any] struct {
	_     cpu.CacheLinePad
	Value T
	_     cpu.CacheLinePad
}
