// Package safe provides overflow-checked numeric conversions for counters
// that cross unsigned/signed boundaries.
package safe

import "math"

// Uint64ToInt64 converts an uint64 value to int64, clamping to math.MaxInt64
// if overflow would occur. Returns the converted value and whether clamping
// occurred.
func Uint64ToInt64(val uint64) (int64, bool) {
	if val > math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(val), false
}
