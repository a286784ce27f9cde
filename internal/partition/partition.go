// Package partition splits a key space into contiguous, non-overlapping
// half-open ranges. See doc.go for complete package documentation.
package partition

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParts is returned when the number of parts is zero, negative,
	// or larger than the range being split.
	ErrInvalidParts = errors.New("invalid number of parts")

	// ErrEmptySpace is returned when the range being split holds no keys.
	ErrEmptySpace = errors.New("empty key space")
)

// Range is a half-open interval of keys [Lower, Upper).
//
// Ranges produced by this package are never empty: Upper > Lower always holds.
type Range struct {
	Lower uint64 `json:"lower"` // First key in the range (inclusive)
	Upper uint64 `json:"upper"` // One past the last key (exclusive)
}

// Len returns the number of keys in the range.
func (r Range) Len() uint64 {
	if r.Upper <= r.Lower {
		return 0
	}
	return r.Upper - r.Lower
}

// Contains reports whether key lies inside [Lower, Upper).
func (r Range) Contains(key uint64) bool {
	return key >= r.Lower && key < r.Upper
}

// String renders the range as "[lower, upper)".
func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Lower, r.Upper)
}

// Split divides the range into parts contiguous sub-ranges.
//
// Every part but the last receives exactly Len()/parts keys; the last part
// absorbs the remainder of the integer division, so the union of the result
// is always exactly r regardless of divisibility.
//
// Parameters:
//   - parts: Number of sub-ranges to produce (must be in [1, Len()])
//
// Returns:
//   - Sub-ranges ordered by Lower, pairwise disjoint
//   - ErrEmptySpace if the range is empty
//   - ErrInvalidParts if parts is out of bounds
//
// Example:
//
//	r := Range{Lower: 32, Upper: 48}
//	parts, _ := r.Split(2)
//	// parts == [{32 40} {40 48}]
func (r Range) Split(parts int) ([]Range, error) {
	total := r.Len()
	if total == 0 {
		return nil, fmt.Errorf("split %s: %w", r, ErrEmptySpace)
	}
	if parts < 1 || uint64(parts) > total {
		return nil, fmt.Errorf("split %s into %d parts: %w", r, parts, ErrInvalidParts)
	}

	n := uint64(parts)
	base := total / n
	out := make([]Range, parts)
	for i := uint64(0); i < n; i++ {
		lower := r.Lower + i*base
		upper := lower + base
		if i == n-1 {
			upper = r.Upper
		}
		out[i] = Range{Lower: lower, Upper: upper}
	}
	return out, nil
}

// Split divides the key space [0, total) into parts contiguous sub-ranges.
// It is shorthand for Range{0, total}.Split(parts).
func Split(total uint64, parts int) ([]Range, error) {
	return Range{Lower: 0, Upper: total}.Split(parts)
}
