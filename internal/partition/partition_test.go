package partition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertCovers checks that ranges are sorted, non-empty, gap-free and that
// their union is exactly parent.
func assertCovers(t *testing.T, parent Range, ranges []Range) {
	t.Helper()
	require.NotEmpty(t, ranges)
	assert.Equal(t, parent.Lower, ranges[0].Lower, "first range must start at parent lower")
	assert.Equal(t, parent.Upper, ranges[len(ranges)-1].Upper, "last range must end at parent upper")

	var sum uint64
	for i, r := range ranges {
		assert.Greater(t, r.Upper, r.Lower, "range %d must not be empty", i)
		if i > 0 {
			assert.Equal(t, ranges[i-1].Upper, r.Lower, "range %d must start where range %d ends", i, i-1)
		}
		sum += r.Len()
	}
	assert.Equal(t, parent.Len(), sum)
}

// TestSplit verifies the division rule on hand-checked examples.
func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		total uint64
		parts int
		want  []Range
	}{
		{
			name:  "single part covers everything",
			total: 10,
			parts: 1,
			want:  []Range{{0, 10}},
		},
		{
			name:  "even division",
			total: 64,
			parts: 4,
			want:  []Range{{0, 16}, {16, 32}, {32, 48}, {48, 64}},
		},
		{
			name:  "last part absorbs remainder",
			total: 10,
			parts: 3,
			want:  []Range{{0, 3}, {3, 6}, {6, 10}},
		},
		{
			name:  "one key per part",
			total: 5,
			parts: 5,
			want:  []Range{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.total, tt.parts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestSplitInvalidInput verifies that bad arguments fail fast instead of
// being clamped.
func TestSplitInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		total   uint64
		parts   int
		wantErr error
	}{
		{name: "zero parts", total: 10, parts: 0, wantErr: ErrInvalidParts},
		{name: "negative parts", total: 10, parts: -2, wantErr: ErrInvalidParts},
		{name: "more parts than keys", total: 3, parts: 4, wantErr: ErrInvalidParts},
		{name: "empty space", total: 0, parts: 1, wantErr: ErrEmptySpace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.total, tt.parts)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

// TestSplitCoverageProperty checks disjointness and exact coverage for every
// valid (total, parts) pair in a bounded grid.
func TestSplitCoverageProperty(t *testing.T) {
	for total := uint64(1); total <= 120; total++ {
		for parts := 1; uint64(parts) <= total; parts++ {
			ranges, err := Split(total, parts)
			require.NoError(t, err, "total=%d parts=%d", total, parts)
			require.Len(t, ranges, parts)
			assertCovers(t, Range{0, total}, ranges)
		}
	}
}

// TestRangeSplitOffset verifies that splitting a non-zero-based range keeps
// its offset.
func TestRangeSplitOffset(t *testing.T) {
	parent := Range{Lower: 32, Upper: 48}
	got, err := parent.Split(2)
	require.NoError(t, err)
	assert.Equal(t, []Range{{32, 40}, {40, 48}}, got)

	got, err = Range{Lower: 100, Upper: 111}.Split(4)
	require.NoError(t, err)
	assertCovers(t, Range{100, 111}, got)
	assert.Equal(t, Range{106, 111}, got[3])
}

// TestSplitLargeSpace verifies the 56-bit DES key space divides without
// overflow and that the last peer absorbs the remainder.
func TestSplitLargeSpace(t *testing.T) {
	const space = uint64(1) << 56
	ranges, err := Split(space, 7)
	require.NoError(t, err)
	assertCovers(t, Range{0, space}, ranges)

	base := space / 7
	assert.Equal(t, base, ranges[0].Len())
	assert.Equal(t, base+space%7, ranges[6].Len())
}

// TestRangeHelpers covers Len, Contains and String.
func TestRangeHelpers(t *testing.T) {
	r := Range{Lower: 5, Upper: 9}
	assert.Equal(t, uint64(4), r.Len())
	assert.True(t, r.Contains(5))
	assert.True(t, r.Contains(8))
	assert.False(t, r.Contains(9))
	assert.False(t, r.Contains(4))
	assert.Equal(t, "[5, 9)", r.String())
	assert.Equal(t, uint64(0), Range{Lower: 9, Upper: 5}.Len())
}
