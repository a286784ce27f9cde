package cipher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTrial verifies the predicate accepts the right key only.
func TestTrial(t *testing.T) {
	ct, err := Encrypt(4242, []byte("attack at dawn"))
	require.NoError(t, err)

	trial, err := NewTrial(ct, "at dawn")
	require.NoError(t, err)

	ok, err := trial(4242)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, key := range []uint64{0, 4241, 4243, KeySpace - 1} {
		ok, err := trial(key)
		require.NoError(t, err)
		assert.False(t, ok, "key %d", key)
	}
}

// TestTrialIgnoresPadding verifies the fragment cannot match past the
// first NUL byte.
func TestTrialIgnoresPadding(t *testing.T) {
	ct, err := Encrypt(7, []byte("abc"))
	require.NoError(t, err)

	trial, err := NewTrial(ct, "abc\x00")
	require.NoError(t, err)
	ok, err := trial(7)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestTrialDoesNotAlias verifies the predicate keeps its own copy.
func TestTrialDoesNotAlias(t *testing.T) {
	ct, err := Encrypt(99, []byte("keep me"))
	require.NoError(t, err)
	trial, err := NewTrial(ct, "keep")
	require.NoError(t, err)

	for i := range ct {
		ct[i] = 0
	}
	ok, err := trial(99)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestNewTrialInvalid covers constructor validation.
func TestNewTrialInvalid(t *testing.T) {
	_, err := NewTrial(make([]byte, 8), "")
	assert.ErrorIs(t, err, ErrEmptySearch)
	_, err = NewTrial(make([]byte, 7), "x")
	assert.ErrorIs(t, err, ErrBlockSize)
	_, err = NewTrial(nil, "x")
	assert.ErrorIs(t, err, ErrBlockSize)
}

// TestHexPreview covers truncation.
func TestHexPreview(t *testing.T) {
	assert.Equal(t, "6c f5 41", HexPreview([]byte{0x6c, 0xf5, 0x41}, 32))
	assert.Equal(t, "00 01 ...", HexPreview([]byte{0, 1, 2}, 2))
	assert.Equal(t, "", HexPreview(nil, 32))
}

// TestReadInput covers the three line input format.
func TestReadInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Input
		wantErr error
	}{
		{
			name:  "all three lines",
			input: "42\nHello world\nworld\n",
			want:  Input{Key: 42, Plaintext: "Hello world", Search: "world"},
		},
		{
			name:  "no search line",
			input: "7\nsecret text",
			want:  Input{Key: 7, Plaintext: "secret text"},
		},
		{
			name:  "windows line endings",
			input: "9\r\nabc\r\nb\r\n",
			want:  Input{Key: 9, Plaintext: "abc", Search: "b"},
		},
		{name: "empty", input: "", wantErr: ErrMalformedInput},
		{name: "non numeric key", input: "abc\ntext\n", wantErr: ErrMalformedInput},
		{name: "missing plaintext", input: "5\n", wantErr: ErrMalformedInput},
		{name: "key too large", input: "72057594037927936\ntext\n", wantErr: ErrKeyRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadInput(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestReadFiles covers the file based helpers.
func TestReadFiles(t *testing.T) {
	dir := t.TempDir()

	inPath := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(inPath, []byte("11\nplain\nla\n"), 0o644))
	in, err := ReadInputFile(inPath)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), in.Key)

	_, err = ReadInputFile(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)

	binPath := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(binPath, make([]byte, 16), 0o644))
	ct, err := ReadCiphertext(binPath)
	require.NoError(t, err)
	assert.Len(t, ct, 16)

	require.NoError(t, os.WriteFile(binPath, make([]byte, 10), 0o644))
	_, err = ReadCiphertext(binPath)
	assert.ErrorIs(t, err, ErrBlockSize)
}
