package cipher

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/dreamware/keysweep/internal/search"
)

// ErrEmptySearch is returned when the search fragment is empty; every key
// would match it.
var ErrEmptySearch = errors.New("empty search string")

// NewTrial returns the predicate that decrypts ciphertext with a candidate
// key and reports whether the plaintext contains fragment. The plaintext is
// read up to its first NUL byte, so padding never matches.
func NewTrial(ciphertext []byte, fragment string) (search.Predicate, error) {
	if fragment == "" {
		return nil, ErrEmptySearch
	}
	if len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBlockSize, len(ciphertext))
	}
	ct := bytes.Clone(ciphertext)
	needle := []byte(fragment)

	return func(key uint64) (bool, error) {
		pt := make([]byte, len(ct))
		if err := decryptInto(key, ct, pt); err != nil {
			return false, err
		}
		return bytes.Contains(CString(pt), needle), nil
	}, nil
}

// CString returns b up to, not including, its first NUL byte.
func CString(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}

// HexPreview formats at most max bytes of b as space separated hex pairs,
// followed by "..." when b is longer.
func HexPreview(b []byte, max int) string {
	n := len(b)
	if n > max {
		n = max
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%02x ", b[i])
	}
	if len(b) > max {
		sb.WriteString("...")
	}
	return strings.TrimRight(sb.String(), " ")
}
