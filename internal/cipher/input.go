package cipher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMalformedInput is returned when an input file lacks a key or plaintext.
var ErrMalformedInput = errors.New("malformed input")

// Input is the content of an encryption input file.
type Input struct {
	Key       uint64
	Plaintext string
	Search    string // Empty when the file has no third line
}

// ReadInput parses the three line input format: the key as a decimal
// integer, the text to encrypt, and an optional search fragment.
func ReadInput(r io.Reader) (Input, error) {
	sc := bufio.NewScanner(r)
	lines := make([]string, 0, 3)
	for len(lines) < 3 && sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return Input{}, fmt.Errorf("read input: %w", err)
	}

	if len(lines) < 1 || strings.TrimSpace(lines[0]) == "" {
		return Input{}, fmt.Errorf("%w: missing encryption key", ErrMalformedInput)
	}
	key, err := strconv.ParseUint(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return Input{}, fmt.Errorf("%w: encryption key: %w", ErrMalformedInput, err)
	}
	if key >= KeySpace {
		return Input{}, fmt.Errorf("%w: %d", ErrKeyRange, key)
	}
	if len(lines) < 2 {
		return Input{}, fmt.Errorf("%w: missing plaintext", ErrMalformedInput)
	}

	in := Input{Key: key, Plaintext: lines[1]}
	if len(lines) == 3 {
		in.Search = lines[2]
	}
	return in, nil
}

// ReadInputFile opens path and parses it with ReadInput.
func ReadInputFile(path string) (Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return Input{}, err
	}
	defer f.Close()
	return ReadInput(f)
}

// ReadCiphertext reads a ciphertext file and checks its length.
func ReadCiphertext(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 || len(b)%BlockSize != 0 {
		return nil, fmt.Errorf("%s: %w: %d bytes", path, ErrBlockSize, len(b))
	}
	return b, nil
}
