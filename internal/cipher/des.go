// Package cipher is the DES collaborator of the key search: it turns a
// 56-bit integer key into a DES key, encrypts and decrypts in ECB mode, and
// builds the substring trial predicate the search runs for every candidate.
package cipher

import (
	"crypto/des"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

const (
	// KeyBits is the effective DES key length.
	KeyBits = 56
	// KeySpace is the number of distinct DES keys.
	KeySpace uint64 = 1 << KeyBits
	// BlockSize is the DES block size in bytes.
	BlockSize = des.BlockSize
)

var (
	// ErrBlockSize is returned for ciphertext that is not a whole number of blocks.
	ErrBlockSize = errors.New("ciphertext is not a multiple of the block size")
	// ErrKeyRange is returned for keys outside the 56-bit key space.
	ErrKeyRange = errors.New("key outside 56-bit key space")
)

// ExpandKey spreads the low 56 bits of key over 8 bytes: byte i holds key
// bits 7i..7i+6 in its high seven bits, bytes are in little-endian order,
// and bit 0 of each byte is set for odd parity.
func ExpandKey(key uint64) [8]byte {
	var k uint64
	for i := 0; i < 8; i++ {
		k |= ((key >> (7 * i)) & 0x7f) << (8*i + 1)
	}

	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], k)
	for i, b := range out {
		if bits.OnesCount8(b)%2 == 0 {
			out[i] = b | 1
		}
	}
	return out
}

// Pad returns b zero-padded to a multiple of BlockSize. An empty input stays
// empty.
func Pad(b []byte) []byte {
	n := (len(b) + BlockSize - 1) / BlockSize * BlockSize
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Encrypt zero-pads plaintext and encrypts it block by block.
func Encrypt(key uint64, plaintext []byte) ([]byte, error) {
	if key >= KeySpace {
		return nil, fmt.Errorf("%w: %d", ErrKeyRange, key)
	}
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	out := Pad(plaintext)
	for i := 0; i < len(out); i += BlockSize {
		block.Encrypt(out[i:i+BlockSize], out[i:i+BlockSize])
	}
	return out, nil
}

// Decrypt decrypts ciphertext block by block.
func Decrypt(key uint64, ciphertext []byte) ([]byte, error) {
	out := make([]byte, len(ciphertext))
	if err := decryptInto(key, ciphertext, out); err != nil {
		return nil, err
	}
	return out, nil
}

func decryptInto(key uint64, ciphertext, out []byte) error {
	if len(ciphertext)%BlockSize != 0 {
		return fmt.Errorf("%w: %d bytes", ErrBlockSize, len(ciphertext))
	}
	block, err := newBlock(key)
	if err != nil {
		return err
	}
	for i := 0; i < len(ciphertext); i += BlockSize {
		block.Decrypt(out[i:i+BlockSize], ciphertext[i:i+BlockSize])
	}
	return nil
}

type blockCipher interface {
	Encrypt(dst, src []byte)
	Decrypt(dst, src []byte)
}

func newBlock(key uint64) (blockCipher, error) {
	k := ExpandKey(key)
	block, err := des.NewCipher(k[:])
	if err != nil {
		return nil, fmt.Errorf("des key %d: %w", key, err)
	}
	return block, nil
}
