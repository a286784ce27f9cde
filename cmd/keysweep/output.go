package main

import (
	"fmt"
	"io"

	"github.com/dreamware/keysweep/internal/cipher"
	"github.com/dreamware/keysweep/internal/coordinator"
	"github.com/dreamware/keysweep/internal/partition"
)

// keySpace returns the number of keys below 2^bits.
func keySpace(bits int) (uint64, error) {
	if bits < 1 || bits > cipher.KeyBits {
		return 0, fmt.Errorf("key bits %d outside [1, %d]", bits, cipher.KeyBits)
	}
	return uint64(1) << bits, nil
}

func printCiphertext(w io.Writer, path, fragment string, ct []byte) {
	fmt.Fprintf(w, "Encrypted file: %s\n", path)
	fmt.Fprintf(w, "Search string: %q\n\n", fragment)
	fmt.Fprintln(w, "--- Encrypted Data ---")
	fmt.Fprintf(w, "Ciphertext length: %d bytes\n", len(ct))
	fmt.Fprintf(w, "Ciphertext (hex): %s\n\n", cipher.HexPreview(ct, previewBytes))
}

func printPlan(w io.Writer, plan *partition.Plan, bits int) {
	fmt.Fprintln(w, "--- Brute Force Search ---")
	fmt.Fprintf(w, "Total peers: %d\n", len(plan.Peers))
	fmt.Fprintf(w, "Search space: 2^%d = %d keys\n", bits, plan.Space)
	fmt.Fprintf(w, "Keys per peer: ~%d\n", plan.Peers[0].Len())
	for i, r := range plan.Peers {
		fmt.Fprintf(w, "[Peer %d] Searching range: %d to %d with %d threads\n", i, r.Lower, r.Upper, len(plan.Threads[i]))
	}
	fmt.Fprintln(w, "Starting search...")
	fmt.Fprintln(w)
}

// printOutcome writes the results block. A found key is checked by
// decrypting ct once more.
func printOutcome(w io.Writer, out coordinator.Outcome, ct []byte) error {
	fmt.Fprintln(w, "=== Results ===")
	if !out.Found {
		fmt.Fprintln(w, "FAILED - Key not found in search space")
		fmt.Fprintf(w, "Keys tested: %d\n", out.KeysTested)
		fmt.Fprintf(w, "Time elapsed: %.2f seconds\n", out.Elapsed.Seconds())
		return nil
	}

	pt, err := cipher.Decrypt(out.Key, ct)
	if err != nil {
		return fmt.Errorf("decrypt with found key %d: %w", out.Key, err)
	}
	fmt.Fprintln(w, "SUCCESS!")
	fmt.Fprintf(w, "Key found: %d\n", out.Key)
	fmt.Fprintf(w, "Found by: peer %d, thread %d\n", out.Peer, out.Thread)
	fmt.Fprintf(w, "Decrypted text: %s\n", cipher.CString(pt))
	fmt.Fprintf(w, "Keys tested: %d\n", out.KeysTested)
	fmt.Fprintf(w, "Time elapsed: %.2f seconds\n", out.Elapsed.Seconds())
	return nil
}
