package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamware/keysweep/internal/cipher"
)

// previewBytes is how much ciphertext is shown in hex.
const previewBytes = 32

func runEncrypt(cmd *cobra.Command, args []string) error {
	inputPath, outputPath := args[0], args[1]
	out := cmd.OutOrStdout()

	in, err := cipher.ReadInputFile(inputPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", inputPath, err)
	}
	ct, err := cipher.Encrypt(in.Key, []byte(in.Plaintext))
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "=== DES Encryption Mode ===")
	fmt.Fprintf(out, "Input file: %s\n", inputPath)
	fmt.Fprintf(out, "Encryption key: %d\n", in.Key)
	fmt.Fprintf(out, "Plaintext: %s\n", in.Plaintext)
	fmt.Fprintf(out, "Plaintext length (padded): %d bytes\n", len(ct))
	fmt.Fprintf(out, "Output file: %s\n\n", outputPath)

	if err := os.WriteFile(outputPath, ct, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}

	fmt.Fprintln(out, "--- Encryption Complete ---")
	fmt.Fprintf(out, "Ciphertext (hex): %s\n\n", cipher.HexPreview(ct, previewBytes))
	fmt.Fprintf(out, "File saved: %s\n", outputPath)
	if in.Search != "" {
		fmt.Fprintf(out, "Search string for decryption: %q\n", in.Search)
	}
	return nil
}
