package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/keysweep/internal/cluster"
)

func runProgress(cmd *cobra.Command, opts *options) error {
	out := cmd.OutOrStdout()
	url := cluster.PeerInfo{Addr: opts.addr}.BaseURL() + "/progress"

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	show := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		var p progressResponse
		if err := cluster.GetJSON(reqCtx, url, &p); err != nil {
			return fmt.Errorf("fetch progress: %w", err)
		}
		fmt.Fprintf(out, "[Peer %d] Progress: %d keys tested (%.2f keys/sec) %s\n", p.Peer, p.KeysTested, p.KeysPerSec, p.State)
		return nil
	}

	if err := show(); err != nil || opts.watch <= 0 {
		return err
	}
	ticker := time.NewTicker(opts.watch)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := show(); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
