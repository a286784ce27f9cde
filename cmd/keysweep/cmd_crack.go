package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dreamware/keysweep/internal/cipher"
	"github.com/dreamware/keysweep/internal/cluster"
	"github.com/dreamware/keysweep/internal/coordinator"
	"github.com/dreamware/keysweep/internal/node"
	"github.com/dreamware/keysweep/internal/search"
)

func runCrack(cmd *cobra.Command, opts *options, args []string) error {
	ctPath, fragment := args[0], args[1]
	out := cmd.OutOrStdout()

	space, err := keySpace(opts.keyBits)
	if err != nil {
		return err
	}
	ct, err := cipher.ReadCiphertext(ctPath)
	if err != nil {
		return err
	}
	predicate, err := cipher.NewTrial(ct, fragment)
	if err != nil {
		return err
	}

	g, err := node.NewGroup(node.GroupConfig{
		Config: node.Config{
			Space:     space,
			Threads:   opts.threads,
			PollEvery: opts.pollEvery,
		},
		Peers: opts.peers,
	}, predicate, node.WithLogger(opts.logger))
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "=== DES Brute Force Cracker ===")
	printCiphertext(out, ctPath, fragment, ct)
	printPlan(out, g.Nodes()[0].Plan(), opts.keyBits)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.progressInterval > 0 {
		mon := coordinator.NewProgressMonitor(opts.progressInterval)
		mon.SetLogger(opts.logger.With("run_id", g.RunID()))
		mon.SetFetchFunction(func(_ context.Context, p cluster.PeerInfo) (search.Progress, error) {
			return g.Nodes()[p.Index].Progress(), nil
		})
		registry := coordinator.NewRegistry(g.Nodes()[0].Plan())
		for i := range g.Nodes() {
			if err := registry.Register(cluster.PeerInfo{Index: i, ID: fmt.Sprintf("peer-%d", i)}); err != nil {
				return err
			}
		}
		go mon.Start(ctx, registry.Peers)
		defer mon.Stop()
	}

	res, err := g.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	return printOutcome(out, res.Outcome, ct)
}
