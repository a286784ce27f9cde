package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dreamware/keysweep/internal/cipher"
	"github.com/dreamware/keysweep/internal/coordinator"
	"github.com/dreamware/keysweep/internal/node"
	"github.com/dreamware/keysweep/internal/platform/metrics"
	"github.com/dreamware/keysweep/internal/transport"
)

// peerTransport is an opened group transport plus whatever must be released
// with it.
type peerTransport struct {
	transport.Transport
	http  *transport.HTTP // set for the HTTP transport
	close func() error
}

// openTransport connects peer index to launch of the group described by g.
func openTransport(ctx context.Context, g *GroupFile, index int, launch string, logger *slog.Logger) (*peerTransport, error) {
	switch g.Transport {
	case TransportRedis:
		opts, err := redis.ParseURL(g.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		tr, err := transport.NewRedis(client, g.RunID, launch, index, len(g.Peers), transport.WithRedisLogger(logger))
		if err != nil {
			client.Close()
			return nil, err
		}
		return &peerTransport{Transport: tr, close: func() error {
			return errors.Join(tr.Close(), client.Close())
		}}, nil

	default:
		tr, err := transport.NewHTTP(index, g.PeerInfos(),
			transport.WithRunID(g.RunID),
			transport.WithHTTPLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return &peerTransport{Transport: tr, http: tr, close: tr.Close}, nil
	}
}

// peerIndex resolves --index, falling back to KEYSWEEP_PEER_INDEX.
func peerIndex(flag int) (int, error) {
	if flag >= 0 {
		return flag, nil
	}
	v := getenv("KEYSWEEP_PEER_INDEX", "")
	if v == "" {
		return 0, errors.New("peer index not set: use --index or KEYSWEEP_PEER_INDEX")
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid KEYSWEEP_PEER_INDEX %q", v)
	}
	return i, nil
}

// launchID resolves --launch, falling back to KEYSWEEP_LAUNCH_ID. The redis
// transport keeps undelivered mail between launches of a run, so it needs one.
func launchID(flag, transportName string) (string, error) {
	id := flag
	if id == "" {
		id = getenv("KEYSWEEP_LAUNCH_ID", "")
	}
	if id == "" && transportName == TransportRedis {
		return "", errors.New("redis transport needs a launch id: use --launch or KEYSWEEP_LAUNCH_ID, fresh for every launch")
	}
	return id, nil
}

// runPeer runs one member of a multi-process group:
//  1. Load the group file and pick this peer's entry
//  2. Build the trial predicate from the ciphertext
//  3. Open the transport and start the peer API
//  4. Search this peer's range until the group outcome is known
//  5. On the reporter, print the results
//  6. Shut the API down
func runPeer(cmd *cobra.Command, opts *options, args []string) error {
	ctPath, fragment := args[0], args[1]
	out := cmd.OutOrStdout()

	path := opts.configPath
	if path == "" {
		path = mustGetenv("KEYSWEEP_CONFIG")
	}
	g, err := loadGroupFile(path)
	if err != nil {
		return err
	}
	index, err := peerIndex(opts.index)
	if err != nil {
		return err
	}
	if index >= len(g.Peers) {
		return fmt.Errorf("peer index %d outside group of %d", index, len(g.Peers))
	}
	self := g.Peers[index]
	if g.Transport == TransportHTTP && self.Listen == "" {
		return fmt.Errorf("peer %d has no listen address", index)
	}
	launch, err := launchID(opts.launch, g.Transport)
	if err != nil {
		return err
	}

	space, err := keySpace(g.KeyBits)
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.logger.With("peer", index, "run_id", g.RunID)
	if launch != "" {
		logger = logger.With("launch_id", launch)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tr, err := openTransport(ctx, g, index, launch, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.close(); err != nil {
			logger.Warn("close transport", "error", err)
		}
	}()

	ex, err := coordinator.NewExchange(tr,
		coordinator.WithRunID(g.RunID),
		coordinator.WithReporter(g.Reporter),
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	n, err := node.New(node.Config{
		Space:     space,
		Threads:   g.Threads,
		PollEvery: g.PollEvery,
	}, ex, predicate, node.WithLogger(logger), node.WithMetrics(m))
	if err != nil {
		return err
	}

	registry := coordinator.NewRegistry(n.Plan())
	for _, p := range g.PeerInfos() {
		if err := registry.Register(p); err != nil {
			return err
		}
	}

	var srv *http.Server
	if self.Listen != "" {
		ln, err := net.Listen("tcp", self.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", self.Listen, err)
		}
		api := &peerServer{view: n, registry: registry, gatherer: reg, messages: tr.http, logger: logger}
		srv = &http.Server{
			Handler:           api.routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("peer listening", "listen", self.Listen, "addr", self.Addr)
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("serve", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("server shutdown", "error", err)
			}
		}()
	}

	if n.IsReporter() {
		fmt.Fprintln(out, "=== DES Brute Force Cracker ===")
		printCiphertext(out, ctPath, fragment, ct)
		printPlan(out, n.Plan(), g.KeyBits)
	}

	report, err := n.Run(ctx)
	if opts.linger > 0 && srv != nil {
		select {
		case <-time.After(opts.linger):
		case <-ctx.Done():
		}
	}
	if err != nil {
		return err
	}

	if report.Outcome == nil {
		fmt.Fprintf(out, "[Peer %d] finished: %s, %d keys tested\n", index, report.Verdict.State, report.Result.KeysTested)
		return nil
	}
	fmt.Fprintln(out)
	return printOutcome(out, *report.Outcome, ct)
}
