package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/keysweep/internal/cipher"
	"github.com/dreamware/keysweep/internal/platform/telemetry"
	"github.com/dreamware/keysweep/internal/search"
)

// options holds the flag values of one command tree.
type options struct {
	logLevel string
	logger   *slog.Logger
	trace    string
	shutdown func(context.Context) error

	// crack
	peers            int
	threads          int
	pollEvery        uint64
	keyBits          int
	progressInterval time.Duration

	// peer
	configPath string
	index      int
	launch     string
	linger     time.Duration

	// progress
	addr  string
	watch time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "keysweep",
		Short:         "Exhaustive DES key search across peers and threads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = logger

			opts.shutdown, err = telemetry.Init(telemetry.Config{
				ServiceName: "keysweep",
				Exporter:    opts.trace,
				Writer:      cmd.ErrOrStderr(),
			})
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.shutdown == nil {
				return nil
			}
			return opts.shutdown(context.Background())
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", getenv("KEYSWEEP_LOG_LEVEL", "info"), "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&opts.trace, "trace", getenv("KEYSWEEP_TRACE", telemetry.ExporterNone), "span exporter: none or stdout (written to stderr)")

	encryptCmd := &cobra.Command{
		Use:   "encrypt <input.txt> <output.bin>",
		Short: "Encrypt the text of an input file with its key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncrypt(cmd, args)
		},
	}

	crackCmd := &cobra.Command{
		Use:   "crack <encrypted.bin> <search>",
		Short: "Search the key space with an in-process peer group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrack(cmd, opts, args)
		},
	}
	crackCmd.Flags().IntVar(&opts.peers, "peers", 4, "number of peers")
	crackCmd.Flags().IntVar(&opts.threads, "threads", 4, "worker threads per peer")
	crackCmd.Flags().Uint64Var(&opts.pollEvery, "poll-every", search.DefaultPollEvery, "keys between termination checks")
	crackCmd.Flags().IntVar(&opts.keyBits, "key-bits", cipher.KeyBits, "search only keys below 2^key-bits")
	crackCmd.Flags().DurationVar(&opts.progressInterval, "progress-interval", 5*time.Second, "progress log interval, 0 disables")

	peerCmd := &cobra.Command{
		Use:   "peer <encrypted.bin> <search>",
		Short: "Run one member of a multi-process peer group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeer(cmd, opts, args)
		},
	}
	peerCmd.Flags().StringVar(&opts.configPath, "config", "", "group file (default $KEYSWEEP_CONFIG)")
	peerCmd.Flags().IntVar(&opts.index, "index", -1, "index of this peer in the group file (default $KEYSWEEP_PEER_INDEX)")
	peerCmd.Flags().StringVar(&opts.launch, "launch", "", "id of this launch, shared by every peer (default $KEYSWEEP_LAUNCH_ID)")
	peerCmd.Flags().DurationVar(&opts.linger, "linger", 0, "keep serving this long after the search ends")

	progressCmd := &cobra.Command{
		Use:   "progress",
		Short: "Show the progress of a running peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgress(cmd, opts)
		},
	}
	progressCmd.Flags().StringVar(&opts.addr, "addr", "http://127.0.0.1:9001", "peer base URL")
	progressCmd.Flags().DurationVar(&opts.watch, "watch", 0, "poll at this interval until interrupted")

	rootCmd.AddCommand(encryptCmd, crackCmd, peerCmd, progressCmd)
	return rootCmd
}
