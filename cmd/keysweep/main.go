// Package main implements keysweep, an exhaustive DES key search that runs
// either as one process holding a whole peer group or as one member of a
// multi-process group.
//
// Commands:
//
//	keysweep encrypt <input.txt> <output.bin>
//	keysweep crack <encrypted.bin> <search>
//	keysweep peer --config group.yaml --index i [--launch id] <encrypted.bin> <search>
//	keysweep progress --addr http://127.0.0.1:9001
//
// The input file of encrypt has three lines: the key as a decimal integer,
// the text to encrypt, and a search fragment that is printed as a hint.
//
// Peer mode serves:
//
//	┌─────────────────────────────────────────┐
//	│                 Peer                     │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /health         - Health check       │
//	│    /progress       - Keys tested        │
//	│    /plan           - Range assignments  │
//	│    /plan/{key}     - Owner of a key     │
//	│    /metrics        - Prometheus         │
//	│    /messages/{tag} - Group traffic      │
//	└─────────────────────────────────────────┘
//
// Environment:
//   - KEYSWEEP_CONFIG: group file used when --config is not given
//   - KEYSWEEP_PEER_INDEX: peer index used when --index is not given
//   - KEYSWEEP_REDIS_URL: overrides redis_url of the group file
//   - KEYSWEEP_LAUNCH_ID: launch id used when --launch is not given; the
//     redis transport needs a fresh one, shared by every peer, per launch
//   - KEYSWEEP_LOG_LEVEL: default of --log-level
//   - KEYSWEEP_TRACE: default of --trace
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
)

// logFatal is a variable to allow mocking log.Fatalf in tests.
var logFatal = log.Fatalf

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logFatal("keysweep: %v", err)
	}
}

// getenv returns the value of the environment variable k, or def when it is
// unset or empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// mustGetenv returns the value of the environment variable k and terminates
// the process when it is unset.
func mustGetenv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		logFatal("missing env %s", k)
	}
	return v
}

// newLogger builds the stderr text logger for level.
func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "", "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}
