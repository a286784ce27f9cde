package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/keysweep/internal/cipher"
	"github.com/dreamware/keysweep/internal/cluster"
	"github.com/dreamware/keysweep/internal/search"
)

// Transport names accepted in a group file.
const (
	TransportHTTP  = "http"
	TransportRedis = "redis"
)

// GroupFile is the YAML description of a multi-process peer group. Every
// peer loads the same file and picks its own entry by index.
//
// Example:
//
//	run_id: demo
//	transport: http
//	threads: 4
//	key_bits: 24
//	peers:
//	  - id: peer-0
//	    addr: http://127.0.0.1:9001
//	    listen: :9001
//	  - id: peer-1
//	    addr: http://127.0.0.1:9002
//	    listen: :9002
type GroupFile struct {
	RunID     string      `yaml:"run_id"`
	Transport string      `yaml:"transport"`
	RedisURL  string      `yaml:"redis_url"`
	Threads   int         `yaml:"threads"`
	PollEvery uint64      `yaml:"poll_every"`
	KeyBits   int         `yaml:"key_bits"`
	Reporter  int         `yaml:"reporter"`
	Peers     []PeerEntry `yaml:"peers"`
}

// PeerEntry is one member of a group file.
type PeerEntry struct {
	ID     string `yaml:"id"`
	Addr   string `yaml:"addr"`   // Base URL other peers post to
	Listen string `yaml:"listen"` // Local listen address of the peer API
}

// loadGroupFile reads path, applies KEYSWEEP_REDIS_URL, and validates the
// result. Defaults only fill fields absent from the file; a value written
// out, zero included, is kept and validated as is.
func loadGroupFile(path string) (*GroupFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read group file: %w", err)
	}
	g := GroupFile{
		Transport: TransportHTTP,
		Threads:   1,
		PollEvery: search.DefaultPollEvery,
		KeyBits:   cipher.KeyBits,
	}
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse group file %s: %w", path, err)
	}

	g.RedisURL = getenv("KEYSWEEP_REDIS_URL", g.RedisURL)

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("group file %s: %w", path, err)
	}
	return &g, nil
}

// Validate checks the group file. Values are never clamped.
func (g *GroupFile) Validate() error {
	var errs []error
	if len(g.Peers) == 0 {
		errs = append(errs, errors.New("no peers"))
	}
	if g.Reporter < 0 || g.Reporter >= len(g.Peers) {
		errs = append(errs, fmt.Errorf("reporter %d outside group of %d", g.Reporter, len(g.Peers)))
	}
	if g.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads must be positive, got %d", g.Threads))
	}
	if g.PollEvery == 0 {
		errs = append(errs, errors.New("poll_every must be positive"))
	}
	if _, err := keySpace(g.KeyBits); err != nil {
		errs = append(errs, err)
	}

	switch g.Transport {
	case TransportHTTP:
		for i, p := range g.Peers {
			if p.Addr == "" {
				errs = append(errs, fmt.Errorf("peer %d has no addr", i))
			}
		}
	case TransportRedis:
		if g.RedisURL == "" {
			errs = append(errs, errors.New("redis transport needs redis_url"))
		}
		if g.RunID == "" {
			errs = append(errs, errors.New("redis transport needs a shared run_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", g.Transport))
	}

	seen := make(map[string]int, len(g.Peers))
	for i, p := range g.Peers {
		if p.ID == "" {
			continue
		}
		if j, dup := seen[p.ID]; dup {
			errs = append(errs, fmt.Errorf("peers %d and %d share id %q", j, i, p.ID))
		}
		seen[p.ID] = i
	}
	return errors.Join(errs...)
}

// PeerInfos returns the peers in index order. Missing ids are derived from
// the index.
func (g *GroupFile) PeerInfos() []cluster.PeerInfo {
	out := make([]cluster.PeerInfo, len(g.Peers))
	for i, p := range g.Peers {
		id := p.ID
		if id == "" {
			id = fmt.Sprintf("peer-%d", i)
		}
		out[i] = cluster.PeerInfo{Index: i, ID: id, Addr: p.Addr}
	}
	return out
}
