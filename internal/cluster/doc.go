// Package cluster defines the wire vocabulary shared by the members of a
// keysweep peer group, and the small JSON-over-HTTP helpers peers use to talk
// to each other.
//
// # Overview
//
// A search group is a fixed set of peers, numbered 0..N-1. Peers never share
// memory; everything they tell each other is a Message. Each message carries
// a Tag that plays the role of a channel: a receiver waiting for
// announcements never sees exhaustion reports and vice versa.
//
//	┌──────────┐ announce  ┌──────────┐
//	│  peer 2  │──────────▶│ peer 0..N│   (every peer, sender included)
//	└──────────┘           └──────────┘
//	┌──────────┐ exhausted ┌──────────┐
//	│  peer i  │──────────▶│ reporter │   (peer 0 by default)
//	└──────────┘   fault   └──────────┘
//
// # Tags
//
//   - TagAnnounce: a peer found the key and tells everyone, itself included.
//   - TagExhausted: a peer searched its whole range without a hit.
//   - TagFault: a peer aborted because its trial predicate failed.
//
// # HTTP Helpers
//
// PostJSON and GetJSON wrap a shared http.Client with a 5 second timeout.
// Non-2xx responses are returned as *StatusError so callers can tell a
// transient failure (5xx, 429) from a permanent one.
//
//	var p search.Progress
//	if err := cluster.GetJSON(ctx, addr+"/progress", &p); err != nil {
//		return err
//	}
package cluster
