package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PeerInfo identifies one member of a search group.
type PeerInfo struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Addr  string `json:"addr"`
}

// BaseURL returns Addr as a URL without a trailing slash. A bare host:port
// gets the http scheme.
func (p PeerInfo) BaseURL() string {
	addr := strings.TrimRight(p.Addr, "/")
	if addr != "" && !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr
}

// Tag distinguishes the kinds of traffic exchanged inside a group.
type Tag string

const (
	// TagAnnounce carries a winning key from its finder to every peer.
	TagAnnounce Tag = "announce"
	// TagExhausted tells the reporter a peer searched its whole range in vain.
	TagExhausted Tag = "exhausted"
	// TagFault tells the reporter a peer aborted on a predicate or send error.
	TagFault Tag = "fault"
)

// Tags lists every valid tag, in a stable order.
var Tags = []Tag{TagAnnounce, TagExhausted, TagFault}

// Valid reports whether t is one of the known tags.
func (t Tag) Valid() bool {
	switch t {
	case TagAnnounce, TagExhausted, TagFault:
		return true
	}
	return false
}

// ErrInvalidMessage is returned when a message fails validation.
var ErrInvalidMessage = errors.New("invalid message")

// Message is the only payload exchanged between peers.
//
// Announce messages carry Key and Thread; exhausted messages carry
// KeysTested; fault messages carry Error. From is always the sender's index.
type Message struct {
	Tag        Tag    `json:"tag"`
	RunID      string `json:"run_id,omitempty"`
	From       int    `json:"from"`
	Key        uint64 `json:"key,omitempty"`
	Thread     int    `json:"thread,omitempty"`
	KeysTested uint64 `json:"keys_tested,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Validate checks the tag and sender index against a group of size peers.
func (m Message) Validate(peers int) error {
	if !m.Tag.Valid() {
		return fmt.Errorf("%w: unknown tag %q", ErrInvalidMessage, m.Tag)
	}
	if m.From < 0 || m.From >= peers {
		return fmt.Errorf("%w: sender %d outside group of %d", ErrInvalidMessage, m.From, peers)
	}
	return nil
}

// StatusError is returned by PostJSON and GetJSON for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: %d", e.URL, e.Code)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON sends body as JSON and decodes the response into out, if non-nil.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
