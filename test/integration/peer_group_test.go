package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestSystem is a group of keysweep peer processes under test
type TestSystem struct {
	t          *testing.T
	dir        string
	binary     string
	config     string
	addrs      []string
	peers      []*exec.Cmd
	outputs    []*bytes.Buffer
	httpClient *http.Client
}

// NewTestSystem builds the binary and writes a group file for n peers
func NewTestSystem(t *testing.T, n int, keyBits int) *TestSystem {
	t.Helper()
	dir := t.TempDir()
	ts := &TestSystem{
		t:          t,
		dir:        dir,
		binary:     filepath.Join(dir, "keysweep"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	t.Log("Building keysweep binary...")
	build := exec.Command("go", "build", "-o", ts.binary, "../../cmd/keysweep")
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		t.Fatalf("failed to build keysweep: %v", err)
	}

	var cfg strings.Builder
	fmt.Fprintf(&cfg, "run_id: integration\ntransport: http\nthreads: 2\npoll_every: 256\nkey_bits: %d\npeers:\n", keyBits)
	for i := 0; i < n; i++ {
		addr := freeAddr(t)
		ts.addrs = append(ts.addrs, "http://"+addr)
		fmt.Fprintf(&cfg, "  - id: peer-%d\n    addr: http://%s\n    listen: %s\n", i, addr, addr)
	}
	ts.config = filepath.Join(dir, "group.yaml")
	if err := os.WriteFile(ts.config, []byte(cfg.String()), 0o644); err != nil {
		t.Fatalf("write group file: %v", err)
	}
	return ts
}

// Encrypt runs the encrypt command and returns the ciphertext path
func (ts *TestSystem) Encrypt(key uint64, text string) string {
	input := filepath.Join(ts.dir, "input.txt")
	if err := os.WriteFile(input, []byte(fmt.Sprintf("%d\n%s\n", key, text)), 0o644); err != nil {
		ts.t.Fatalf("write input: %v", err)
	}
	bin := filepath.Join(ts.dir, "encrypted.bin")
	out, err := exec.Command(ts.binary, "encrypt", input, bin).CombinedOutput()
	if err != nil {
		ts.t.Fatalf("encrypt failed: %v\n%s", err, out)
	}
	return bin
}

// Start launches every peer
func (ts *TestSystem) Start(bin, fragment string) {
	for i := range ts.addrs {
		ts.t.Logf("Starting peer %d...", i)
		var out bytes.Buffer
		cmd := exec.Command(ts.binary, "--log-level", "warn", "peer", "--config", ts.config, bin, fragment)
		cmd.Env = append(os.Environ(), fmt.Sprintf("KEYSWEEP_PEER_INDEX=%d", i))
		cmd.Stdout = &out
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			ts.t.Fatalf("failed to start peer %d: %v", i, err)
		}
		ts.peers = append(ts.peers, cmd)
		ts.outputs = append(ts.outputs, &out)
	}
}

// Wait waits for every peer to exit and returns their stdout
func (ts *TestSystem) Wait(timeout time.Duration) []string {
	done := make(chan error, len(ts.peers))
	for _, p := range ts.peers {
		go func(p *exec.Cmd) { done <- p.Wait() }(p)
	}

	deadline := time.After(timeout)
	for range ts.peers {
		select {
		case err := <-done:
			if err != nil {
				ts.t.Errorf("peer exited with error: %v", err)
			}
		case <-deadline:
			ts.Stop()
			ts.t.Fatal("peer group did not finish in time")
		}
	}

	outs := make([]string, len(ts.outputs))
	for i, o := range ts.outputs {
		outs[i] = o.String()
	}
	return outs
}

// Stop kills any peer still running
func (ts *TestSystem) Stop() {
	for i, p := range ts.peers {
		if p != nil && p.Process != nil {
			ts.t.Logf("Stopping peer %d...", i)
			p.Process.Kill()
		}
	}
}

// waitForService waits for an HTTP service to become available
func (ts *TestSystem) waitForService(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s", url)
		default:
			resp, err := ts.httpClient.Get(url)
			if err == nil && resp.StatusCode == http.StatusOK {
				resp.Body.Close()
				return nil
			}
			if resp != nil {
				resp.Body.Close()
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().String()
}

// TestPeerGroupFindsKey tests that three peer processes find a key owned by
// the last peer and that only the reporter prints the result
func TestPeerGroupFindsKey(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ts := NewTestSystem(t, 3, 16)
	defer ts.Stop()

	bin := ts.Encrypt(60000, "the eagle lands at midnight")
	ts.Start(bin, "eagle lands")
	outs := ts.Wait(60 * time.Second)

	if !strings.Contains(outs[0], "SUCCESS!") || !strings.Contains(outs[0], "Key found: 60000") {
		t.Errorf("reporter output missing result:\n%s", outs[0])
	}
	if !strings.Contains(outs[0], "Found by: peer 2") {
		t.Errorf("expected peer 2 to find the key:\n%s", outs[0])
	}
	if !strings.Contains(outs[0], "Decrypted text: the eagle lands at midnight") {
		t.Errorf("reporter did not decrypt:\n%s", outs[0])
	}
	for i := 1; i < 3; i++ {
		if strings.Contains(outs[i], "=== Results ===") {
			t.Errorf("peer %d printed results:\n%s", i, outs[i])
		}
	}
}

// TestPeerGroupNotFound tests that exhaustion reports from every peer end
// the run with a failure report
func TestPeerGroupNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ts := NewTestSystem(t, 2, 12)
	defer ts.Stop()

	bin := ts.Encrypt(1<<20, "out of reach entirely")
	ts.Start(bin, "of reach")
	outs := ts.Wait(60 * time.Second)

	if !strings.Contains(outs[0], "FAILED - Key not found in search space") {
		t.Errorf("reporter output missing failure:\n%s", outs[0])
	}
	if !strings.Contains(outs[0], "Keys tested: 4096") {
		t.Errorf("expected every key to be tested:\n%s", outs[0])
	}
	if !strings.Contains(outs[1], "finished: unset") {
		t.Errorf("peer 1 output:\n%s", outs[1])
	}
}

// TestPeerProgressEndpoint tests that a running peer serves its progress
func TestPeerProgressEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Large enough that the group is still searching while polled.
	ts := NewTestSystem(t, 2, 40)
	defer ts.Stop()

	bin := ts.Encrypt(1, "a needle in a haystack")
	ts.Start(bin, "no such needle")

	for _, addr := range ts.addrs {
		if err := ts.waitForService(addr + "/health"); err != nil {
			t.Fatal(err)
		}
	}

	var progress struct {
		Peer       int    `json:"peer"`
		KeysTested uint64 `json:"keys_tested"`
		State      string `json:"state"`
	}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := ts.httpClient.Get(ts.addrs[1] + "/progress")
		if err == nil {
			err = json.NewDecoder(resp.Body).Decode(&progress)
			resp.Body.Close()
		}
		if err == nil && progress.KeysTested > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if progress.Peer != 1 {
		t.Errorf("expected peer 1, got %d", progress.Peer)
	}
	if progress.KeysTested == 0 {
		t.Error("expected keys to be tested")
	}
	if progress.State != "unset" {
		t.Errorf("expected state unset, got %q", progress.State)
	}

	out, err := exec.Command(ts.binary, "progress", "--addr", ts.addrs[0]).CombinedOutput()
	if err != nil {
		t.Fatalf("progress command failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "[Peer 0] Progress:") {
		t.Errorf("unexpected progress output: %s", out)
	}
}
