package search

import "time"

// Progress is a point-in-time view of a search for progress reporting.
type Progress struct {
	KeysTested uint64        `json:"keys_tested"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Rate returns keys tested per second, or 0 before any time has elapsed.
func (p Progress) Rate() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(p.KeysTested) / p.Elapsed.Seconds()
}

// Add sums two progress values, keeping the longer elapsed time.
// Used to aggregate the peers of an in-process group.
func (p Progress) Add(o Progress) Progress {
	out := Progress{KeysTested: p.KeysTested + o.KeysTested, Elapsed: p.Elapsed}
	if o.Elapsed > out.Elapsed {
		out.Elapsed = o.Elapsed
	}
	return out
}
