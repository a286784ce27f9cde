// Package partition implements the range partitioner used by keysweep to
// divide a key space between the peers of a search group and, inside each
// peer, between its worker threads.
//
// # Overview
//
// The partitioner is a pure function: it has no state and performs no I/O.
// Given a total and a number of parts it returns contiguous half-open ranges
// that are pairwise disjoint and whose union is exactly the input range.
//
//	[0 ............................................ 64)
//	  peer 0        peer 1        peer 2        peer 3
//	[0,16)        [16,32)       [32,48)       [48,64)
//	                            /      \
//	                       thread 0   thread 1
//	                       [32,40)    [40,48)
//
// # Division Rule
//
// With base = total / parts (integer division), part i < parts-1 receives
// [i*base, (i+1)*base) and the last part receives [(parts-1)*base, total).
// The last part therefore absorbs the remainder and may be up to parts-1 keys
// larger than the others.
//
// # Error Handling
//
// Invalid input fails fast and is never silently corrected:
//   - ErrEmptySpace: the range to split holds no keys
//   - ErrInvalidParts: parts is below 1 or above the number of keys
//
// # Usage Example
//
//	plan, err := partition.NewPlan(1<<56, peers, threads)
//	if err != nil {
//	    return fmt.Errorf("build plan: %w", err)
//	}
//	mine := plan.Threads[peerIndex] // ranges for this peer's workers
package partition
