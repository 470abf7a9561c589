// Package quorum implements the comparator that decides when replies from
// independent peers agree. It has no dependency on any other qlient
// package — the rest of the core calls into it, never the reverse.
package quorum

import "bytes"

// Size counts occurrences of each present payload in slots by byte-exact
// equality and returns the size of the largest group. Absent slots (nil)
// never contribute to any group. Comparison is on raw wire bytes: two
// replies that are semantically equal but serialized differently are
// deliberately not coalesced, because peers are assumed to serialize
// identically (see pkg/wire.Encode). Ties break unobservably — only the
// maximum matters to callers.
func Size(slots [][]byte) int {
	best := 0
	counted := make([]bool, len(slots))
	for i, s := range slots {
		if s == nil || counted[i] {
			continue
		}
		count := 1
		for j := i + 1; j < len(slots); j++ {
			if counted[j] || slots[j] == nil {
				continue
			}
			if bytes.Equal(s, slots[j]) {
				count++
				counted[j] = true
			}
		}
		counted[i] = true
		if count > best {
			best = count
		}
	}
	return best
}

// Threshold returns the minimum count needed to treat n replies as a
// quorum: floor(n/2)+1. For n=3 this is 2, matching the protocol's
// explicit majority-of-three rule; the formula generalizes if n ever
// becomes configurable.
func Threshold(n int) int {
	return (n / 2) + 1
}
