// Package simhash computes 64-bit SimHash fingerprints used to compare the
// structure of two DOM snapshots.
package simhash

import (
	"fmt"
	"hash/fnv"
	"math/bits"
)

// Fingerprint folds a sequence of features into a 64-bit SimHash. Each
// feature is hashed with FNV-64a and votes on every bit; repeated features
// vote repeatedly. An empty sequence has fingerprint 0.
func Fingerprint(features []string) uint64 {
	if len(features) == 0 {
		return 0
	}

	var votes [64]int
	h := fnv.New64a()
	for _, f := range features {
		h.Reset()
		h.Write([]byte(f))
		sum := h.Sum64()
		for i := range votes {
			if sum>>uint(i)&1 == 1 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}

	var fp uint64
	for i, v := range votes {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the number of differing bits between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Hex formats a fingerprint as 16 lowercase hex digits.
func Hex(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}
