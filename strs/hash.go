package strs

import "github.com/cespare/xxhash/v2"

// hashFresh computes the 16-bit descriptor hash for a string constructed
// directly from a complete byte slice (spec.md §3.3's "A hash is 16-bit").
// Grounded on arloliu-mebo's internal/hash/id.go, which hashes full byte
// content with cespare/xxhash/v2 rather than a hand-rolled accumulator;
// here the 64-bit digest is truncated to the engine's 16-bit hash field.
func hashFresh(b []byte) uint16 {
	return uint16(xxhash.Sum64(b))
}
