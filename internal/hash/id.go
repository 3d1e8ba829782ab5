package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of a parameter or result name.
func ID(name string) uint64 {
	return xxhash.Sum64String(name)
}

// Checksum computes the xxHash64 of a container payload.
func Checksum(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}
