package hash

import "github.com/cespare/xxhash/v2"

// PathKey computes the xxHash64 of a module path. The path bytes are hashed
// as stored; no case folding or separator normalization is applied.
func PathKey(path string) uint64 {
	return xxhash.Sum64String(path)
}
