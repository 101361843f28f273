// Package contenthash fingerprints a source/target text pair so a cached
// quality score can be checked for staleness. The hash is not cryptographic
// and is only ever compared against values produced by this package.
package contenthash

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Length of the hex string returned by Generate.
const Length = 16

// Generate returns a fixed-width lowercase hex fingerprint of the pair.
// Each input is length-prefixed so ("ab", "c") and ("a", "bc") differ.
func Generate(source, target string) string {
	digest := xxhash.New()
	writeField(digest, source)
	writeField(digest, target)
	return fmt.Sprintf("%016x", digest.Sum64())
}

// IsStale reports whether a stored hash no longer matches the pair.
// A missing stored hash is always stale.
func IsStale(stored *string, source, target string) bool {
	if stored == nil || *stored == "" {
		return true
	}
	return *stored != Generate(source, target)
}

func writeField(digest *xxhash.Digest, value string) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(value)))
	_, _ = digest.Write(prefix[:])
	_, _ = digest.WriteString(value)
}
