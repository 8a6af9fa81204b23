package unitgraph

import (
	"fmt"
	"hash/fnv"
)

// fnv64Hex hashes s into the 16-hex-digit form file stem
// uses. FNV-64 is used rather than a cryptographic hash because unit
// metadata hashing is a collision-resistant-enough, speed-sensitive
// path (it runs once per unit on every build invocation), not a
// security boundary.
func fnv64Hex(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}
