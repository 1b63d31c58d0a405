package vector

import (
	"fmt"
	"hash/fnv"
)

// PointID derives the deterministic point id for one chunk of a logical
// entity. The id is the 63-bit positive FNV-1a hash of "{logicalID}_{index}",
// so re-upserting the same entity overwrites its points in place.
func PointID(logicalID string, index int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s_%d", logicalID, index)
	return h.Sum64() & 0x7FFFFFFFFFFFFFFF
}
