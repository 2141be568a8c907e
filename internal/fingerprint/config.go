package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// VectorConfig is the hashable shape of one configured security vector.
type VectorConfig struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// Config computes the 128-bit configuration fingerprint over the full vector
// configuration. Entries are serialized in sorted id order, so the result is
// independent of any incidental config-store ordering. The hash is a change
// detector, not a security primitive; MD5 is sufficient and cheap.
func Config(vectors map[string]VectorConfig) string {
	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	type entry struct {
		ID string `json:"id"`
		VectorConfig
	}
	canonical := make([]entry, 0, len(ids))
	for _, id := range ids {
		canonical = append(canonical, entry{ID: id, VectorConfig: vectors[id]})
	}

	// Marshalling a slice of flat structs cannot fail.
	serialized, _ := json.Marshal(canonical)
	sum := md5.Sum(serialized)
	return hex.EncodeToString(sum[:])
}
