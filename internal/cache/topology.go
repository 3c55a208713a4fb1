package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ComputeTopologyHash produces a deterministic digest over a sorted set of
// graph node ids, used to invalidate cache entries whose grounding
// topology has since changed.
func ComputeTopologyHash(nodeIDs map[string]struct{}) string {
	if len(nodeIDs) == 0 {
		return ""
	}
	ids := make([]string, 0, len(nodeIDs))
	for id := range nodeIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	h := sha256.New()
	h.Write([]byte(strings.Join(ids, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateTopology reports whether entryHash is still valid against the
// current set of node ids: true iff the entry carries no hash, or its hash
// equals the hash of the current node set.
func ValidateTopology(entryHash string, currentNodeIDs map[string]struct{}) bool {
	if entryHash == "" {
		return true
	}
	return entryHash == ComputeTopologyHash(currentNodeIDs)
}

// IsSubsetOf reports whether every id in nodeIDs is present in current.
func IsSubsetOf(nodeIDs map[string]struct{}, current map[string]struct{}) bool {
	for id := range nodeIDs {
		if _, ok := current[id]; !ok {
			return false
		}
	}
	return true
}
