package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Hash returns a hex SHA-256 digest of the state's deployable content.
// Canvas positions, layout hints and the last-saved timestamp are stripped
// first so that cosmetic edits never flag a workflow as needing redeployment.
// Map iteration order is neutralized by marshaling through sorted keys.
func Hash(s *State) string {
	sum := sha256.Sum256(canonicalJSON(s))
	return hex.EncodeToString(sum[:])
}

// canonicalJSON produces a deterministic byte representation of the
// deployable parts of a state.
func canonicalJSON(s *State) []byte {
	type hashBlock struct {
		Type         string              `json:"type"`
		Name         string              `json:"name"`
		SubBlocks    map[string]SubBlock `json:"subBlocks,omitempty"`
		Enabled      bool                `json:"enabled"`
		Data         map[string]any      `json:"data,omitempty"`
		AdvancedMode bool                `json:"advancedMode,omitempty"`
		TriggerMode  bool                `json:"triggerMode,omitempty"`
	}

	blockIDs := make([]string, 0, len(s.Blocks))
	for id := range s.Blocks {
		blockIDs = append(blockIDs, id)
	}
	sort.Strings(blockIDs)

	blocks := make([]map[string]any, 0, len(blockIDs))
	for _, id := range blockIDs {
		b := s.Blocks[id]
		data := b.Data
		if data != nil {
			// Layout-only keys inside data are volatile too.
			data = copyWithout(data, "width", "height")
		}
		blocks = append(blocks, map[string]any{
			"id": id,
			"block": hashBlock{
				Type:         b.Type,
				Name:         b.Name,
				SubBlocks:    b.SubBlocks,
				Enabled:      b.Enabled,
				Data:         data,
				AdvancedMode: b.AdvancedMode,
				TriggerMode:  b.TriggerMode,
			},
		})
	}

	edges := make([]Edge, len(s.Edges))
	copy(edges, s.Edges)
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	payload, _ := json.Marshal(map[string]any{
		"blocks": blocks,
		"edges":  edges,
	})
	return payload
}

func copyWithout(m map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
