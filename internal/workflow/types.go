// Package workflow defines the in-memory workflow graph model: blocks
// connected by edges, plus the canonical loop/parallel subflow descriptors
// derived from container blocks.
package workflow

import (
	"time"
)

// Block type identifiers. Container types carry subflow semantics; everything
// else is an ordinary node as far as the graph is concerned.
const (
	BlockTypeStarter  = "starter"
	BlockTypeAgent    = "agent"
	BlockTypeFunction = "function"
	BlockTypeLoop     = "loop"
	BlockTypeParallel = "parallel"
	BlockTypeTrigger  = "trigger"
	BlockTypeResponse = "response"
)

// Loop iteration semantics.
const (
	LoopTypeFor     = "for"     // fixed iteration count
	LoopTypeForEach = "forEach" // iterate over a collection
)

// Parallel fan-out semantics.
const (
	ParallelTypeCount      = "count"      // fixed number of branches
	ParallelTypeCollection = "collection" // one branch per collection item
)

// Iteration and fan-out bounds enforced during canonicalization.
const (
	MinLoopIterations = 1
	MaxLoopIterations = 100
	MinParallelCount  = 1
	MaxParallelCount  = 20
)

// Position is a block's location on the canvas. Volatile: excluded from
// deployment hashing.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SubBlock is a single configured input on a block (a field in the editor).
type SubBlock struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Block is a node in the workflow graph.
type Block struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	Name      string              `json:"name"`
	Position  Position            `json:"position"`
	SubBlocks map[string]SubBlock `json:"subBlocks,omitempty"`
	Outputs   map[string]any      `json:"outputs,omitempty"`
	Enabled   bool                `json:"enabled"`

	// Data carries type-specific configuration. For blocks nested inside a
	// loop or parallel it holds "parentId" and "extent"; for container
	// blocks it holds "count", "loopType"/"parallelType" and "collection".
	Data map[string]any `json:"data,omitempty"`

	AdvancedMode bool `json:"advancedMode,omitempty"`
	TriggerMode  bool `json:"triggerMode,omitempty"`

	// Layout hints. Volatile: excluded from deployment hashing.
	Wide   bool    `json:"isWide,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Edge is a directed connection between two blocks.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Loop is the canonical descriptor for a loop container block: which blocks
// it iterates and how. Generated by Normalize, never authored directly.
type Loop struct {
	ID           string   `json:"id"`
	Nodes        []string `json:"nodes"`
	Iterations   int      `json:"iterations"`
	LoopType     string   `json:"loopType"`
	ForEachItems any      `json:"forEachItems,omitempty"`
}

// Parallel is the canonical descriptor for a parallel container block.
type Parallel struct {
	ID           string   `json:"id"`
	Nodes        []string `json:"nodes"`
	Count        int      `json:"count"`
	ParallelType string   `json:"parallelType"`
	Distribution any      `json:"distribution,omitempty"`
}

// State is the full editable graph of a workflow. Loops and Parallels are
// derived from container blocks by Normalize; callers should treat them as
// read-only.
type State struct {
	Blocks    map[string]*Block    `json:"blocks"`
	Edges     []Edge               `json:"edges"`
	Loops     map[string]*Loop     `json:"loops"`
	Parallels map[string]*Parallel `json:"parallels"`
	LastSaved int64                `json:"lastSaved,omitempty"`
}

// NewState returns an empty workflow state.
func NewState() *State {
	return &State{
		Blocks:    make(map[string]*Block),
		Edges:     []Edge{},
		Loops:     make(map[string]*Loop),
		Parallels: make(map[string]*Parallel),
	}
}

// Touch updates the last-saved timestamp.
func (s *State) Touch() {
	s.LastSaved = time.Now().UnixMilli()
}

// ParentID returns the subflow container this block belongs to, or "".
func (b *Block) ParentID() string {
	if b.Data == nil {
		return ""
	}
	if v, ok := b.Data["parentId"].(string); ok {
		return v
	}
	return ""
}

// IsContainer reports whether the block defines a subflow.
func (b *Block) IsContainer() bool {
	return b.Type == BlockTypeLoop || b.Type == BlockTypeParallel
}

// IsStarter reports whether the block can begin execution on its own.
func (b *Block) IsStarter() bool {
	return b.Type == BlockTypeStarter || b.Type == BlockTypeTrigger || b.TriggerMode
}

// dataInt reads an integer from Data tolerating the float64 that
// encoding/json produces.
func (b *Block) dataInt(key string) (int, bool) {
	if b.Data == nil {
		return 0, false
	}
	switch v := b.Data[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// dataString reads a string from Data.
func (b *Block) dataString(key string) (string, bool) {
	if b.Data == nil {
		return "", false
	}
	v, ok := b.Data[key].(string)
	return v, ok
}
