package workflow

import (
	"sort"

	"github.com/tidwall/gjson"
)

// BuildLoops derives canonical loop descriptors from the loop container
// blocks in the state. Child membership comes from each block's parentId;
// iteration counts are clamped to [MinLoopIterations, MaxLoopIterations].
func BuildLoops(s *State) map[string]*Loop {
	loops := make(map[string]*Loop)
	for id, b := range s.Blocks {
		if b.Type != BlockTypeLoop {
			continue
		}

		loop := &Loop{
			ID:         id,
			Nodes:      childNodes(s, id),
			Iterations: clampInt(loopIterations(b), MinLoopIterations, MaxLoopIterations),
			LoopType:   loopType(b),
		}
		if loop.LoopType == LoopTypeForEach {
			loop.ForEachItems = parseCollection(b)
		}
		loops[id] = loop
	}
	return loops
}

// BuildParallels derives canonical parallel descriptors from the parallel
// container blocks in the state.
func BuildParallels(s *State) map[string]*Parallel {
	parallels := make(map[string]*Parallel)
	for id, b := range s.Blocks {
		if b.Type != BlockTypeParallel {
			continue
		}

		p := &Parallel{
			ID:           id,
			Nodes:        childNodes(s, id),
			ParallelType: parallelType(b),
		}
		switch p.ParallelType {
		case ParallelTypeCollection:
			p.Distribution = parseCollection(b)
			// Branch count follows the collection when it parsed to a list.
			if items, ok := p.Distribution.([]any); ok {
				p.Count = clampInt(len(items), MinParallelCount, MaxParallelCount)
			} else {
				p.Count = MinParallelCount
			}
		default:
			count, _ := b.dataInt("count")
			p.Count = clampInt(count, MinParallelCount, MaxParallelCount)
		}
		parallels[id] = p
	}
	return parallels
}

// childNodes returns the IDs of blocks whose parent is the given container,
// sorted for deterministic output.
func childNodes(s *State, containerID string) []string {
	nodes := []string{}
	for id, b := range s.Blocks {
		if b.ParentID() == containerID {
			nodes = append(nodes, id)
		}
	}
	sort.Strings(nodes)
	return nodes
}

func loopIterations(b *Block) int {
	if n, ok := b.dataInt("count"); ok {
		return n
	}
	return MinLoopIterations
}

func loopType(b *Block) string {
	if t, ok := b.dataString("loopType"); ok && t == LoopTypeForEach {
		return LoopTypeForEach
	}
	return LoopTypeFor
}

func parallelType(b *Block) string {
	if t, ok := b.dataString("parallelType"); ok && t == ParallelTypeCollection {
		return ParallelTypeCollection
	}
	return ParallelTypeCount
}

// parseCollection interprets a container's "collection" value. Already-typed
// arrays and objects pass through; strings holding JSON literals are decoded,
// anything else (expressions referencing upstream outputs) is kept verbatim
// for the execution engine to resolve.
func parseCollection(b *Block) any {
	if b.Data == nil {
		return nil
	}
	raw, ok := b.Data["collection"]
	if !ok {
		return nil
	}

	str, isString := raw.(string)
	if !isString {
		return raw
	}
	if !gjson.Valid(str) {
		return str
	}

	parsed := gjson.Parse(str)
	switch {
	case parsed.IsArray(), parsed.IsObject():
		return parsed.Value()
	default:
		return str
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
