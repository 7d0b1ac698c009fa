package workflow

import (
	"reflect"
	"testing"
)

func loopBlock(id string, data map[string]any) *Block {
	return &Block{ID: id, Type: BlockTypeLoop, Name: "Loop", Enabled: true, Data: data}
}

func childBlock(id, parent string) *Block {
	return &Block{
		ID: id, Type: BlockTypeFunction, Name: id, Enabled: true,
		Data: map[string]any{"parentId": parent, "extent": "parent"},
	}
}

func TestBuildLoopsForCount(t *testing.T) {
	t.Parallel()

	s := NewState()
	s.Blocks["loop-1"] = loopBlock("loop-1", map[string]any{"count": float64(5), "loopType": "for"})
	s.Blocks["b"] = childBlock("b", "loop-1")
	s.Blocks["a"] = childBlock("a", "loop-1")
	s.Blocks["outside"] = &Block{ID: "outside", Type: BlockTypeFunction, Enabled: true}

	loops := BuildLoops(s)
	loop, ok := loops["loop-1"]
	if !ok {
		t.Fatal("expected loop-1 descriptor")
	}
	if loop.Iterations != 5 {
		t.Errorf("expected 5 iterations, got %d", loop.Iterations)
	}
	if loop.LoopType != LoopTypeFor {
		t.Errorf("expected for loop, got %s", loop.LoopType)
	}
	// Children sorted, outsiders excluded.
	if !reflect.DeepEqual(loop.Nodes, []string{"a", "b"}) {
		t.Errorf("unexpected nodes: %v", loop.Nodes)
	}
}

func TestBuildLoopsClampsIterations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		count any
		want  int
	}{
		{"zero clamps up", float64(0), MinLoopIterations},
		{"negative clamps up", float64(-3), MinLoopIterations},
		{"over max clamps down", float64(5000), MaxLoopIterations},
		{"missing defaults to min", nil, MinLoopIterations},
		{"int accepted", 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := map[string]any{}
			if tt.count != nil {
				data["count"] = tt.count
			}
			s := NewState()
			s.Blocks["l"] = loopBlock("l", data)

			loops := BuildLoops(s)
			if got := loops["l"].Iterations; got != tt.want {
				t.Errorf("iterations = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBuildLoopsForEachParsesCollection(t *testing.T) {
	t.Parallel()

	s := NewState()
	s.Blocks["l"] = loopBlock("l", map[string]any{
		"loopType":   "forEach",
		"collection": `["x","y","z"]`,
	})

	loop := BuildLoops(s)["l"]
	if loop.LoopType != LoopTypeForEach {
		t.Fatalf("expected forEach, got %s", loop.LoopType)
	}
	items, ok := loop.ForEachItems.([]any)
	if !ok {
		t.Fatalf("expected parsed array, got %T", loop.ForEachItems)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 items, got %d", len(items))
	}
}

func TestBuildLoopsForEachKeepsExpressions(t *testing.T) {
	t.Parallel()

	// References to upstream outputs are resolved by the execution engine,
	// not here.
	s := NewState()
	s.Blocks["l"] = loopBlock("l", map[string]any{
		"loopType":   "forEach",
		"collection": "<agent1.output.items>",
	})

	loop := BuildLoops(s)["l"]
	if loop.ForEachItems != "<agent1.output.items>" {
		t.Errorf("expression should pass through verbatim, got %v", loop.ForEachItems)
	}
}

func TestBuildParallelsCount(t *testing.T) {
	t.Parallel()

	s := NewState()
	s.Blocks["p"] = &Block{
		ID: "p", Type: BlockTypeParallel, Enabled: true,
		Data: map[string]any{"count": float64(50), "parallelType": "count"},
	}
	s.Blocks["c1"] = childBlock("c1", "p")

	p := BuildParallels(s)["p"]
	if p.Count != MaxParallelCount {
		t.Errorf("count should clamp to %d, got %d", MaxParallelCount, p.Count)
	}
	if p.ParallelType != ParallelTypeCount {
		t.Errorf("unexpected type %s", p.ParallelType)
	}
	if !reflect.DeepEqual(p.Nodes, []string{"c1"}) {
		t.Errorf("unexpected nodes %v", p.Nodes)
	}
}

func TestBuildParallelsCollectionDrivesCount(t *testing.T) {
	t.Parallel()

	s := NewState()
	s.Blocks["p"] = &Block{
		ID: "p", Type: BlockTypeParallel, Enabled: true,
		Data: map[string]any{"parallelType": "collection", "collection": `[1,2,3,4]`},
	}

	p := BuildParallels(s)["p"]
	if p.Count != 4 {
		t.Errorf("count should follow collection length, got %d", p.Count)
	}
	if _, ok := p.Distribution.([]any); !ok {
		t.Errorf("distribution should be a parsed array, got %T", p.Distribution)
	}
}

func TestNormalizeDropsOrphans(t *testing.T) {
	t.Parallel()

	s := NewState()
	s.Blocks["start"] = &Block{ID: "start", Type: BlockTypeStarter, Enabled: true}
	s.Blocks["fn"] = &Block{ID: "fn", Type: BlockTypeFunction, Enabled: true}
	s.Blocks["stray"] = childBlock("stray", "deleted-loop")
	s.Edges = []Edge{
		{ID: "e1", Source: "start", Target: "fn"},
		{ID: "e2", Source: "fn", Target: "ghost"},
	}
	s.Loops["deleted-loop"] = &Loop{ID: "deleted-loop"}

	Normalize(s)

	if len(s.Edges) != 1 || s.Edges[0].ID != "e1" {
		t.Errorf("edge to missing block should be dropped, got %v", s.Edges)
	}
	if _, ok := s.Loops["deleted-loop"]; ok {
		t.Error("descriptor for deleted container should be regenerated away")
	}
	if s.Blocks["stray"].ParentID() != "" {
		t.Error("child of deleted container should be detached")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	s := NewState()
	s.Blocks["start"] = &Block{ID: "start", Type: BlockTypeStarter, Enabled: true}
	s.Blocks["l"] = loopBlock("l", map[string]any{"count": float64(3)})
	s.Blocks["c"] = childBlock("c", "l")
	s.Edges = []Edge{{ID: "e1", Source: "start", Target: "l"}}

	Normalize(s)
	first := Hash(s)
	Normalize(s)
	if got := Hash(s); got != first {
		t.Errorf("normalize should be idempotent: %s != %s", got, first)
	}
}
