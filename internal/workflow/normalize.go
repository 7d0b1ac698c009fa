package workflow

// Normalize brings a state into canonical form: loop/parallel descriptors are
// regenerated from container blocks, edges referencing removed blocks are
// dropped, and descriptors for containers that no longer exist disappear.
// Normalize is idempotent and safe to call on every save.
func Normalize(s *State) {
	if s.Blocks == nil {
		s.Blocks = make(map[string]*Block)
	}

	// Drop edges whose endpoints are gone.
	kept := s.Edges[:0]
	for _, e := range s.Edges {
		if _, ok := s.Blocks[e.Source]; !ok {
			continue
		}
		if _, ok := s.Blocks[e.Target]; !ok {
			continue
		}
		kept = append(kept, e)
	}
	s.Edges = kept
	if s.Edges == nil {
		s.Edges = []Edge{}
	}

	// Detach children whose parent block was deleted.
	for _, b := range s.Blocks {
		parent := b.ParentID()
		if parent == "" {
			continue
		}
		if _, ok := s.Blocks[parent]; !ok {
			delete(b.Data, "parentId")
			delete(b.Data, "extent")
		}
	}

	s.Loops = BuildLoops(s)
	s.Parallels = BuildParallels(s)
}
