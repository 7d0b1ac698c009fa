package workflow

import (
	"fmt"
	"strings"
)

// ValidationError aggregates everything wrong with a state so the editor can
// surface all problems in a single round trip.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid workflow state: %s", strings.Join(e.Problems, "; "))
}

// Validate checks structural integrity of a workflow state. It returns a
// *ValidationError listing every problem found, or nil.
func Validate(s *State) error {
	var problems []string

	if s == nil || s.Blocks == nil {
		return &ValidationError{Problems: []string{"state has no blocks"}}
	}

	for id, b := range s.Blocks {
		if b == nil {
			problems = append(problems, fmt.Sprintf("block %s is null", id))
			continue
		}
		if b.ID != "" && b.ID != id {
			problems = append(problems, fmt.Sprintf("block key %s does not match block id %s", id, b.ID))
		}
		if b.Type == "" {
			problems = append(problems, fmt.Sprintf("block %s has no type", id))
		}

		parent := b.ParentID()
		if parent == "" {
			continue
		}
		pb, ok := s.Blocks[parent]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("block %s references missing parent %s", id, parent))
		case !pb.IsContainer():
			problems = append(problems, fmt.Sprintf("block %s has non-container parent %s", id, parent))
		case pb.Type == b.Type && b.IsContainer():
			// A loop directly inside a loop (or parallel inside parallel)
			// is rejected; mixed nesting is allowed.
			problems = append(problems, fmt.Sprintf("%s %s cannot be nested inside another %s", b.Type, id, pb.Type))
		}
	}

	seen := make(map[string]bool)
	for _, e := range s.Edges {
		if seen[e.ID] {
			problems = append(problems, fmt.Sprintf("duplicate edge id %s", e.ID))
		}
		seen[e.ID] = true

		if _, ok := s.Blocks[e.Source]; !ok {
			problems = append(problems, fmt.Sprintf("edge %s references unknown source %s", e.ID, e.Source))
		}
		if _, ok := s.Blocks[e.Target]; !ok {
			problems = append(problems, fmt.Sprintf("edge %s references unknown target %s", e.ID, e.Target))
		}
		if e.Source == e.Target {
			problems = append(problems, fmt.Sprintf("edge %s connects block %s to itself", e.ID, e.Source))
		}
	}

	if len(s.Blocks) > 0 && countStarters(s) == 0 {
		problems = append(problems, "workflow has no starter or trigger block")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// countStarters counts top-level blocks that can begin execution.
func countStarters(s *State) int {
	n := 0
	for _, b := range s.Blocks {
		if b != nil && b.IsStarter() && b.ParentID() == "" {
			n++
		}
	}
	return n
}
