// Package template implements the workflow template marketplace: publishing
// workflows as templates, browsing, starring, and instantiating copies.
package template

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/platerr"
	"github.com/randalmurphal/flowd/internal/workflow"
)

// Service manages the template marketplace.
type Service struct {
	db      *db.DB
	logger  *slog.Logger
	popular *popularCache
}

// NewService creates a template service.
func NewService(database *db.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:      database,
		logger:  logger.With("component", "template"),
		popular: newPopularCache(database, popularCacheTTL),
	}
}

// Publish snapshots a workflow's current graph as a marketplace template.
func (s *Service) Publish(workflowID, authorID, name, description, category string) (*db.Template, error) {
	wf, err := s.db.GetWorkflow(workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, platerr.ErrWorkflowNotFound(workflowID)
	}
	if name == "" {
		name = wf.Name
	}

	state := wf.State
	workflow.Normalize(state)
	if err := workflow.Validate(state); err != nil {
		return nil, platerr.ErrStateInvalid(err)
	}

	tpl := &db.Template{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		WorkspaceID: wf.WorkspaceID,
		AuthorID:    authorID,
		Name:        name,
		Description: description,
		Category:    category,
		State:       state,
	}
	if err := s.db.SaveTemplate(tpl); err != nil {
		return nil, err
	}
	s.popular.Invalidate()
	return tpl, nil
}

// Get loads a template and counts the view.
func (s *Service) Get(id string) (*db.Template, error) {
	tpl, err := s.db.GetTemplate(id)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, platerr.ErrTemplateNotFound(id)
	}
	if err := s.db.IncrementTemplateViews(id); err != nil {
		s.logger.Warn("increment views failed", "template", id, "error", err)
	}
	tpl.Views++
	return tpl, nil
}

// List browses templates, optionally filtered by category and search text.
func (s *Service) List(category, search string) ([]*db.Template, error) {
	return s.db.ListTemplates(category, search)
}

// Popular returns the most starred templates from a short-lived cache.
func (s *Service) Popular() ([]*db.Template, error) {
	return s.popular.Templates()
}

// Star records a user's star. Starring twice is an error.
func (s *Service) Star(templateID, userID string) error {
	tpl, err := s.db.GetTemplate(templateID)
	if err != nil {
		return err
	}
	if tpl == nil {
		return platerr.ErrTemplateNotFound(templateID)
	}
	added, err := s.db.StarTemplate(templateID, userID)
	if err != nil {
		return err
	}
	if !added {
		return platerr.ErrAlreadyStarred(templateID)
	}
	s.popular.Invalidate()
	return nil
}

// Unstar removes a user's star. Removing a star that was never set is a
// no-op.
func (s *Service) Unstar(templateID, userID string) error {
	tpl, err := s.db.GetTemplate(templateID)
	if err != nil {
		return err
	}
	if tpl == nil {
		return platerr.ErrTemplateNotFound(templateID)
	}
	if err := s.db.UnstarTemplate(templateID, userID); err != nil {
		return err
	}
	s.popular.Invalidate()
	return nil
}

// Use instantiates a template into a workspace as a fresh workflow. Every
// block and edge gets a new ID so two instances never collide, and parent
// references inside loop and parallel containers are remapped to match.
func (s *Service) Use(templateID, workspaceID, userID, name string) (*db.Workflow, error) {
	tpl, err := s.db.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, platerr.ErrTemplateNotFound(templateID)
	}
	if name == "" {
		name = tpl.Name
	}

	state := remapIDs(tpl.State)
	wf := &db.Workflow{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Name:        name,
		Description: tpl.Description,
		State:       state,
	}
	if err := s.db.SaveWorkflow(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// Delete removes a template. Only the author may delete it.
func (s *Service) Delete(templateID, userID string) error {
	tpl, err := s.db.GetTemplate(templateID)
	if err != nil {
		return err
	}
	if tpl == nil {
		return platerr.ErrTemplateNotFound(templateID)
	}
	if tpl.AuthorID != userID {
		return platerr.ErrForbidden("delete template")
	}
	if err := s.db.DeleteTemplate(templateID); err != nil {
		return err
	}
	s.popular.Invalidate()
	return nil
}

// remapIDs deep-copies a graph state with fresh block and edge IDs.
func remapIDs(src *workflow.State) *workflow.State {
	out := workflow.NewState()

	ids := make(map[string]string, len(src.Blocks))
	for oldID := range src.Blocks {
		ids[oldID] = uuid.New().String()
	}

	for oldID, b := range src.Blocks {
		nb := *b
		nb.ID = ids[oldID]
		if b.Data != nil {
			nb.Data = make(map[string]any, len(b.Data))
			for k, v := range b.Data {
				nb.Data[k] = v
			}
			if parent, ok := nb.Data["parentId"].(string); ok {
				if mapped, found := ids[parent]; found {
					nb.Data["parentId"] = mapped
				}
			}
		}
		if b.SubBlocks != nil {
			nb.SubBlocks = make(map[string]workflow.SubBlock, len(b.SubBlocks))
			for k, v := range b.SubBlocks {
				nb.SubBlocks[k] = v
			}
		}
		out.Blocks[nb.ID] = &nb
	}

	for _, e := range src.Edges {
		ne := e
		ne.ID = uuid.New().String()
		ne.Source = ids[e.Source]
		ne.Target = ids[e.Target]
		out.Edges = append(out.Edges, ne)
	}

	workflow.Normalize(out)
	return out
}
