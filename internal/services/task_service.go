// internal/services/task_service.go
package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"teamflow/internal/authz"
	"teamflow/internal/models"
	"teamflow/internal/repositories"
)

// TaskService defines the interface for task-related business logic.
// Access to a task follows the owner of its project.
type TaskService interface {
	List(ctx context.Context, actorID string, filter models.TaskFilter) ([]models.Task, error)
	GetByID(ctx context.Context, id, actorID string) (*models.Task, error)
	Create(ctx context.Context, input models.TaskInput, actorID string) (*models.Task, error)
	Update(ctx context.Context, id string, patch models.TaskPatch, actorID string) (*models.Task, error)
	Delete(ctx context.Context, id, actorID string) error
	GetAllTags(ctx context.Context, actorID string) ([]string, error)
}

// TagCache keeps the per-owner tag list between writes. Get reports the
// owner's generation; Set must be a no-op when an Evict happened since.
type TagCache interface {
	Get(ctx context.Context, ownerID string) ([]string, uint64, bool)
	Set(ctx context.Context, ownerID string, gen uint64, tags []string)
	Evict(ctx context.Context, ownerID string)
}

type taskService struct {
	tasks    repositories.TaskRepository
	projects repositories.ProjectRepository
	users    repositories.UserRepository
	tags     TagCache
	notifier Notifier

	now   func() time.Time
	newID func() string
}

// NewTaskService creates a new instance of TaskService. tags and notifier
// may be nil.
func NewTaskService(
	tasks repositories.TaskRepository,
	projects repositories.ProjectRepository,
	users repositories.UserRepository,
	tags TagCache,
	notifier Notifier,
) TaskService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &taskService{
		tasks:    tasks,
		projects: projects,
		users:    users,
		tags:     tags,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *taskService) List(ctx context.Context, actorID string, filter models.TaskFilter) (out []models.Task, err error) {
	ctx, span := startSpan(ctx, "tasks.List", actorID)
	defer func() { endSpan(span, err) }()

	if actorID == "" {
		return nil, ErrUnauthorized
	}
	tasks, err := s.tasks.FindAll(ctx, ComposeTaskPredicate(actorID, filter))
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	span.SetAttributes(attribute.Int("teamflow.result_count", len(tasks)))
	return tasks, nil
}

func (s *taskService) GetByID(ctx context.Context, id, actorID string) (t *models.Task, err error) {
	ctx, span := startSpan(ctx, "tasks.GetByID", actorID)
	defer func() { endSpan(span, err) }()

	return s.loadOwned(ctx, id, actorID)
}

func (s *taskService) Create(ctx context.Context, input models.TaskInput, actorID string) (t *models.Task, err error) {
	ctx, span := startSpan(ctx, "tasks.Create", actorID)
	defer func() { endSpan(span, err) }()

	if err := validateTaskInput(input); err != nil {
		return nil, err
	}
	project, err := s.loadOwnedProject(ctx, input.ProjectID, actorID)
	if err != nil {
		return nil, err
	}
	assignee, err := s.users.FindByID(ctx, input.AssigneeID)
	if err != nil {
		return nil, storeErr("find assignee", err)
	}

	if input.Status == "" {
		input.Status = models.StatusNotStarted
	}
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	progress := 0
	if input.Progress != nil {
		progress = *input.Progress
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := timestamp(s.now)
	t = &models.Task{
		ID:             s.newID(),
		Title:          input.Title,
		Description:    input.Description,
		Status:         input.Status,
		Priority:       input.Priority,
		ProjectID:      project.ID,
		AssigneeID:     assignee.ID,
		DueDate:        input.DueDate,
		EstimatedHours: input.EstimatedHours,
		Progress:       progress,
		Tags:           normalizeTags(input.Tags),
		CreatedAt:      now,
		UpdatedAt:      now,
		ProjectOwnerID: project.OwnerID,
	}
	if err := s.tasks.Store(ctx, t); err != nil {
		return nil, storeErr("store task", err)
	}
	t.Project = projectSummary(project)
	t.Assignee = userSummary(assignee)

	s.evictTags(ctx, actorID)
	s.notify(ctx, t, assignee)
	return t, nil
}

func (s *taskService) Update(ctx context.Context, id string, patch models.TaskPatch, actorID string) (t *models.Task, err error) {
	ctx, span := startSpan(ctx, "tasks.Update", actorID)
	defer func() { endSpan(span, err) }()

	if err := validateTaskPatch(patch); err != nil {
		return nil, err
	}
	current, err := s.loadOwned(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	updated := *current

	// Moving a task requires owning the destination as well.
	if patch.ProjectID != nil && *patch.ProjectID != current.ProjectID {
		dest, err := s.loadOwnedProject(ctx, *patch.ProjectID, actorID)
		if err != nil {
			return nil, err
		}
		updated.ProjectID = dest.ID
		updated.ProjectOwnerID = dest.OwnerID
		updated.Project = projectSummary(dest)
	}

	var newAssignee *models.User
	if patch.AssigneeID != nil && *patch.AssigneeID != current.AssigneeID {
		newAssignee, err = s.users.FindByID(ctx, *patch.AssigneeID)
		if err != nil {
			return nil, storeErr("find assignee", err)
		}
		updated.AssigneeID = newAssignee.ID
		updated.Assignee = userSummary(newAssignee)
	}

	if patch.Title != nil {
		updated.Title = *patch.Title
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.Status != nil {
		updated.Status = *patch.Status
	}
	if patch.Priority != nil {
		updated.Priority = *patch.Priority
	}
	switch {
	case patch.ClearDueDate:
		updated.DueDate = nil
	case patch.DueDate != nil:
		updated.DueDate = patch.DueDate
	}
	switch {
	case patch.ClearEstimatedHours:
		updated.EstimatedHours = nil
	case patch.EstimatedHours != nil:
		updated.EstimatedHours = patch.EstimatedHours
	}
	if patch.Progress != nil {
		updated.Progress = *patch.Progress
	}
	if patch.Tags != nil {
		updated.Tags = normalizeTags(*patch.Tags)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	updated.UpdatedAt = timestamp(s.now)
	if err := s.tasks.Update(ctx, &updated, patch.ExpectedUpdatedAt); err != nil {
		return nil, storeErr("update task", err)
	}

	s.evictTags(ctx, actorID)
	if newAssignee != nil {
		s.notify(ctx, &updated, newAssignee)
	}
	return &updated, nil
}

func (s *taskService) Delete(ctx context.Context, id, actorID string) (err error) {
	ctx, span := startSpan(ctx, "tasks.Delete", actorID)
	defer func() { endSpan(span, err) }()

	if _, err := s.loadOwned(ctx, id, actorID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return storeErr("delete task", err)
	}
	s.evictTags(ctx, actorID)
	return nil
}

// GetAllTags returns every tag used in the actor's projects, sorted.
func (s *taskService) GetAllTags(ctx context.Context, actorID string) (tags []string, err error) {
	ctx, span := startSpan(ctx, "tasks.GetAllTags", actorID)
	defer func() { endSpan(span, err) }()

	if actorID == "" {
		return nil, ErrUnauthorized
	}
	var gen uint64
	if s.tags != nil {
		cached, g, ok := s.tags.Get(ctx, actorID)
		if ok {
			span.SetAttributes(attribute.Bool("teamflow.cache_hit", true))
			return cached, nil
		}
		gen = g
	}

	tasks, err := s.tasks.FindAll(ctx, models.TaskPredicate{OwnerID: actorID})
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	seen := map[string]struct{}{}
	tags = []string{}
	for _, t := range tasks {
		for _, tag := range t.Tags {
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)

	if s.tags != nil {
		s.tags.Set(ctx, actorID, gen, tags)
	}
	return tags, nil
}

// loadOwned fetches a task and checks that the actor owns its project.
// A missing task is reported as ErrNotFound before ownership is considered.
func (s *taskService) loadOwned(ctx context.Context, id, actorID string) (*models.Task, error) {
	t, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("find task", err)
	}
	if !authz.AuthorizeTask(t, actorID).Allowed() {
		return nil, ErrForbidden
	}
	return t, nil
}

func (s *taskService) loadOwnedProject(ctx context.Context, id, actorID string) (*models.Project, error) {
	p, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("find project", err)
	}
	if !authz.AuthorizeProject(p, actorID).Allowed() {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *taskService) evictTags(ctx context.Context, ownerID string) {
	if s.tags != nil {
		s.tags.Evict(ctx, ownerID)
	}
}

// notify runs after the write has succeeded; delivery problems never fail
// the request.
func (s *taskService) notify(ctx context.Context, t *models.Task, assignee *models.User) {
	if err := s.notifier.TaskAssigned(ctx, t, assignee); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"task":     t.ID,
			"assignee": assignee.ID,
		}).Warn("task.notify failed")
	}
}

func projectSummary(p *models.Project) *models.ProjectSummary {
	return &models.ProjectSummary{ID: p.ID, Name: p.Name, Color: p.Color}
}

func userSummary(u *models.User) *models.UserSummary {
	return &models.UserSummary{ID: u.ID, Name: u.Name, Image: u.Image}
}
