package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"teamflow/internal/authz"
	"teamflow/internal/models"
	"teamflow/internal/pdf"
	"teamflow/internal/repositories"
)

// ProjectService defines project operations. Every call is scoped to the
// acting user; only a project's owner can see or change it.
type ProjectService interface {
	List(ctx context.Context, actorID string) ([]models.Project, error)
	ListWithStats(ctx context.Context, actorID string) ([]models.ProjectWithStats, error)
	GetByID(ctx context.Context, id, actorID string) (*models.Project, error)
	Create(ctx context.Context, input models.ProjectInput, actorID string) (*models.Project, error)
	Update(ctx context.Context, id string, patch models.ProjectPatch, actorID string) (*models.Project, error)
	Delete(ctx context.Context, id, actorID string) error
	Report(ctx context.Context, id, actorID string) ([]byte, error)
}

// ReportRenderer turns a project report into a document.
type ReportRenderer interface {
	RenderProject(report pdf.ProjectReport) ([]byte, error)
}

type projectService struct {
	projects repositories.ProjectRepository
	tasks    repositories.TaskRepository
	tags     TagCache
	reports  ReportRenderer

	now   func() time.Time
	newID func() string
}

// NewProjectService creates a new instance of ProjectService. tags and
// reports may be nil.
func NewProjectService(projects repositories.ProjectRepository, tasks repositories.TaskRepository, tags TagCache, reports ReportRenderer) ProjectService {
	return &projectService{
		projects: projects,
		tasks:    tasks,
		tags:     tags,
		reports:  reports,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *projectService) List(ctx context.Context, actorID string) (out []models.Project, err error) {
	ctx, span := startSpan(ctx, "projects.List", actorID)
	defer func() { endSpan(span, err) }()

	projects, err := s.projects.FindByOwner(ctx, actorID)
	if err != nil {
		return nil, storeErr("list projects", err)
	}
	span.SetAttributes(attribute.Int("teamflow.result_count", len(projects)))
	return projects, nil
}

func (s *projectService) ListWithStats(ctx context.Context, actorID string) (out []models.ProjectWithStats, err error) {
	ctx, span := startSpan(ctx, "projects.ListWithStats", actorID)
	defer func() { endSpan(span, err) }()

	projects, err := s.projects.FindByOwner(ctx, actorID)
	if err != nil {
		return nil, storeErr("list projects", err)
	}
	counts, err := s.tasks.CountByStatus(ctx, actorID)
	if err != nil {
		return nil, storeErr("count tasks", err)
	}

	now := s.now()
	out = make([]models.ProjectWithStats, 0, len(projects))
	for _, p := range projects {
		out = append(out, withStats(p, counts[p.ID], now))
	}
	span.SetAttributes(attribute.Int("teamflow.result_count", len(out)))
	return out, nil
}

func (s *projectService) GetByID(ctx context.Context, id, actorID string) (p *models.Project, err error) {
	ctx, span := startSpan(ctx, "projects.GetByID", actorID)
	defer func() { endSpan(span, err) }()

	return s.loadOwned(ctx, id, actorID)
}

func (s *projectService) Create(ctx context.Context, input models.ProjectInput, actorID string) (p *models.Project, err error) {
	ctx, span := startSpan(ctx, "projects.Create", actorID)
	defer func() { endSpan(span, err) }()

	if actorID == "" {
		return nil, ErrUnauthorized
	}
	if err := validateProjectInput(input); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	color := input.Color
	if color == "" {
		color = models.DefaultProjectColor
	}
	now := timestamp(s.now)
	p = &models.Project{
		ID:          s.newID(),
		Name:        input.Name,
		Description: input.Description,
		Color:       color,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		OwnerID:     actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.projects.Store(ctx, p); err != nil {
		return nil, storeErr("store project", err)
	}
	return p, nil
}

func (s *projectService) Update(ctx context.Context, id string, patch models.ProjectPatch, actorID string) (p *models.Project, err error) {
	ctx, span := startSpan(ctx, "projects.Update", actorID)
	defer func() { endSpan(span, err) }()

	errs := fieldErrors{}
	if patch.Name != nil {
		validateProjectName(errs, *patch.Name)
	}
	if patch.Description != nil {
		validateProjectDescription(errs, *patch.Description)
	}
	if patch.Color != nil {
		validateColor(errs, *patch.Color)
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	p, err = s.loadOwned(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Color != nil {
		p.Color = *patch.Color
	}
	switch {
	case patch.ClearStartDate:
		p.StartDate = nil
	case patch.StartDate != nil:
		p.StartDate = patch.StartDate
	}
	switch {
	case patch.ClearEndDate:
		p.EndDate = nil
	case patch.EndDate != nil:
		p.EndDate = patch.EndDate
	}
	errs = fieldErrors{}
	validateDateRange(errs, p.StartDate, p.EndDate)
	if err := errs.err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.UpdatedAt = timestamp(s.now)
	if err := s.projects.Update(ctx, p, patch.ExpectedUpdatedAt); err != nil {
		return nil, storeErr("update project", err)
	}
	return p, nil
}

func (s *projectService) Delete(ctx context.Context, id, actorID string) (err error) {
	ctx, span := startSpan(ctx, "projects.Delete", actorID)
	defer func() { endSpan(span, err) }()

	if _, err := s.loadOwned(ctx, id, actorID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, id); err != nil {
		return storeErr("delete project", err)
	}
	if s.tags != nil {
		s.tags.Evict(ctx, actorID)
	}
	return nil
}

func (s *projectService) Report(ctx context.Context, id, actorID string) (doc []byte, err error) {
	ctx, span := startSpan(ctx, "projects.Report", actorID)
	defer func() { endSpan(span, err) }()

	if s.reports == nil {
		return nil, ErrReportsDisabled
	}
	p, err := s.loadOwned(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.FindAll(ctx, models.TaskPredicate{OwnerID: actorID, ProjectIDs: []string{p.ID}})
	if err != nil {
		return nil, storeErr("list project tasks", err)
	}

	var stats models.TaskStats
	for _, t := range tasks {
		stats.Add(t.Status, 1)
	}
	now := s.now()
	return s.reports.RenderProject(pdf.ProjectReport{
		Project:     withStats(*p, stats, now),
		Tasks:       tasks,
		GeneratedAt: now,
	})
}

// loadOwned fetches a project and checks ownership. A missing project is
// reported as ErrNotFound before ownership is considered.
func (s *projectService) loadOwned(ctx context.Context, id, actorID string) (*models.Project, error) {
	p, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("find project", err)
	}
	if !authz.AuthorizeProject(p, actorID).Allowed() {
		return nil, ErrForbidden
	}
	return p, nil
}

func withStats(p models.Project, stats models.TaskStats, now time.Time) models.ProjectWithStats {
	total := stats.Total()
	progress := 0
	if total > 0 {
		progress = int(math.Round(float64(stats.Completed) / float64(total) * 100))
	}
	return models.ProjectWithStats{
		Project:      p,
		TaskStats:    stats,
		TotalTasks:   total,
		TaskProgress: progress,
		DateProgress: dateProgress(p.StartDate, p.EndDate, now),
	}
}

// dateProgress is the elapsed share of the project's schedule in percent.
func dateProgress(start, end *time.Time, now time.Time) int {
	if start == nil || end == nil {
		return 0
	}
	if now.Before(*start) {
		return 0
	}
	if now.After(*end) {
		return 100
	}
	total := end.Sub(*start)
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(now.Sub(*start)) / float64(total) * 100))
}
