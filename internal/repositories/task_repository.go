package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"teamflow/internal/models"
)

type TaskRepository interface {
	Store(ctx context.Context, task *models.Task) error
	// FindByID returns the task joined with its project and assignee.
	FindByID(ctx context.Context, id string) (*models.Task, error)
	FindAll(ctx context.Context, pred models.TaskPredicate) ([]models.Task, error)
	// Update writes task. When expectedUpdatedAt is set the row is only
	// written if its updated_at still matches, otherwise ErrConflict.
	Update(ctx context.Context, task *models.Task, expectedUpdatedAt *time.Time) error
	Delete(ctx context.Context, id string) error
	// CountByStatus returns per-project status counts over the owner's projects.
	CountByStatus(ctx context.Context, ownerID string) (map[string]models.TaskStats, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

func scanTask(row interface{ Scan(...interface{}) error }) (models.Task, error) {
	var (
		t        models.Task
		project  models.ProjectSummary
		assignee models.UserSummary
	)
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.ProjectID, &t.AssigneeID,
		&t.DueDate, &t.EstimatedHours, &t.Progress, pq.Array(&t.Tags), &t.CreatedAt, &t.UpdatedAt,
		&project.Name, &project.Color, &t.ProjectOwnerID, &assignee.Name, &assignee.Image,
	)
	if err != nil {
		return t, err
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	project.ID = t.ProjectID
	assignee.ID = t.AssigneeID
	t.Project = &project
	t.Assignee = &assignee
	return t, nil
}

func (r *taskRepository) Store(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (
			id, title, description, status, priority, project_id, assignee_id,
			due_date, estimated_hours, progress, tags, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.Title, task.Description, task.Status, task.Priority, task.ProjectID, task.AssigneeID,
		task.DueDate, task.EstimatedHours, task.Progress, pq.StringArray(task.Tags), task.CreatedAt, task.UpdatedAt,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("task references: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("store task: %w", err)
	}
	return nil
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, taskSelect+"\nWHERE t.id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &t, nil
}

func (r *taskRepository) FindAll(ctx context.Context, pred models.TaskPredicate) ([]models.Task, error) {
	query, args := buildTaskListQuery(pred)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task, expectedUpdatedAt *time.Time) error {
	query := `
		UPDATE tasks SET
			title=$1, description=$2, status=$3, priority=$4, project_id=$5, assignee_id=$6,
			due_date=$7, estimated_hours=$8, progress=$9, tags=$10, updated_at=$11
		WHERE id=$12 AND ($13::timestamptz IS NULL OR updated_at = $13)`
	res, err := r.db.ExecContext(ctx, query,
		task.Title, task.Description, task.Status, task.Priority, task.ProjectID, task.AssigneeID,
		task.DueDate, task.EstimatedHours, task.Progress, pq.StringArray(task.Tags), task.UpdatedAt,
		task.ID, expectedUpdatedAt,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("task references: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return checkWritten(res, expectedUpdatedAt != nil, func() error {
		_, err := r.FindByID(ctx, task.ID)
		return err
	})
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *taskRepository) CountByStatus(ctx context.Context, ownerID string) (map[string]models.TaskStats, error) {
	q := `
SELECT t.project_id, t.status, COUNT(*)
FROM tasks t
JOIN projects p ON p.id = t.project_id
WHERE p.owner_id = $1
GROUP BY t.project_id, t.status`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	out := map[string]models.TaskStats{}
	for rows.Next() {
		var (
			projectID string
			status    models.TaskStatus
			n         int
		)
		if err := rows.Scan(&projectID, &status, &n); err != nil {
			return nil, err
		}
		stats := out[projectID]
		stats.Add(status, n)
		out[projectID] = stats
	}
	return out, rows.Err()
}
