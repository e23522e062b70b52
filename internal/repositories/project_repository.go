package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"teamflow/internal/models"
)

type ProjectRepository interface {
	Store(ctx context.Context, p *models.Project) error
	FindByID(ctx context.Context, id string) (*models.Project, error)
	FindByOwner(ctx context.Context, ownerID string) ([]models.Project, error)
	// Update writes p. When expectedUpdatedAt is set the row is only written
	// if its updated_at still matches, otherwise ErrConflict is returned.
	Update(ctx context.Context, p *models.Project, expectedUpdatedAt *time.Time) error
	// Delete removes the project and all of its tasks in one transaction.
	Delete(ctx context.Context, id string) error
}

type projectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) ProjectRepository {
	return &projectRepository{db: db}
}

const projectColumns = `id, name, description, color, start_date, end_date, owner_id, created_at, updated_at`

func scanProject(row interface{ Scan(...interface{}) error }, p *models.Project) error {
	return row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Color, &p.StartDate, &p.EndDate,
		&p.OwnerID, &p.CreatedAt, &p.UpdatedAt,
	)
}

func (r *projectRepository) Store(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.Color, p.StartDate, p.EndDate,
		p.OwnerID, p.CreatedAt, p.UpdatedAt,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("project owner %q: %w", p.OwnerID, ErrNotFound)
	}
	return err
}

func (r *projectRepository) FindByID(ctx context.Context, id string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	p := &models.Project{}
	if err := scanProject(r.db.QueryRowContext(ctx, query, id), p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find project: %w", err)
	}
	return p, nil
}

func (r *projectRepository) FindByOwner(ctx context.Context, ownerID string) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects
		WHERE owner_id = $1
		ORDER BY created_at DESC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *projectRepository) Update(ctx context.Context, p *models.Project, expectedUpdatedAt *time.Time) error {
	query := `
		UPDATE projects SET
			name=$1, description=$2, color=$3, start_date=$4, end_date=$5, updated_at=$6
		WHERE id=$7 AND ($8::timestamptz IS NULL OR updated_at = $8)`
	res, err := r.db.ExecContext(ctx, query,
		p.Name, p.Description, p.Color, p.StartDate, p.EndDate, p.UpdatedAt,
		p.ID, expectedUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return checkWritten(res, expectedUpdatedAt != nil, func() error {
		_, err := r.FindByID(ctx, p.ID)
		return err
	})
}

func (r *projectRepository) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = $1`, id); err != nil {
			return fmt.Errorf("delete project tasks: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
