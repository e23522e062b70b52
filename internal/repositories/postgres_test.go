package repositories

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"teamflow/internal/models"
)

// openTestDB connects to DATABASE_URL and applies the schema. Tests using it
// are skipped when the variable is unset.
func openTestDB(t *testing.T) *pgFixture {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("schema: %v", err)
	}

	f := &pgFixture{
		users:    NewUserRepository(db),
		projects: NewProjectRepository(db),
		tasks:    NewTaskRepository(db),
		run:      uuid.NewString()[:8],
		now:      time.Now().UTC().Truncate(time.Microsecond),
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = db.ExecContext(ctx, `DELETE FROM projects WHERE owner_id LIKE $1`, f.run+"-%")
		_, _ = db.ExecContext(ctx, `DELETE FROM users WHERE id LIKE $1`, f.run+"-%")
	})
	return f
}

type pgFixture struct {
	users    UserRepository
	projects ProjectRepository
	tasks    TaskRepository
	run      string
	now      time.Time
}

func (f *pgFixture) id(kind string) string {
	return f.run + "-" + kind + "-" + uuid.NewString()[:8]
}

func (f *pgFixture) user(t *testing.T) string {
	t.Helper()
	id := f.id("u")
	u := &models.User{ID: id, Name: "User " + id, Email: id + "@teamflow.test", CreatedAt: f.now}
	if err := f.users.Store(context.Background(), u); err != nil {
		t.Fatalf("store user: %v", err)
	}
	return id
}

func (f *pgFixture) project(t *testing.T, owner string) string {
	t.Helper()
	id := f.id("p")
	p := &models.Project{ID: id, Name: "Project", Color: models.DefaultProjectColor, OwnerID: owner, CreatedAt: f.now, UpdatedAt: f.now}
	if err := f.projects.Store(context.Background(), p); err != nil {
		t.Fatalf("store project: %v", err)
	}
	return id
}

func (f *pgFixture) task(t *testing.T, projectID, assignee, title, description string, tags ...string) *models.Task {
	t.Helper()
	f.now = f.now.Add(time.Second)
	task := &models.Task{
		ID: f.id("t"), Title: title, Description: description,
		Status: models.StatusNotStarted, Priority: models.PriorityMedium,
		ProjectID: projectID, AssigneeID: assignee, Tags: tags,
		CreatedAt: f.now, UpdatedAt: f.now,
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}
	if err := f.tasks.Store(context.Background(), task); err != nil {
		t.Fatalf("store task: %v", err)
	}
	return task
}

func taskIDs(tasks []models.Task) []string {
	out := []string{}
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestPostgresTaskFilters(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()
	owner, other := f.user(t), f.user(t)
	p := f.project(t, owner)
	foreign := f.project(t, other)

	a := f.task(t, p, owner, "Fix login", "", "backend", "auth")
	b := f.task(t, p, other, "100% coverage", "write_tests", "qa")
	c := f.task(t, p, owner, "Landing page", "hero section", "frontend")
	f.task(t, foreign, owner, "Fix login elsewhere", "", "backend")

	cases := []struct {
		name string
		pred models.TaskPredicate
		want []string
	}{
		{"owner scope, newest first", models.TaskPredicate{OwnerID: owner}, []string{c.ID, b.ID, a.ID}},
		{"tag overlap", models.TaskPredicate{OwnerID: owner, Tags: []string{"auth", "frontend"}}, []string{c.ID, a.ID}},
		{"search is case-insensitive", models.TaskPredicate{OwnerID: owner, Search: "fix LOGIN"}, []string{a.ID}},
		{"search matches description", models.TaskPredicate{OwnerID: owner, Search: "HERO"}, []string{c.ID}},
		{"percent is literal", models.TaskPredicate{OwnerID: owner, Search: "100%"}, []string{b.ID}},
		{"underscore is literal", models.TaskPredicate{OwnerID: owner, Search: "e_t"}, []string{b.ID}},
		{"assignee within owner scope", models.TaskPredicate{OwnerID: owner, AssigneeIDs: []string{other}}, []string{b.ID}},
		{"foreign owner sees only own", models.TaskPredicate{OwnerID: other}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.tasks.FindAll(ctx, tc.pred)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if !reflect.DeepEqual(taskIDs(got), tc.want) {
				t.Fatalf("got %v, want %v", taskIDs(got), tc.want)
			}
		})
	}

	got, err := f.tasks.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if got.ProjectOwnerID != owner || !reflect.DeepEqual(got.Tags, []string{"backend", "auth"}) {
		t.Fatalf("joined read mismatch: %+v", got)
	}
}

func TestPostgresConditionalTaskUpdate(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()
	owner := f.user(t)
	p := f.project(t, owner)
	task := f.task(t, p, owner, "Draft", "")

	stale := task.UpdatedAt
	task.Title = "First"
	task.UpdatedAt = stale.Add(time.Second)
	if err := f.tasks.Update(ctx, task, &stale); err != nil {
		t.Fatalf("conditional update with current token: %v", err)
	}

	task.Title = "Second"
	task.UpdatedAt = stale.Add(2 * time.Second)
	if err := f.tasks.Update(ctx, task, &stale); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, err := f.tasks.FindByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Title != "First" {
		t.Fatalf("stale write applied: %q", got.Title)
	}

	missing := *task
	missing.ID = f.id("t")
	if err := f.tasks.Update(ctx, &missing, &stale); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing row, got %v", err)
	}
}

func TestPostgresProjectDeleteCascades(t *testing.T) {
	f := openTestDB(t)
	ctx := context.Background()
	owner := f.user(t)
	p := f.project(t, owner)
	task := f.task(t, p, owner, "Child", "")

	if err := f.projects.Delete(ctx, p); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.tasks.FindByID(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("task should be gone, got %v", err)
	}
	if err := f.projects.Delete(ctx, p); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
}
