package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"teamflow/internal/models"
	"teamflow/internal/repositories"
)

// memStore is an in-memory stand-in for the PostgreSQL repositories. It
// follows the same contracts: joined task reads, cascading project delete,
// conditional updates.
type memStore struct {
	mu       sync.Mutex
	users    map[string]models.User
	projects map[string]models.Project
	tasks    map[string]models.Task

	failFindAll error
	// afterFindAll runs once the snapshot is taken, outside the lock.
	afterFindAll func()
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]models.User{},
		projects: map[string]models.Project{},
		tasks:    map[string]models.Task{},
	}
}

func (m *memStore) addUser(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = models.User{ID: id, Name: name, Email: id + "@example.com"}
}

func (m *memStore) taskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

type memUsers struct{ *memStore }
type memProjects struct{ *memStore }
type memTasks struct{ *memStore }

func (m memUsers) Store(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repositories.ErrDuplicate
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &u, nil
}

func (m memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m memProjects) Store(ctx context.Context, p *models.Project) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[p.OwnerID]; !ok {
		return repositories.ErrNotFound
	}
	m.projects[p.ID] = *p
	return nil
}

func (m memProjects) FindByID(ctx context.Context, id string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &p, nil
}

func (m memProjects) FindByOwner(ctx context.Context, ownerID string) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Project{}
	for _, p := range m.projects {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m memProjects) Update(ctx context.Context, p *models.Project, expected *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.projects[p.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if expected != nil && !cur.UpdatedAt.Equal(*expected) {
		return repositories.ErrConflict
	}
	m.projects[p.ID] = *p
	return nil
}

func (m memProjects) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return repositories.ErrNotFound
	}
	for tid, t := range m.tasks {
		if t.ProjectID == id {
			delete(m.tasks, tid)
		}
	}
	delete(m.projects, id)
	return nil
}

// joined must be called with mu held.
func (m memTasks) joined(t models.Task) models.Task {
	t.Tags = append([]string{}, t.Tags...)
	if p, ok := m.projects[t.ProjectID]; ok {
		t.ProjectOwnerID = p.OwnerID
		t.Project = &models.ProjectSummary{ID: p.ID, Name: p.Name, Color: p.Color}
	}
	if u, ok := m.users[t.AssigneeID]; ok {
		t.Assignee = &models.UserSummary{ID: u.ID, Name: u.Name, Image: u.Image}
	}
	return t
}

func (m memTasks) Store(ctx context.Context, t *models.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[t.ProjectID]; !ok {
		return repositories.ErrNotFound
	}
	if _, ok := m.users[t.AssigneeID]; !ok {
		return repositories.ErrNotFound
	}
	stored := *t
	stored.Project, stored.Assignee, stored.ProjectOwnerID = nil, nil, ""
	stored.Tags = append([]string{}, t.Tags...)
	m.tasks[t.ID] = stored
	return nil
}

func (m memTasks) FindByID(ctx context.Context, id string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	j := m.joined(t)
	return &j, nil
}

func (m memTasks) FindAll(ctx context.Context, pred models.TaskPredicate) ([]models.Task, error) {
	if m.failFindAll != nil {
		return nil, m.failFindAll
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Task{}
	for _, t := range m.tasks {
		j := m.joined(t)
		if pred.Matches(&j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if hook := m.afterFindAll; hook != nil {
		m.afterFindAll = nil
		m.mu.Unlock()
		hook()
		m.mu.Lock()
	}
	return out, nil
}

func (m memTasks) Update(ctx context.Context, t *models.Task, expected *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[t.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if expected != nil && !cur.UpdatedAt.Equal(*expected) {
		return repositories.ErrConflict
	}
	if _, ok := m.projects[t.ProjectID]; !ok {
		return repositories.ErrNotFound
	}
	stored := *t
	stored.Project, stored.Assignee, stored.ProjectOwnerID = nil, nil, ""
	stored.Tags = append([]string{}, t.Tags...)
	m.tasks[t.ID] = stored
	return nil
}

func (m memTasks) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m memTasks) CountByStatus(ctx context.Context, ownerID string) (map[string]models.TaskStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]models.TaskStats{}
	for _, t := range m.tasks {
		p, ok := m.projects[t.ProjectID]
		if !ok || p.OwnerID != ownerID {
			continue
		}
		s := out[t.ProjectID]
		s.Add(t.Status, 1)
		out[t.ProjectID] = s
	}
	return out, nil
}

// stepClock hands out strictly increasing timestamps.
type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newStepClock() *stepClock {
	return &stepClock{cur: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

// sequentialIDs returns an id generator producing prefix-001, prefix-002, ...
func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingNotifier) TaskAssigned(ctx context.Context, t *models.Task, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, t.ID+"->"+u.ID)
	return r.err
}

type mapTagCache struct {
	mu      sync.Mutex
	entries map[string][]string
	gens    map[string]uint64
	gets    int
	hits    int
	skipped int
}

func newMapTagCache() *mapTagCache {
	return &mapTagCache{entries: map[string][]string{}, gens: map[string]uint64{}}
}

func (c *mapTagCache) Get(ctx context.Context, ownerID string) ([]string, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	tags, ok := c.entries[ownerID]
	if ok {
		c.hits++
	}
	return tags, c.gens[ownerID], ok
}

func (c *mapTagCache) Set(ctx context.Context, ownerID string, gen uint64, tags []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[ownerID] != gen {
		c.skipped++
		return
	}
	c.entries[ownerID] = tags
}

func (c *mapTagCache) Evict(ctx context.Context, ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[ownerID]++
	delete(c.entries, ownerID)
}

type fixture struct {
	store    *memStore
	clock    *stepClock
	tags     *mapTagCache
	notifier *recordingNotifier
	projects *projectService
	tasks    *taskService
}

func newFixture() *fixture {
	store := newMemStore()
	store.addUser("u1", "Taro")
	store.addUser("u2", "Hanako")
	store.addUser("u3", "Jiro")

	clock := newStepClock()
	tags := newMapTagCache()
	notifier := &recordingNotifier{}

	ps := NewProjectService(memProjects{store}, memTasks{store}, tags, nil).(*projectService)
	ps.now = clock.Now
	ps.newID = sequentialIDs("p")

	ts := NewTaskService(memTasks{store}, memProjects{store}, memUsers{store}, tags, notifier).(*taskService)
	ts.now = clock.Now
	ts.newID = sequentialIDs("t")

	return &fixture{store: store, clock: clock, tags: tags, notifier: notifier, projects: ps, tasks: ts}
}
