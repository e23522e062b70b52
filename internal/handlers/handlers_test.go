package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"teamflow/internal/middleware"
	"teamflow/internal/models"
	"teamflow/internal/services"
)

type tokenStub struct{}

func (tokenStub) ParseToken(token string) (string, error) {
	if strings.HasPrefix(token, "user:") {
		return strings.TrimPrefix(token, "user:"), nil
	}
	return "", services.ErrUnauthorized
}

type projectStub struct {
	err       error
	lastPatch models.ProjectPatch
	lastInput models.ProjectInput
	withStats bool
	report    []byte
}

func (s *projectStub) List(ctx context.Context, actorID string) ([]models.Project, error) {
	return []models.Project{{ID: "p1", OwnerID: actorID}}, s.err
}

func (s *projectStub) ListWithStats(ctx context.Context, actorID string) ([]models.ProjectWithStats, error) {
	s.withStats = true
	return []models.ProjectWithStats{{Project: models.Project{ID: "p1"}, TotalTasks: 2}}, s.err
}

func (s *projectStub) GetByID(ctx context.Context, id, actorID string) (*models.Project, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Project{ID: id, OwnerID: actorID}, nil
}

func (s *projectStub) Create(ctx context.Context, in models.ProjectInput, actorID string) (*models.Project, error) {
	s.lastInput = in
	if s.err != nil {
		return nil, s.err
	}
	return &models.Project{ID: "p-new", Name: in.Name, OwnerID: actorID}, nil
}

func (s *projectStub) Update(ctx context.Context, id string, patch models.ProjectPatch, actorID string) (*models.Project, error) {
	s.lastPatch = patch
	if s.err != nil {
		return nil, s.err
	}
	return &models.Project{ID: id}, nil
}

func (s *projectStub) Delete(ctx context.Context, id, actorID string) error { return s.err }

func (s *projectStub) Report(ctx context.Context, id, actorID string) ([]byte, error) {
	return s.report, s.err
}

type taskStub struct {
	err        error
	lastActor  string
	lastFilter models.TaskFilter
	lastInput  models.TaskInput
	lastPatch  models.TaskPatch
}

func (s *taskStub) List(ctx context.Context, actorID string, f models.TaskFilter) ([]models.Task, error) {
	s.lastActor, s.lastFilter = actorID, f
	return []models.Task{}, s.err
}

func (s *taskStub) GetByID(ctx context.Context, id, actorID string) (*models.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Task{ID: id}, nil
}

func (s *taskStub) Create(ctx context.Context, in models.TaskInput, actorID string) (*models.Task, error) {
	s.lastInput = in
	if s.err != nil {
		return nil, s.err
	}
	return &models.Task{ID: "t-new", Title: in.Title, ProjectID: in.ProjectID, AssigneeID: in.AssigneeID}, nil
}

func (s *taskStub) Update(ctx context.Context, id string, patch models.TaskPatch, actorID string) (*models.Task, error) {
	s.lastPatch = patch
	if s.err != nil {
		return nil, s.err
	}
	return &models.Task{ID: id}, nil
}

func (s *taskStub) Delete(ctx context.Context, id, actorID string) error { return s.err }

func (s *taskStub) GetAllTags(ctx context.Context, actorID string) ([]string, error) {
	return []string{"api", "ui"}, s.err
}

type userStub struct {
	err error
}

func (s *userStub) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.User{ID: "u-new", Name: req.Name, Email: req.Email, PasswordHash: "secret-hash"}, nil
}

func (s *userStub) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	return "user:u1", &models.User{ID: "u1", Email: email}, nil
}

func (s *userStub) Me(ctx context.Context, actorID string) (*models.User, error) {
	return &models.User{ID: actorID}, s.err
}

type testAPI struct {
	router   *gin.Engine
	projects *projectStub
	tasks    *taskStub
	users    *userStub
}

func newTestAPI() *testAPI {
	gin.SetMode(gin.TestMode)
	api := &testAPI{projects: &projectStub{}, tasks: &taskStub{}, users: &userStub{}}

	r := gin.New()
	r.POST("/auth/register", NewAuthHandler(api.users).Register)
	r.POST("/auth/login", NewAuthHandler(api.users).Login)
	g := r.Group("/", middleware.AuthMiddleware(tokenStub{}))
	g.GET("/auth/me", NewAuthHandler(api.users).Me)

	ph := NewProjectHandler(api.projects)
	g.GET("/projects", ph.List)
	g.POST("/projects", ph.Create)
	g.GET("/projects/:id", ph.GetByID)
	g.PUT("/projects/:id", ph.Update)
	g.DELETE("/projects/:id", ph.Delete)
	g.GET("/projects/:id/report.pdf", ph.Report)

	th := NewTaskHandler(api.tasks)
	g.GET("/tasks", th.List)
	g.POST("/tasks", th.Create)
	g.GET("/tasks/tags", th.Tags)
	g.GET("/tasks/:id", th.GetByID)
	g.PUT("/tasks/:id", th.Update)
	g.DELETE("/tasks/:id", th.Delete)

	api.router = r
	return api
}

func (a *testAPI) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer user:u1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("find project: %w", services.ErrNotFound), http.StatusNotFound},
		{services.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("update project: %w", services.ErrConflict), http.StatusConflict},
		{services.ErrUnauthorized, http.StatusUnauthorized},
		{&services.ValidationError{Fields: map[string]string{"name": "name is required"}}, http.StatusBadRequest},
		{context.Canceled, http.StatusServiceUnavailable},
		{services.ErrReportsDisabled, http.StatusServiceUnavailable},
		{fmt.Errorf("dial tcp: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		api := newTestAPI()
		api.projects.err = tc.err
		w := api.do(http.MethodGet, "/projects/p1", "")
		if w.Code != tc.status {
			t.Fatalf("%v: want %d, got %d", tc.err, tc.status, w.Code)
		}
		resp := decodeError(t, w)
		if tc.status == http.StatusInternalServerError && strings.Contains(resp.Error, "dial") {
			t.Fatalf("internal error details leaked: %q", resp.Error)
		}
		if tc.status == http.StatusBadRequest && resp.Fields["name"] == "" {
			t.Fatalf("field errors missing: %+v", resp)
		}
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	api := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
	if api.tasks.lastActor != "" {
		t.Fatalf("service reached without authentication")
	}
}

func TestTaskListParsesFilters(t *testing.T) {
	api := newTestAPI()
	q := url.Values{
		"search":      {"login"},
		"status":      {string(models.StatusCompleted), string(models.StatusInProgress)},
		"priority":    {string(models.PriorityHigh)},
		"project_id":  {"p1,p2"},
		"assignee_id": {"u2"},
		"tag":         {"a", "b, c"},
	}
	w := api.do(http.MethodGet, "/tasks?"+q.Encode(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	want := models.TaskFilter{
		Search:      "login",
		Statuses:    []models.TaskStatus{models.StatusCompleted, models.StatusInProgress},
		Priorities:  []models.TaskPriority{models.PriorityHigh},
		ProjectIDs:  []string{"p1", "p2"},
		AssigneeIDs: []string{"u2"},
		Tags:        []string{"a", "b", "c"},
	}
	if !reflect.DeepEqual(api.tasks.lastFilter, want) {
		t.Fatalf("filter:\nwant %+v\ngot  %+v", want, api.tasks.lastFilter)
	}
	if api.tasks.lastActor != "u1" {
		t.Fatalf("actor not propagated: %q", api.tasks.lastActor)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("empty list should render as [], got %s", w.Body.String())
	}
}

func TestTaskListWithoutFilters(t *testing.T) {
	api := newTestAPI()
	if w := api.do(http.MethodGet, "/tasks", ""); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if !reflect.DeepEqual(api.tasks.lastFilter, models.TaskFilter{}) {
		t.Fatalf("expected zero filter, got %+v", api.tasks.lastFilter)
	}
}

func TestTaskCreate(t *testing.T) {
	api := newTestAPI()
	body := `{"title":"Design mockup","project_id":"p1","assignee_id":"u2","priority":"高",
		"due_date":"2026-06-01","estimated_hours":3,"tags":["design","frontend"]}`
	w := api.do(http.MethodPost, "/tasks", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	in := api.tasks.lastInput
	if in.Title != "Design mockup" || in.Priority != models.PriorityHigh || in.DueDate == nil || in.DueDate.Day() != 1 {
		t.Fatalf("input not mapped: %+v", in)
	}
	if in.EstimatedHours == nil || *in.EstimatedHours != 3 || len(in.Tags) != 2 {
		t.Fatalf("input not mapped: %+v", in)
	}

	if w := api.do(http.MethodPost, "/tasks", `{"title":"x","due_date":"tomorrow"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad due_date: want 400, got %d", w.Code)
	}
	if w := api.do(http.MethodPost, "/tasks", `{"title":`); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: want 400, got %d", w.Code)
	}
}

func TestTaskUpdateClearsAndKeepsFields(t *testing.T) {
	api := newTestAPI()

	w := api.do(http.MethodPut, "/tasks/t1", `{"due_date":"","estimated_hours":null}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	p := api.tasks.lastPatch
	if !p.ClearDueDate || !p.ClearEstimatedHours || p.DueDate != nil || p.EstimatedHours != nil {
		t.Fatalf("clear not mapped: %+v", p)
	}

	w = api.do(http.MethodPut, "/tasks/t1", `{"title":"New","estimated_hours":5,"expected_updated_at":"2026-04-01T09:00:00Z"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	p = api.tasks.lastPatch
	if p.ClearDueDate || p.ClearEstimatedHours || p.EstimatedHours == nil || *p.EstimatedHours != 5 {
		t.Fatalf("set not mapped: %+v", p)
	}
	if p.Title == nil || *p.Title != "New" || p.ExpectedUpdatedAt == nil {
		t.Fatalf("patch not mapped: %+v", p)
	}
	if p.DueDate != nil || p.Tags != nil || p.Status != nil {
		t.Fatalf("absent fields must stay nil: %+v", p)
	}
}

func TestTaskTagsAndDelete(t *testing.T) {
	api := newTestAPI()
	w := api.do(http.MethodGet, "/tasks/tags", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `["api","ui"]` {
		t.Fatalf("tags: %d %s", w.Code, w.Body.String())
	}
	if w := api.do(http.MethodDelete, "/tasks/t1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", w.Code)
	}
	api.tasks.err = services.ErrNotFound
	if w := api.do(http.MethodDelete, "/tasks/t1", ""); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: want 404, got %d", w.Code)
	}
}

func TestProjectEndpoints(t *testing.T) {
	api := newTestAPI()

	w := api.do(http.MethodPost, "/projects", `{"name":"Website","color":"#3b82f6","start_date":"2026-04-01","end_date":"2026-05-01"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	if api.projects.lastInput.StartDate == nil || api.projects.lastInput.Color != "#3b82f6" {
		t.Fatalf("input not mapped: %+v", api.projects.lastInput)
	}

	if w := api.do(http.MethodGet, "/projects?with_stats=true", ""); w.Code != http.StatusOK || !api.projects.withStats {
		t.Fatalf("with_stats not honoured: %d", w.Code)
	}

	w = api.do(http.MethodPut, "/projects/p1", `{"color":"blue"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d", w.Code)
	}
	if api.projects.lastPatch.Color == nil || *api.projects.lastPatch.Color != "blue" || api.projects.lastPatch.Name != nil {
		t.Fatalf("patch not mapped: %+v", api.projects.lastPatch)
	}
	if api.projects.lastPatch.ClearStartDate || api.projects.lastPatch.ClearEndDate {
		t.Fatalf("absent dates must not be cleared: %+v", api.projects.lastPatch)
	}

	w = api.do(http.MethodPut, "/projects/p1", `{"start_date":"","end_date":"2026-06-01"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update dates: %d %s", w.Code, w.Body.String())
	}
	patch := api.projects.lastPatch
	if !patch.ClearStartDate || patch.StartDate != nil {
		t.Fatalf("empty start_date should clear: %+v", patch)
	}
	if patch.ClearEndDate || patch.EndDate == nil {
		t.Fatalf("end_date should be set: %+v", patch)
	}

	if w := api.do(http.MethodDelete, "/projects/p1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
}

func TestProjectReport(t *testing.T) {
	api := newTestAPI()
	api.projects.report = []byte("%PDF-1.3 fake")
	w := api.do(http.MethodGet, "/projects/p1/report.pdf", "")
	if w.Code != http.StatusOK {
		t.Fatalf("report: %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type %q", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "project-p1.pdf") {
		t.Fatalf("missing filename: %q", w.Header().Get("Content-Disposition"))
	}
}

func TestAuthEndpoints(t *testing.T) {
	api := newTestAPI()

	w := api.do(http.MethodPost, "/auth/register", `{"name":"Taro","email":"taro@example.com","password":"password1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "secret-hash") {
		t.Fatalf("password hash leaked: %s", w.Body.String())
	}
	if w := api.do(http.MethodPost, "/auth/register", `{"email":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("register without required fields: want 400, got %d", w.Code)
	}

	w = api.do(http.MethodPost, "/auth/login", `{"email":"taro@example.com","password":"password1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d", w.Code)
	}
	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.AccessToken != "user:u1" || resp.TokenType != "Bearer" {
		t.Fatalf("login response %s (%v)", w.Body.String(), err)
	}

	api.users.err = services.ErrUnauthorized
	if w := api.do(http.MethodPost, "/auth/login", `{"email":"taro@example.com","password":"nope"}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: want 401, got %d", w.Code)
	}

	api.users.err = nil
	w = api.do(http.MethodGet, "/auth/me", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"id":"u1"`) {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}
}
