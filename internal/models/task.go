// internal/models/task.go
package models

import (
	"strings"
	"time"
)

// TaskStatus values are the labels shown in the UI and stored as-is.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "未着手"
	StatusInProgress TaskStatus = "進行中"
	StatusReview     TaskStatus = "レビュー"
	StatusCompleted  TaskStatus = "完了"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusReview, StatusCompleted:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "低"
	PriorityMedium TaskPriority = "中"
	PriorityHigh   TaskPriority = "高"
	PriorityUrgent TaskPriority = "緊急"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task represents the structure of a task in the system.
type Task struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Status         TaskStatus   `json:"status"`
	Priority       TaskPriority `json:"priority"`
	ProjectID      string       `json:"project_id"`
	AssigneeID     string       `json:"assignee_id"`
	DueDate        *time.Time   `json:"due_date,omitempty"`
	EstimatedHours *int         `json:"estimated_hours,omitempty"`
	Progress       int          `json:"progress"`
	Tags           []string     `json:"tags"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`

	Project  *ProjectSummary `json:"project,omitempty"`
	Assignee *UserSummary    `json:"assignee,omitempty"`

	// ProjectOwnerID is joined from the parent project and drives access checks.
	ProjectOwnerID string `json:"-"`
}

type TaskInput struct {
	Title          string
	Description    string
	ProjectID      string
	AssigneeID     string
	Status         TaskStatus
	Priority       TaskPriority
	DueDate        *time.Time
	EstimatedHours *int
	Progress       *int
	Tags           []string
}

// TaskPatch carries only the fields to change. DueDate/EstimatedHours can
// be cleared with the Clear* flags.
type TaskPatch struct {
	Title               *string
	Description         *string
	ProjectID           *string
	AssigneeID          *string
	Status              *TaskStatus
	Priority            *TaskPriority
	DueDate             *time.Time
	ClearDueDate        bool
	EstimatedHours      *int
	ClearEstimatedHours bool
	Progress            *int
	Tags                *[]string
	ExpectedUpdatedAt   *time.Time
}

// TaskFilter is the listing query as selected by the user. An empty
// category imposes no constraint.
type TaskFilter struct {
	Search      string
	Statuses    []TaskStatus
	Priorities  []TaskPriority
	ProjectIDs  []string
	AssigneeIDs []string
	Tags        []string
}

// TaskPredicate is a TaskFilter bound to the owner whose projects are
// searched. OwnerID is always applied.
type TaskPredicate struct {
	OwnerID     string
	Search      string
	Statuses    []TaskStatus
	Priorities  []TaskPriority
	ProjectIDs  []string
	AssigneeIDs []string
	Tags        []string
}

// Matches reports whether t satisfies the predicate. It mirrors the SQL
// rendered by the task repository.
func (p TaskPredicate) Matches(t *Task) bool {
	if t == nil || p.OwnerID == "" || t.ProjectOwnerID != p.OwnerID {
		return false
	}
	if p.Search != "" {
		needle := strings.ToLower(p.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}
	if len(p.Statuses) > 0 && !contains(p.Statuses, t.Status) {
		return false
	}
	if len(p.Priorities) > 0 && !contains(p.Priorities, t.Priority) {
		return false
	}
	if len(p.ProjectIDs) > 0 && !contains(p.ProjectIDs, t.ProjectID) {
		return false
	}
	if len(p.AssigneeIDs) > 0 && !contains(p.AssigneeIDs, t.AssigneeID) {
		return false
	}
	if len(p.Tags) > 0 {
		hit := false
		for _, tag := range t.Tags {
			if contains(p.Tags, tag) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
