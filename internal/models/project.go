package models

import "time"

const DefaultProjectColor = "#3B82F6"

// Project is owned by exactly one user for its whole lifetime.
type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	OwnerID     string     `json:"owner_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ProjectSummary is the project view joined into task reads.
type ProjectSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type ProjectInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

// ProjectPatch carries only the fields to change; nil means "leave as is".
// The dates can be cleared with the Clear* flags.
type ProjectPatch struct {
	Name              *string
	Description       *string
	Color             *string
	StartDate         *time.Time
	ClearStartDate    bool
	EndDate           *time.Time
	ClearEndDate      bool
	ExpectedUpdatedAt *time.Time
}

type TaskStats struct {
	NotStarted int `json:"not_started"`
	InProgress int `json:"in_progress"`
	Review     int `json:"review"`
	Completed  int `json:"completed"`
}

func (s TaskStats) Total() int {
	return s.NotStarted + s.InProgress + s.Review + s.Completed
}

// Add counts n tasks of the given status. Unknown statuses are ignored.
func (s *TaskStats) Add(status TaskStatus, n int) {
	switch status {
	case StatusNotStarted:
		s.NotStarted += n
	case StatusInProgress:
		s.InProgress += n
	case StatusReview:
		s.Review += n
	case StatusCompleted:
		s.Completed += n
	}
}

type ProjectWithStats struct {
	Project
	TaskStats    TaskStats `json:"task_stats"`
	TotalTasks   int       `json:"total_tasks"`
	TaskProgress int       `json:"task_progress"`
	DateProgress int       `json:"date_progress"`
}
