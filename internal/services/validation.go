package services

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"teamflow/internal/models"
)

const (
	maxProjectNameLen        = 100
	maxProjectDescriptionLen = 500
	minPasswordLen           = 8
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

func validateProjectName(errs fieldErrors, name string) {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	switch {
	case n == 0:
		errs.add("name", "name is required")
	case utf8.RuneCountInString(name) > maxProjectNameLen:
		errs.add("name", "name must be at most 100 characters")
	}
}

func validateProjectDescription(errs fieldErrors, description string) {
	if utf8.RuneCountInString(description) > maxProjectDescriptionLen {
		errs.add("description", "description must be at most 500 characters")
	}
}

func validateColor(errs fieldErrors, color string) {
	if !colorPattern.MatchString(color) {
		errs.add("color", "color must be a #RRGGBB hex code")
	}
}

func validateDateRange(errs fieldErrors, start, end *time.Time) {
	if start != nil && end != nil && end.Before(*start) {
		errs.add("end_date", "end_date must not be before start_date")
	}
}

func validateProjectInput(in models.ProjectInput) error {
	errs := fieldErrors{}
	validateProjectName(errs, in.Name)
	validateProjectDescription(errs, in.Description)
	if in.Color != "" {
		validateColor(errs, in.Color)
	}
	validateDateRange(errs, in.StartDate, in.EndDate)
	return errs.err()
}

func validateProgress(errs fieldErrors, progress int) {
	if progress < 0 || progress > 100 {
		errs.add("progress", "progress must be between 0 and 100")
	}
}

func validateEstimatedHours(errs fieldErrors, hours *int) {
	if hours != nil && *hours < 0 {
		errs.add("estimated_hours", "estimated_hours must not be negative")
	}
}

func validateTaskInput(in models.TaskInput) error {
	errs := fieldErrors{}
	if strings.TrimSpace(in.Title) == "" {
		errs.add("title", "title is required")
	}
	if strings.TrimSpace(in.ProjectID) == "" {
		errs.add("project_id", "project_id is required")
	}
	if strings.TrimSpace(in.AssigneeID) == "" {
		errs.add("assignee_id", "assignee_id is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		errs.add("status", "unknown status")
	}
	if in.Priority != "" && !in.Priority.Valid() {
		errs.add("priority", "unknown priority")
	}
	if in.Progress != nil {
		validateProgress(errs, *in.Progress)
	}
	validateEstimatedHours(errs, in.EstimatedHours)
	return errs.err()
}

func validateTaskPatch(p models.TaskPatch) error {
	errs := fieldErrors{}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		errs.add("title", "title must not be empty")
	}
	if p.ProjectID != nil && strings.TrimSpace(*p.ProjectID) == "" {
		errs.add("project_id", "project_id must not be empty")
	}
	if p.AssigneeID != nil && strings.TrimSpace(*p.AssigneeID) == "" {
		errs.add("assignee_id", "assignee_id must not be empty")
	}
	if p.Status != nil && !p.Status.Valid() {
		errs.add("status", "unknown status")
	}
	if p.Priority != nil && !p.Priority.Valid() {
		errs.add("priority", "unknown priority")
	}
	if p.Progress != nil {
		validateProgress(errs, *p.Progress)
	}
	validateEstimatedHours(errs, p.EstimatedHours)
	return errs.err()
}

// normalizeTags trims tags, drops empty ones and keeps the first occurrence
// of duplicates so display order is preserved.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// timestamp returns the current time at the precision PostgreSQL stores, so
// values handed back as optimistic tokens compare equal to the stored ones.
func timestamp(now func() time.Time) time.Time {
	return now().UTC().Truncate(time.Microsecond)
}
