package services

import (
	"strings"

	"teamflow/internal/models"
)

// ComposeTaskPredicate binds a listing filter to the actor's projects.
// Values are trimmed and de-duplicated; empty values are dropped, so a
// category left empty after normalization imposes no constraint.
func ComposeTaskPredicate(actorID string, f models.TaskFilter) models.TaskPredicate {
	return models.TaskPredicate{
		OwnerID:     actorID,
		Search:      strings.TrimSpace(f.Search),
		Statuses:    uniqueNonEmpty(f.Statuses),
		Priorities:  uniqueNonEmpty(f.Priorities),
		ProjectIDs:  uniqueNonEmpty(f.ProjectIDs),
		AssigneeIDs: uniqueNonEmpty(f.AssigneeIDs),
		Tags:        uniqueNonEmpty(f.Tags),
	}
}

func uniqueNonEmpty[T ~string](values []T) []T {
	if len(values) == 0 {
		return nil
	}
	out := make([]T, 0, len(values))
	seen := make(map[T]struct{}, len(values))
	for _, v := range values {
		v = T(strings.TrimSpace(string(v)))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
