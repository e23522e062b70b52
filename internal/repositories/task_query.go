package repositories

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"teamflow/internal/models"
)

const taskSelect = `
SELECT t.id, t.title, t.description, t.status, t.priority, t.project_id, t.assignee_id,
       t.due_date, t.estimated_hours, t.progress, t.tags, t.created_at, t.updated_at,
       p.name, p.color, p.owner_id, u.name, u.image
FROM tasks t
JOIN projects p ON p.id = t.project_id
JOIN users u ON u.id = t.assignee_id`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildTaskListQuery renders a predicate into SQL. The owner condition is
// always present; every other category is added only when it has values.
func buildTaskListQuery(p models.TaskPredicate) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}
	argID := 1

	conditions = append(conditions, fmt.Sprintf("p.owner_id = $%d", argID))
	args = append(args, p.OwnerID)
	argID++

	if p.Search != "" {
		conditions = append(conditions,
			fmt.Sprintf(`(t.title ILIKE $%d ESCAPE '\' OR t.description ILIKE $%d ESCAPE '\')`, argID, argID))
		args = append(args, "%"+likeEscaper.Replace(p.Search)+"%")
		argID++
	}
	if len(p.Statuses) > 0 {
		values := make([]string, len(p.Statuses))
		for i, s := range p.Statuses {
			values[i] = string(s)
		}
		conditions = append(conditions, fmt.Sprintf("t.status = ANY($%d)", argID))
		args = append(args, pq.StringArray(values))
		argID++
	}
	if len(p.Priorities) > 0 {
		values := make([]string, len(p.Priorities))
		for i, s := range p.Priorities {
			values[i] = string(s)
		}
		conditions = append(conditions, fmt.Sprintf("t.priority = ANY($%d)", argID))
		args = append(args, pq.StringArray(values))
		argID++
	}
	if len(p.ProjectIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("t.project_id = ANY($%d)", argID))
		args = append(args, pq.StringArray(p.ProjectIDs))
		argID++
	}
	if len(p.AssigneeIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("t.assignee_id = ANY($%d)", argID))
		args = append(args, pq.StringArray(p.AssigneeIDs))
		argID++
	}
	if len(p.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("t.tags && $%d::text[]", argID))
		args = append(args, pq.StringArray(p.Tags))
		argID++
	}

	query := taskSelect + "\nWHERE " + strings.Join(conditions, " AND ") +
		"\nORDER BY t.created_at DESC, t.id ASC"
	return query, args
}
