package authz

import "teamflow/internal/models"

// Decision is the outcome of an ownership check.
type Decision bool

const (
	Deny  Decision = false
	Allow Decision = true
)

func (d Decision) Allowed() bool { return d == Allow }

// AuthorizeProject allows only the project's owner. A nil project or an
// anonymous actor is denied.
func AuthorizeProject(p *models.Project, actorID string) Decision {
	if p == nil || actorID == "" || p.OwnerID == "" {
		return Deny
	}
	if p.OwnerID != actorID {
		return Deny
	}
	return Allow
}

// AuthorizeTask allows only the owner of the task's project. The assignee
// has no say in the decision.
func AuthorizeTask(t *models.Task, actorID string) Decision {
	if t == nil || actorID == "" || t.ProjectOwnerID == "" {
		return Deny
	}
	if t.ProjectOwnerID != actorID {
		return Deny
	}
	return Allow
}
