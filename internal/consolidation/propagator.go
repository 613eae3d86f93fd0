package consolidation

import (
	"time"

	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/benvon/smart-tasks/internal/models"
	"go.uber.org/zap"
)

// Propagator aligns priorities across dependency links.
//
// A dependency string resolves to the first task in the batch whose description
// matches it exactly. For every resolved link the less urgent endpoint is raised to
// the more urgent one, repeated until nothing changes, so chains settle in one call
// and a second call is a no-op. Completed tasks are never modified and their links
// are ignored.
type Propagator struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewPropagator creates a propagator
func NewPropagator(log *zap.Logger) *Propagator {
	return &Propagator{logger: logger.OrNop(log), now: time.Now}
}

type dependencyLink struct {
	dependent    *models.Task
	prerequisite *models.Task
}

// Propagate escalates priorities in place and returns the changed tasks in batch order
func (p *Propagator) Propagate(tasks []*models.Task) []*models.Task {
	links := resolveLinks(tasks)
	if len(links) == 0 {
		return nil
	}

	changed := make(map[*models.Task]bool)
	now := p.now().UTC()
	for progress := true; progress; {
		progress = false
		for _, l := range links {
			target := models.MostUrgent(l.dependent.Priority, l.prerequisite.Priority)
			for _, t := range []*models.Task{l.dependent, l.prerequisite} {
				if target.MoreUrgent(t.Priority) {
					p.logger.Debug("priority_escalated",
						zap.String("task_id", t.ID),
						zap.String("from", string(t.Priority)),
						zap.String("to", string(target)),
					)
					t.Priority = target
					t.Touch(now)
					changed[t] = true
					progress = true
				}
			}
		}
	}

	out := make([]*models.Task, 0, len(changed))
	for _, t := range tasks {
		if changed[t] {
			out = append(out, t)
			delete(changed, t)
		}
	}
	return out
}

func resolveLinks(tasks []*models.Task) []dependencyLink {
	byDescription := make(map[string][]*models.Task, len(tasks))
	for _, t := range tasks {
		byDescription[t.Description] = append(byDescription[t.Description], t)
	}

	var links []dependencyLink
	for _, t := range tasks {
		if t.IsCompleted() {
			continue
		}
		for _, dep := range t.Dependencies {
			d := firstOther(byDescription[dep], t)
			if d == nil || d.IsCompleted() {
				continue
			}
			links = append(links, dependencyLink{dependent: t, prerequisite: d})
		}
	}
	return links
}

func firstOther(candidates []*models.Task, self *models.Task) *models.Task {
	for _, c := range candidates {
		if c != self {
			return c
		}
	}
	return nil
}
