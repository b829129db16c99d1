package tool

import (
	"strings"

	"github.com/m-mizutani/lily/pkg/model"
)

// FindBestMatch picks the task a hint refers to. Candidates must be ordered
// most recent first. Tiers are tried in order: summary contains hint, hint
// contains summary, then the most recent task. Nil only for an empty list.
func FindBestMatch(tasks []*model.Task, hint string) *model.Task {
	if len(tasks) == 0 {
		return nil
	}

	h := strings.ToLower(hint)
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Summary), h) {
			return t
		}
	}
	for _, t := range tasks {
		if strings.Contains(h, strings.ToLower(t.Summary)) {
			return t
		}
	}
	return tasks[0]
}
