package conversation

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/lily/pkg/model"
)

const (
	currentTimeLayout = "Monday, Jan 2, 2006, 3:04 PM MST"
	remindTimeLayout  = "Mon, Jan 2, 3:04 PM"
)

// BuildContext renders the block sent ahead of the conversation history. It
// does not modify the given slices. Pending tasks are listed earliest due
// first with unset due times last; completed tasks newest first.
func BuildContext(now time.Time, loc *time.Location, memory string, pending, completed []*model.Task) string {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Current time] %s\n", now.In(loc).Format(currentTimeLayout))

	if strings.TrimSpace(memory) != "" {
		fmt.Fprintf(&b, "\n[About this person]\n%s\n", memory)
	}

	if len(pending) > 0 {
		holding := slices.Clone(pending)
		model.SortByDue(holding)

		b.WriteString("\n[Currently holding]\n")
		for _, t := range holding {
			remind := "not set"
			if t.DueAt != nil {
				remind = t.DueAt.In(loc).Format(remindTimeLayout)
			}
			marker := ""
			if t.IsPreview {
				marker = " (preview)"
			}
			fmt.Fprintf(&b, "- %s (remind: %s)%s\n", t.Summary, remind, marker)
		}
	} else {
		b.WriteString("\n[Currently holding nothing]\n")
	}

	if len(completed) > 0 {
		done := slices.Clone(completed)
		model.SortByCreatedDesc(done)

		b.WriteString("\n[Recently completed]\n")
		for _, t := range done {
			fmt.Fprintf(&b, "- %s\n", t.Summary)
		}
	}

	return b.String()
}
