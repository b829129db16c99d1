package conversation_test

import (
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/usecase/conversation"
)

func dueTask(summary string, due *time.Time, created time.Time) *model.Task {
	return model.NewTask("15550001111", summary, due, created)
}

func at(t time.Time) *time.Time {
	return &t
}

func TestBuildContextOrdering(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	pending := []*model.Task{
		dueTask("third", at(now.Add(3*time.Hour)), now),
		dueTask("unset", nil, now),
		dueTask("first", at(now.Add(1*time.Hour)), now),
		dueTask("second", at(now.Add(2*time.Hour)), now),
	}
	completed := []*model.Task{
		dueTask("older", nil, now.Add(-2*time.Hour)),
		dueTask("newer", nil, now.Add(-1*time.Hour)),
	}

	block := conversation.BuildContext(now, time.UTC, "", pending, completed)

	first := strings.Index(block, "- first")
	second := strings.Index(block, "- second")
	third := strings.Index(block, "- third")
	unset := strings.Index(block, "- unset (remind: not set)")
	gt.True(t, first >= 0)
	gt.True(t, first < second)
	gt.True(t, second < third)
	gt.True(t, third < unset)

	gt.True(t, strings.Index(block, "- newer") < strings.Index(block, "- older"))

	// input order is left alone
	gt.Equal(t, pending[0].Summary, "third")
}

func TestBuildContextFormat(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	preview := dueTask("call Tom", at(now.Add(10*time.Second)), now)
	preview.IsPreview = true

	block := conversation.BuildContext(now, time.UTC, "prefers morning reminders",
		[]*model.Task{
			dueTask("call Tom", at(time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)), now),
			preview,
		}, nil)

	gt.S(t, block).Contains("[Current time] Sunday, Mar 1, 2026, 9:00 AM UTC\n")
	gt.S(t, block).Contains("\n[About this person]\nprefers morning reminders\n")
	gt.S(t, block).Contains("- call Tom (remind: Sun, Mar 1, 9:00 AM) (preview)\n")
	gt.S(t, block).Contains("- call Tom (remind: Mon, Mar 2, 7:00 PM)\n")
	gt.S(t, block).NotContains("[Recently completed]")
}

func TestBuildContextEmpty(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	gt.NoError(t, err)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	block := conversation.BuildContext(now, tokyo, "  \n", nil, nil)
	gt.S(t, block).Contains("[Current time] Sunday, Mar 1, 2026, 6:00 PM JST")
	gt.S(t, block).Contains("[Currently holding nothing]")
	gt.S(t, block).NotContains("[About this person]")
}
