package tool_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/tool"
)

func tasksOf(summaries ...string) []*model.Task {
	tasks := make([]*model.Task, len(summaries))
	for i, s := range summaries {
		tasks[i] = &model.Task{ID: model.NewTaskID(), Summary: s}
	}
	return tasks
}

func TestFindBestMatch(t *testing.T) {
	testCases := []struct {
		name   string
		tasks  []*model.Task
		hint   string
		expect string
	}{
		{
			name:   "summary contains hint",
			tasks:  tasksOf("finish quarterly report", "call mom"),
			hint:   "report",
			expect: "finish quarterly report",
		},
		{
			name:   "case insensitive",
			tasks:  tasksOf("call mom", "Book FLIGHTS"),
			hint:   "flights",
			expect: "Book FLIGHTS",
		},
		{
			name:   "hint contains summary",
			tasks:  tasksOf("pay rent", "dentist"),
			hint:   "I went to the dentist today",
			expect: "dentist",
		},
		{
			name:   "first tier wins over second",
			tasks:  tasksOf("gym", "renew gym membership"),
			hint:   "gym membership",
			expect: "renew gym membership",
		},
		{
			name:   "falls back to most recent",
			tasks:  tasksOf("water plants", "call mom"),
			hint:   "that thing",
			expect: "water plants",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			match := tool.FindBestMatch(tc.tasks, tc.hint)
			gt.V(t, match).NotNil()
			gt.Equal(t, match.Summary, tc.expect)
		})
	}

	t.Run("empty list", func(t *testing.T) {
		gt.True(t, tool.FindBestMatch(nil, "anything") == nil)
	})
}
