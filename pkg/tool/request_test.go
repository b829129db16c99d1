package tool_test

import (
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lily/pkg/tool"
	"google.golang.org/genai"
)

func TestDecodeCreateTask(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	gt.NoError(t, err)

	t.Run("zone-less datetime uses location", func(t *testing.T) {
		req, err := tool.Decode(genai.FunctionCall{
			Name: "createTask",
			Args: map[string]any{"summary": "  call Tom  ", "reminderAt": "2026-03-02T19:00"},
		}, tokyo)
		gt.NoError(t, err)

		create, ok := req.(*tool.CreateTask)
		gt.True(t, ok)
		gt.Equal(t, create.Summary, "call Tom")
		gt.True(t, create.DueAt.Equal(time.Date(2026, 3, 2, 19, 0, 0, 0, tokyo)))
	})

	t.Run("offset datetime keeps offset", func(t *testing.T) {
		req, err := tool.Decode(genai.FunctionCall{
			Name: "createTask",
			Args: map[string]any{"summary": "call Tom", "reminderAt": "2026-03-02T10:00:00Z"},
		}, tokyo)
		gt.NoError(t, err)
		gt.True(t, req.(*tool.CreateTask).DueAt.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("null due time", func(t *testing.T) {
		req, err := tool.Decode(genai.FunctionCall{
			Name: "createTask",
			Args: map[string]any{"summary": "learn Japanese", "reminderAt": nil},
		}, nil)
		gt.NoError(t, err)
		gt.True(t, req.(*tool.CreateTask).DueAt == nil)
	})

	t.Run("empty summary", func(t *testing.T) {
		_, err := tool.Decode(genai.FunctionCall{
			Name: "createTask",
			Args: map[string]any{"summary": "   "},
		}, nil)
		gt.True(t, errors.Is(err, tool.ErrInvalidArgument))
	})

	t.Run("unparsable due time", func(t *testing.T) {
		_, err := tool.Decode(genai.FunctionCall{
			Name: "createTask",
			Args: map[string]any{"summary": "x", "reminderAt": "tomorrow evening"},
		}, nil)
		gt.True(t, errors.Is(err, tool.ErrInvalidArgument))
	})

	t.Run("wrong argument type", func(t *testing.T) {
		_, err := tool.Decode(genai.FunctionCall{
			Name: "createTask",
			Args: map[string]any{"summary": 42},
		}, nil)
		gt.True(t, errors.Is(err, tool.ErrInvalidArgument))
	})
}

func TestDecodeOthers(t *testing.T) {
	req, err := tool.Decode(genai.FunctionCall{Name: "updateTask", Args: map[string]any{
		"hint": "dentist", "newReminderAt": "2026-03-02 08:30",
	}}, time.UTC)
	gt.NoError(t, err)
	update := req.(*tool.UpdateTask)
	gt.Equal(t, update.Hint, "dentist")
	gt.True(t, update.DueAt.Equal(time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)))

	_, err = tool.Decode(genai.FunctionCall{Name: "updateTask", Args: map[string]any{"hint": "dentist"}}, nil)
	gt.True(t, errors.Is(err, tool.ErrInvalidArgument))

	req, err = tool.Decode(genai.FunctionCall{Name: "listTasks"}, nil)
	gt.NoError(t, err)
	_, ok := req.(*tool.ListTasks)
	gt.True(t, ok)

	_, err = tool.Decode(genai.FunctionCall{Name: "completeTask", Args: map[string]any{}}, nil)
	gt.True(t, errors.Is(err, tool.ErrInvalidArgument))

	_, err = tool.Decode(genai.FunctionCall{Name: "saveMemo", Args: map[string]any{"memo": ""}}, nil)
	gt.True(t, errors.Is(err, tool.ErrInvalidArgument))

	req, err = tool.Decode(genai.FunctionCall{Name: "readLink", Args: map[string]any{"url": "https://example.com"}}, nil)
	gt.NoError(t, err)
	gt.Equal(t, req.(*tool.ReadLink).URL, "https://example.com")

	_, err = tool.Decode(genai.FunctionCall{Name: "deleteEverything"}, nil)
	gt.True(t, errors.Is(err, tool.ErrUnknownTool))
}

func TestDeclarations(t *testing.T) {
	decls, err := tool.Declarations()
	gt.NoError(t, err)
	gt.A(t, decls.FunctionDeclarations).Length(6)

	byName := map[string]*genai.FunctionDeclaration{}
	for _, fd := range decls.FunctionDeclarations {
		byName[fd.Name] = fd
	}

	create := byName["createTask"]
	gt.V(t, create).NotNil()
	gt.Equal(t, create.Parameters.Type, genai.TypeObject)
	gt.Equal(t, create.Parameters.Required, []string{"summary"})
	gt.Equal(t, create.Parameters.Properties["reminderAt"].Type, genai.TypeString)
	gt.S(t, create.Parameters.Properties["summary"].Description).Contains("summary")

	gt.True(t, byName["listTasks"].Parameters == nil)
	gt.A(t, byName["updateTask"].Parameters.Required).Length(2)
}
