package tool

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const (
	NameCreateTask   = "createTask"
	NameCompleteTask = "completeTask"
	NameUpdateTask   = "updateTask"
	NameListTasks    = "listTasks"
	NameSaveMemo     = "saveMemo"
	NameReadLink     = "readLink"
)

var (
	ErrInvalidArgument = goerr.New("invalid tool argument")
	ErrUnknownTool     = goerr.New("unknown tool")
)

// Request is one decoded tool invocation. The set of implementations is
// closed to this package.
type Request interface {
	toolName() string
}

type CreateTask struct {
	Summary string
	// DueAt is nil when the user gave no usable time
	DueAt *time.Time
}

type CompleteTask struct {
	Hint string
}

type UpdateTask struct {
	Hint  string
	DueAt time.Time
}

type ListTasks struct{}

type SaveMemo struct {
	Memo string
}

type ReadLink struct {
	URL string
}

func (*CreateTask) toolName() string   { return NameCreateTask }
func (*CompleteTask) toolName() string { return NameCompleteTask }
func (*UpdateTask) toolName() string   { return NameUpdateTask }
func (*ListTasks) toolName() string    { return NameListTasks }
func (*SaveMemo) toolName() string     { return NameSaveMemo }
func (*ReadLink) toolName() string     { return NameReadLink }

// Argument records as the model sends them. Field tags drive the generated
// parameter schemas; fields without omitempty are required.

type createTaskArgs struct {
	Summary    string `json:"summary" jsonschema:"One-line summary of the task"`
	ReminderAt string `json:"reminderAt,omitempty" jsonschema:"ISO 8601 datetime for when to send the reminder. Omit if unclear"`
}

type completeTaskArgs struct {
	Hint string `json:"hint" jsonschema:"Keywords from the user's message to match against task summaries"`
}

type updateTaskArgs struct {
	Hint          string `json:"hint" jsonschema:"Keywords to identify which task"`
	NewReminderAt string `json:"newReminderAt" jsonschema:"New ISO 8601 reminder time"`
}

type listTasksArgs struct{}

type saveMemoArgs struct {
	Memo string `json:"memo" jsonschema:"One-line note, e.g. 'prefers morning reminders' or 'has team meeting every Tuesday'"`
}

type readLinkArgs struct {
	URL string `json:"url" jsonschema:"The URL to read"`
}

func decodeArgs(fc genai.FunctionCall, v any) error {
	raw, err := json.Marshal(fc.Args)
	if err != nil {
		return goerr.Wrap(ErrInvalidArgument, "failed to marshal function arguments", goerr.V("name", fc.Name))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return goerr.Wrap(ErrInvalidArgument, "failed to parse function arguments",
			goerr.V("name", fc.Name), goerr.V("error", err.Error()))
	}
	return nil
}

func requireText(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", goerr.Wrap(ErrInvalidArgument, field+" is required", goerr.V("field", field))
	}
	return value, nil
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime accepts RFC 3339 or a zone-less local datetime interpreted in loc
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, goerr.Wrap(ErrInvalidArgument, "unrecognized datetime", goerr.V("value", value))
}

// Decode validates the arguments of fc and returns the typed request
func Decode(fc genai.FunctionCall, loc *time.Location) (Request, error) {
	if loc == nil {
		loc = time.UTC
	}

	switch fc.Name {
	case NameCreateTask:
		var args createTaskArgs
		if err := decodeArgs(fc, &args); err != nil {
			return nil, err
		}
		summary, err := requireText("summary", args.Summary)
		if err != nil {
			return nil, err
		}
		req := &CreateTask{Summary: summary}
		if v := strings.TrimSpace(args.ReminderAt); v != "" && v != "null" {
			due, err := ParseTime(v, loc)
			if err != nil {
				return nil, err
			}
			req.DueAt = &due
		}
		return req, nil

	case NameCompleteTask:
		var args completeTaskArgs
		if err := decodeArgs(fc, &args); err != nil {
			return nil, err
		}
		hint, err := requireText("hint", args.Hint)
		if err != nil {
			return nil, err
		}
		return &CompleteTask{Hint: hint}, nil

	case NameUpdateTask:
		var args updateTaskArgs
		if err := decodeArgs(fc, &args); err != nil {
			return nil, err
		}
		hint, err := requireText("hint", args.Hint)
		if err != nil {
			return nil, err
		}
		raw, err := requireText("newReminderAt", args.NewReminderAt)
		if err != nil {
			return nil, err
		}
		due, err := ParseTime(raw, loc)
		if err != nil {
			return nil, err
		}
		return &UpdateTask{Hint: hint, DueAt: due}, nil

	case NameListTasks:
		return &ListTasks{}, nil

	case NameSaveMemo:
		var args saveMemoArgs
		if err := decodeArgs(fc, &args); err != nil {
			return nil, err
		}
		memo, err := requireText("memo", args.Memo)
		if err != nil {
			return nil, err
		}
		return &SaveMemo{Memo: memo}, nil

	case NameReadLink:
		var args readLinkArgs
		if err := decodeArgs(fc, &args); err != nil {
			return nil, err
		}
		url, err := requireText("url", args.URL)
		if err != nil {
			return nil, err
		}
		return &ReadLink{URL: url}, nil

	default:
		return nil, goerr.Wrap(ErrUnknownTool, "tool is not available", goerr.V("name", fc.Name))
	}
}
