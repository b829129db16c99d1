package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/repository"
	"github.com/m-mizutani/lily/pkg/service/mcp"
	"github.com/m-mizutani/lily/pkg/tool"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func connect(t *testing.T, repo repository.Repository, addr model.Address) *mcpsdk.ClientSession {
	ctx := context.Background()

	srv, err := mcp.NewServer(tool.New(repo), addr, "test")
	gt.NoError(t, err)

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	serverSession, err := srv.Connect(ctx, serverTransport)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func resultOf(t *testing.T, res *mcpsdk.CallToolResult) map[string]any {
	gt.A(t, res.Content).Length(1)
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)

	var out map[string]any
	gt.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestListTools(t *testing.T) {
	session := connect(t, repository.NewMemory(), model.NewTelegramAddress("4242"))

	res, err := session.ListTools(context.Background(), nil)
	gt.NoError(t, err)
	gt.A(t, res.Tools).Length(6)

	names := map[string]bool{}
	for _, tl := range res.Tools {
		names[tl.Name] = true
	}
	for _, name := range []string{"createTask", "completeTask", "updateTask", "listTasks", "saveMemo", "readLink"} {
		gt.True(t, names[name])
	}
}

func TestCallTools(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	addr := model.NewTelegramAddress("4242")
	gt.NoError(t, repo.EnsureUser(ctx, addr))
	gt.NoError(t, repo.MarkFirstTaskSent(ctx, addr))
	session := connect(t, repo, addr)

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "createTask",
		Arguments: map[string]any{"summary": "call Tom", "reminderAt": "2026-03-02T19:00:00Z"},
	})
	gt.NoError(t, err)
	gt.False(t, res.IsError)
	gt.Equal(t, resultOf(t, res)["created"], any(true))

	res, err = session.CallTool(ctx, &mcpsdk.CallToolParams{Name: "listTasks", Arguments: map[string]any{}})
	gt.NoError(t, err)
	tasks := resultOf(t, res)["tasks"].([]any)
	gt.A(t, tasks).Length(1)

	res, err = session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "completeTask",
		Arguments: map[string]any{"hint": "Tom"},
	})
	gt.NoError(t, err)
	gt.Equal(t, resultOf(t, res)["completed"], any("call Tom"))

	res, err = session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "completeTask",
		Arguments: map[string]any{"hint": "Tom"},
	})
	gt.NoError(t, err)
	gt.True(t, res.IsError)
	gt.Equal(t, resultOf(t, res)["error"], any("no matching task found"))
}
