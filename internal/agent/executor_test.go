package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/agentcore/nexus/pkg/models"
)

type fakeTool struct {
	name   string
	calls  int
	failN  int // fail this many times before succeeding
	slow   time.Duration
	panics bool
}

func (f *fakeTool) Name() string           { return f.name }
func (f *fakeTool) Description() string    { return "fake" }
func (f *fakeTool) Schema() json.RawMessage { return json.RawMessage(`{}`) }
func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	f.calls++
	if f.panics {
		panic("boom")
	}
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.calls <= f.failN {
		return nil, errors.New("network connection refused")
	}
	return &ToolResult{Content: "ok"}, nil
}

func TestExecutor_SucceedsFirstTry(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&fakeTool{name: "t1"})
	exec := NewExecutor(reg, nil)

	res := exec.Execute(context.Background(), models.ActionEvent{CallID: "c1", Tool: "t1", Args: json.RawMessage(`{}`)})
	if res.Error != nil {
		t.Fatalf("expected success, got %v", res.Error)
	}
	if res.Result.Content != "ok" {
		t.Fatalf("unexpected content: %q", res.Result.Content)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", res.Attempts)
	}
}

func TestExecutor_RetriesRetryableError(t *testing.T) {
	reg := NewToolRegistry()
	tool := &fakeTool{name: "t1", failN: 2}
	reg.Register(tool)
	exec := NewExecutor(reg, &ExecutorConfig{
		MaxConcurrency: 2, DefaultTimeout: time.Second, DefaultRetries: 3,
		RetryBackoff: time.Millisecond, MaxRetryBackoff: 10 * time.Millisecond,
	})

	res := exec.Execute(context.Background(), models.ActionEvent{CallID: "c1", Tool: "t1", Args: json.RawMessage(`{}`)})
	if res.Error != nil {
		t.Fatalf("expected eventual success, got %v", res.Error)
	}
	if res.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", res.Attempts)
	}
}

func TestExecutor_ToolNotFoundReturnsErrorResult(t *testing.T) {
	reg := NewToolRegistry()
	exec := NewExecutor(reg, nil)

	res := exec.Execute(context.Background(), models.ActionEvent{CallID: "c1", Tool: "missing", Args: json.RawMessage(`{}`)})
	if res.Error != nil {
		t.Fatalf("expected no Go error for not-found tool, got %v", res.Error)
	}
	if !res.Result.IsError {
		t.Fatalf("expected error result for missing tool")
	}
}

func TestExecutor_PanicIsRecovered(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&fakeTool{name: "t1", panics: true})
	exec := NewExecutor(reg, nil)

	res := exec.Execute(context.Background(), models.ActionEvent{CallID: "c1", Tool: "t1", Args: json.RawMessage(`{}`)})
	if res.Error == nil {
		t.Fatalf("expected panic to surface as an error")
	}
	toolErr, ok := GetToolError(res.Error)
	if !ok || toolErr.Type != ToolErrorPanic {
		t.Fatalf("expected ToolErrorPanic, got %+v", res.Error)
	}
}

func TestExecutor_ExecuteAllPreservesOrder(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&fakeTool{name: "a"})
	reg.Register(&fakeTool{name: "b"})
	exec := NewExecutor(reg, nil)

	actions := []models.ActionEvent{
		{CallID: "1", Tool: "a", Args: json.RawMessage(`{}`)},
		{CallID: "2", Tool: "b", Args: json.RawMessage(`{}`)},
	}
	results := exec.ExecuteAll(context.Background(), actions)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].CallID != "1" || results[1].CallID != "2" {
		t.Fatalf("expected order preserved, got %s, %s", results[0].CallID, results[1].CallID)
	}
}

func TestResultsToObservations(t *testing.T) {
	results := []*ExecutionResult{
		{CallID: "1", ToolName: "a", Result: &ToolResult{Content: "ok"}},
		{CallID: "2", ToolName: "b", Error: errors.New("boom")},
	}
	obs := ResultsToObservations(results)
	if obs[0].IsError || obs[0].Output != "ok" {
		t.Fatalf("unexpected observation 0: %+v", obs[0])
	}
	if !obs[1].IsError || obs[1].Output != "boom" {
		t.Fatalf("unexpected observation 1: %+v", obs[1])
	}
}
