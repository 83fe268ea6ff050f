package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/agentcore/nexus/pkg/models"
)

// ExecutorConfig configures the parallel tool executor: concurrency
// limits, timeouts, and retry strategy.
type ExecutorConfig struct {
	MaxConcurrency  int
	DefaultTimeout  time.Duration
	DefaultRetries  int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// DefaultExecutorConfig returns sensible executor defaults.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency:  5,
		DefaultTimeout:  30 * time.Second,
		DefaultRetries:  2,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	}
}

// ToolConfig holds per-tool overrides for timeout and retry behavior.
type ToolConfig struct {
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// Executor runs batches of actions in parallel against a ToolRegistry,
// bounded by a concurrency semaphore, with per-tool timeout and retry.
type Executor struct {
	registry   *ToolRegistry
	config     *ExecutorConfig
	toolConfig map[string]*ToolConfig
	mu         sync.RWMutex

	sem chan struct{}

	metrics *ExecutorMetrics
}

// ExecutorMetrics tracks cumulative executor counters.
type ExecutorMetrics struct {
	mu              sync.Mutex
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}

// NewExecutor creates an Executor over registry. If config is nil,
// DefaultExecutorConfig is used.
func NewExecutor(registry *ToolRegistry, config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	return &Executor{
		registry:   registry,
		config:     config,
		toolConfig: make(map[string]*ToolConfig),
		sem:        make(chan struct{}, config.MaxConcurrency),
		metrics:    &ExecutorMetrics{},
	}
}

// ConfigureTool sets a per-tool timeout/retry override.
func (e *Executor) ConfigureTool(name string, config *ToolConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toolConfig[name] = config
}

func (e *Executor) getToolConfig(name string) *ToolConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.toolConfig[name]
}

// ExecutionResult is the outcome of one action's execution.
type ExecutionResult struct {
	CallID   string
	ToolName string
	Result   *ToolResult
	Error    error
	Duration time.Duration
	Attempts int
}

// ExecuteAll runs every action in actions concurrently (bounded by the
// executor's semaphore) and returns results in the same order as the
// input, so callers can write results back by index.
func (e *Executor) ExecuteAll(ctx context.Context, actions []models.ActionEvent) []*ExecutionResult {
	if len(actions) == 0 {
		return nil
	}

	results := make([]*ExecutionResult, len(actions))
	var wg sync.WaitGroup
	for i, action := range actions {
		wg.Add(1)
		go func(idx int, a models.ActionEvent) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, a)
		}(i, action)
	}
	wg.Wait()
	return results
}

// Execute runs a single action with retry and timeout handling,
// acquiring a semaphore slot for backpressure.
func (e *Executor) Execute(ctx context.Context, action models.ActionEvent) *ExecutionResult {
	start := time.Now()
	result := &ExecutionResult{CallID: action.CallID, ToolName: action.Tool}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		result.Error = NewToolError(action.Tool, ctx.Err()).WithType(ToolErrorTimeout).WithToolCallID(action.CallID)
		result.Duration = time.Since(start)
		return result
	}

	tc := e.getToolConfig(action.Tool)
	timeout := e.config.DefaultTimeout
	maxRetries := e.config.DefaultRetries
	backoff := e.config.RetryBackoff
	if tc != nil {
		if tc.Timeout > 0 {
			timeout = tc.Timeout
		}
		if tc.Retries >= 0 {
			maxRetries = tc.Retries
		}
		if tc.RetryBackoff > 0 {
			backoff = tc.RetryBackoff
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result.Attempts = attempt + 1

		execResult, execErr := e.executeWithTimeout(ctx, action, timeout)
		if execErr == nil {
			result.Result = execResult
			result.Duration = time.Since(start)
			e.metrics.mu.Lock()
			e.metrics.TotalExecutions++
			if attempt > 0 {
				e.metrics.TotalRetries += int64(attempt)
			}
			e.metrics.mu.Unlock()
			return result
		}

		lastErr = execErr
		if !IsToolRetryable(execErr) || ctx.Err() != nil || attempt >= maxRetries {
			break
		}

		sleepDuration := backoff * time.Duration(1<<uint(attempt))
		if sleepDuration > e.config.MaxRetryBackoff {
			sleepDuration = e.config.MaxRetryBackoff
		}
		select {
		case <-time.After(sleepDuration):
		case <-ctx.Done():
			lastErr = NewToolError(action.Tool, ctx.Err()).WithType(ToolErrorTimeout).WithToolCallID(action.CallID)
		}
	}

	result.Error = lastErr
	result.Duration = time.Since(start)

	e.metrics.mu.Lock()
	e.metrics.TotalExecutions++
	e.metrics.TotalFailures++
	if toolErr, ok := GetToolError(lastErr); ok {
		if toolErr.Type == ToolErrorTimeout {
			e.metrics.TotalTimeouts++
		} else if toolErr.Type == ToolErrorPanic {
			e.metrics.TotalPanics++
		}
	}
	e.metrics.mu.Unlock()

	return result
}

func (e *Executor) executeWithTimeout(ctx context.Context, action models.ActionEvent, timeout time.Duration) (*ToolResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type execResult struct {
		result *ToolResult
		err    error
	}
	resultCh := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				err := NewToolError(action.Tool, fmt.Errorf("panic: %v\n%s", r, stack)).WithType(ToolErrorPanic).WithToolCallID(action.CallID)
				resultCh <- execResult{err: err}
			}
		}()

		result, err := e.registry.Execute(execCtx, action.Tool, action.Args)
		if err != nil {
			resultCh <- execResult{err: NewToolError(action.Tool, err).WithToolCallID(action.CallID)}
			return
		}
		resultCh <- execResult{result: result}
	}()

	select {
	case res := <-resultCh:
		return res.result, res.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, NewToolError(action.Tool, ctx.Err()).WithType(ToolErrorTimeout).WithToolCallID(action.CallID).WithMessage("context cancelled")
		}
		return nil, NewToolError(action.Tool, ErrToolTimeout).WithType(ToolErrorTimeout).WithToolCallID(action.CallID).
			WithMessage(fmt.Sprintf("execution timed out after %s", timeout))
	}
}

// Metrics returns a point-in-time snapshot of the executor's counters.
func (e *Executor) Metrics() ExecutorMetricsSnapshot {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	return ExecutorMetricsSnapshot{
		TotalExecutions: e.metrics.TotalExecutions,
		TotalRetries:    e.metrics.TotalRetries,
		TotalFailures:   e.metrics.TotalFailures,
		TotalTimeouts:   e.metrics.TotalTimeouts,
		TotalPanics:     e.metrics.TotalPanics,
	}
}

// ExecutorMetricsSnapshot is a copy-safe view of ExecutorMetrics.
type ExecutorMetricsSnapshot struct {
	TotalExecutions int64
	TotalRetries    int64
	TotalFailures   int64
	TotalTimeouts   int64
	TotalPanics     int64
}

// ResultsToObservations converts execution results into Observation
// events suitable for appending to the conversation log.
func ResultsToObservations(results []*ExecutionResult) []models.ObservationEvent {
	out := make([]models.ObservationEvent, len(results))
	for i, r := range results {
		switch {
		case r.Error != nil:
			out[i] = models.ObservationEvent{CallID: r.CallID, Tool: r.ToolName, Output: r.Error.Error(), IsError: true, Elapsed: r.Duration}
		case r.Result != nil:
			out[i] = models.ObservationEvent{CallID: r.CallID, Tool: r.ToolName, Output: r.Result.Content, IsError: r.Result.IsError, Elapsed: r.Duration}
		default:
			out[i] = models.ObservationEvent{CallID: r.CallID, Tool: r.ToolName, Output: "no result", IsError: true, Elapsed: r.Duration}
		}
	}
	return out
}

// AnyErrors reports whether any execution result failed.
func AnyErrors(results []*ExecutionResult) bool {
	for _, r := range results {
		if r.Error != nil || (r.Result != nil && r.Result.IsError) {
			return true
		}
	}
	return false
}
