package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	agentctx "github.com/agentcore/nexus/internal/agent/context"
	"github.com/agentcore/nexus/internal/store"
	"github.com/agentcore/nexus/internal/tools/policy"
	"github.com/agentcore/nexus/pkg/models"
)

// FinishToolName is the reserved name of the built-in no-arg tool whose
// successful execution signals conversation completion to the driver,
// rather than an ordinary observation.
const FinishToolName = "finish"

// ErrConversationFinished is returned by SendMessage once the
// conversation has reached AgentFinishedEvent.
var ErrConversationFinished = errors.New("conversation has already finished")

// DriverOptions configures a Driver's step loop beyond the shared
// RuntimeOptions (which covers tool execution).
type DriverOptions struct {
	// MaxIterationsPerRun bounds the step loop within a single Run call.
	// Falls back to RuntimeOptions.MaxIterations, then to 50.
	MaxIterationsPerRun int

	// StuckWindow is k in the trailing-action stuck-detection heuristic.
	StuckWindow int

	// ConfirmationMode starts the driver with every action batch paused
	// for confirmation regardless of risk level.
	ConfirmationMode bool

	SystemPrompt agentctx.SystemPromptOptions
}

// DefaultDriverOptions returns baseline driver options.
func DefaultDriverOptions() DriverOptions {
	return DriverOptions{MaxIterationsPerRun: 50, StuckWindow: 4}
}

// Subscriber receives every event appended to a conversation's log, in
// append order, synchronously with the step that produced it. A
// subscriber that panics or merely returns is never allowed to abort the
// step loop; driver.notify recovers and logs instead.
type Subscriber func(models.Event)

// RunResult summarizes why a Run call returned control to its caller.
type RunResult struct {
	Finished               bool
	Paused                 bool
	WaitingForConfirmation bool
	Iterations             int
}

// Driver owns a single conversation's step loop: ask the Agent for the
// next actions, execute them, append observations, repeat until a
// terminal condition. Run is not safe to call concurrently for the same
// conversation; Pause, SetConfirmationMode, and Subscribe are.
type Driver struct {
	conversationID string
	store          store.EventStore
	agent          *Agent
	executor       *Executor
	runtime        RuntimeOptions
	opts           DriverOptions

	emitter *EventEmitter

	flagMu              sync.Mutex
	paused              bool
	confirmationMode    bool
	waitingConfirmation bool
	pendingCallIDs      []string
	finished            bool
	iteration           int
	continuation        string

	subMu       sync.Mutex
	subscribers []Subscriber
}

// NewDriver builds a Driver over es for conversationID, using ag to
// produce actions and registry's tools (via an internally owned
// Executor configured from runtime) to run them. sink receives ambient
// DriverEvent telemetry; it may be nil.
func NewDriver(conversationID string, es store.EventStore, ag *Agent, registry *ToolRegistry, runtime RuntimeOptions, opts DriverOptions, sink EventSink) *Driver {
	runtime = mergeRuntimeOptions(DefaultRuntimeOptions(), runtime)

	if opts.MaxIterationsPerRun <= 0 {
		opts.MaxIterationsPerRun = runtime.MaxIterations
	}
	if opts.MaxIterationsPerRun <= 0 {
		opts.MaxIterationsPerRun = 50
	}
	if opts.StuckWindow <= 0 {
		opts.StuckWindow = 4
	}

	execCfg := DefaultExecutorConfig()
	if runtime.ToolParallelism > 0 {
		execCfg.MaxConcurrency = runtime.ToolParallelism
	}
	if runtime.ToolTimeout > 0 {
		execCfg.DefaultTimeout = runtime.ToolTimeout
	}
	if runtime.ToolMaxAttempts > 1 {
		execCfg.DefaultRetries = runtime.ToolMaxAttempts - 1
	}
	if runtime.ToolRetryBackoff > 0 {
		execCfg.RetryBackoff = runtime.ToolRetryBackoff
	}

	return &Driver{
		conversationID:   conversationID,
		store:            es,
		agent:            ag,
		executor:         NewExecutor(registry, execCfg),
		runtime:          runtime,
		opts:             opts,
		emitter:          NewEventEmitter(conversationID, sink),
		confirmationMode: opts.ConfirmationMode,
	}
}

// Subscribe registers sub to receive every subsequently appended event.
func (d *Driver) Subscribe(sub Subscriber) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.subscribers = append(d.subscribers, sub)
}

func (d *Driver) notify(ev models.Event) {
	d.subMu.Lock()
	subs := make([]Subscriber, len(d.subscribers))
	copy(subs, d.subscribers)
	d.subMu.Unlock()

	for _, sub := range subs {
		d.deliver(sub, ev)
	}
}

func (d *Driver) deliver(sub Subscriber, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			if d.runtime.Logger != nil {
				d.runtime.Logger.Error("conversation subscriber panicked",
					"conversation_id", d.conversationID, "panic", r)
			}
		}
	}()
	sub(ev)
}

// appendEvent assigns an id and timestamp to ev if absent, appends it to
// the store, and synchronously notifies subscribers with the stored
// (sequenced) copy.
func (d *Driver) appendEvent(ctx context.Context, ev models.Event) (models.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	ev.ConversationID = d.conversationID

	stored, err := d.store.Append(ctx, d.conversationID, ev)
	if err != nil {
		return models.Event{}, err
	}
	d.notify(stored)
	return stored, nil
}

func (d *Driver) loadLog(ctx context.Context) ([]models.Event, error) {
	log, err := d.store.Load(ctx, d.conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return log, nil
}

// SendMessage appends a user message and checks it against any
// configured knowledge microagents. It returns ErrConversationFinished
// once AgentFinishedEvent has been observed; Resume from a finished
// conversation is not supported, matching spec semantics that a finished
// conversation is terminal.
func (d *Driver) SendMessage(ctx context.Context, content string, images []string) error {
	d.flagMu.Lock()
	finished := d.finished
	d.flagMu.Unlock()
	if finished {
		return ErrConversationFinished
	}

	_, err := d.appendEvent(ctx, models.Event{
		Type:   models.EventTypeMessage,
		Source: models.EventSourceUser,
		Message: &models.MessageEvent{
			Role:    models.MessageRoleUser,
			Content: content,
			Images:  images,
		},
	})
	if err != nil {
		return err
	}

	if d.agent == nil {
		return nil
	}
	for _, act := range d.agent.ActivateMicroagents(content) {
		act := act
		if _, err := d.appendEvent(ctx, models.Event{
			Type:                 models.EventTypeMicroagentActivation,
			Source:               models.EventSourceSystem,
			MicroagentActivation: &act,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Pause halts the step loop before its next iteration begins. Per spec,
// a pause observed mid-batch still allows at most the tool executions
// already in flight to complete; no new batch is dispatched afterward.
func (d *Driver) Pause(ctx context.Context, reason string) {
	d.flagMu.Lock()
	d.paused = true
	d.flagMu.Unlock()
	d.emitter.Paused(ctx, reason)
}

// Resume clears an explicit pause. It never clears a confirmation-mode
// wait; call Approve (via Run after the caller has independently decided
// to execute the pending batch) or RejectPendingActions for that.
func (d *Driver) Resume(ctx context.Context) {
	d.flagMu.Lock()
	d.paused = false
	d.flagMu.Unlock()
	d.emitter.Resumed(ctx)
}

// SetConfirmationMode toggles whether every future action batch must
// pause for confirmation regardless of its risk classification.
func (d *Driver) SetConfirmationMode(on bool) {
	d.flagMu.Lock()
	d.confirmationMode = on
	d.flagMu.Unlock()
}

// IsFinished reports whether the conversation has reached
// AgentFinishedEvent.
func (d *Driver) IsFinished() bool {
	d.flagMu.Lock()
	defer d.flagMu.Unlock()
	return d.finished
}

// IsPaused reports whether Pause has been called without a matching
// Resume.
func (d *Driver) IsPaused() bool {
	d.flagMu.Lock()
	defer d.flagMu.Unlock()
	return d.paused
}

// PendingCallIDs returns the call ids of the action batch currently
// waiting for confirmation, if any.
func (d *Driver) PendingCallIDs() []string {
	d.flagMu.Lock()
	defer d.flagMu.Unlock()
	out := make([]string, len(d.pendingCallIDs))
	copy(out, d.pendingCallIDs)
	return out
}

// RejectPendingActions rejects the action batch currently waiting for
// confirmation, synthesizing a rejected Observation for each pending
// call id and clearing the wait so Run can proceed to the next step.
func (d *Driver) RejectPendingActions(ctx context.Context, reason string) error {
	d.flagMu.Lock()
	callIDs := make([]string, len(d.pendingCallIDs))
	copy(callIDs, d.pendingCallIDs)
	d.flagMu.Unlock()

	if len(callIDs) == 0 {
		return nil
	}

	if _, err := d.appendEvent(ctx, models.Event{
		Type:      models.EventTypeRejection,
		Source:    models.EventSourceUser,
		Rejection: &models.RejectionEvent{CallIDs: callIDs, Reason: reason},
	}); err != nil {
		return err
	}

	log, err := d.loadLog(ctx)
	if err != nil {
		return err
	}
	actionsByID := indexActionsByCallID(log)

	for _, id := range callIDs {
		tool := ""
		if a, ok := actionsByID[id]; ok {
			tool = a.Tool
		}
		if _, err := d.appendEvent(ctx, models.Event{
			Type:   models.EventTypeObservation,
			Source: models.EventSourceSystem,
			Observation: &models.ObservationEvent{
				CallID:   id,
				Tool:     tool,
				Output:   reason,
				IsError:  true,
				Rejected: true,
			},
		}); err != nil {
			return err
		}
	}

	d.flagMu.Lock()
	d.waitingConfirmation = false
	d.pendingCallIDs = nil
	d.flagMu.Unlock()
	return nil
}

func indexActionsByCallID(log []models.Event) map[string]models.ActionEvent {
	out := make(map[string]models.ActionEvent)
	for _, ev := range log {
		if ev.Type == models.EventTypeAction && ev.Action != nil {
			out[ev.Action.CallID] = *ev.Action
		}
	}
	return out
}

// Run drives the step loop until the conversation finishes, is paused,
// starts waiting for confirmation, hits its per-run iteration cap, or
// ctx is cancelled. It is safe to call again after a non-finished,
// non-error return (e.g. after Resume or after confirming/rejecting a
// pending batch) to continue the same conversation.
func (d *Driver) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}

	if err := d.ensureSystemPrompt(ctx); err != nil {
		return result, err
	}

	for {
		select {
		case <-ctx.Done():
			d.emitter.Cancelled(ctx)
			return result, ctx.Err()
		default:
		}

		d.flagMu.Lock()
		paused, finished, iteration, waiting := d.paused, d.finished, d.iteration, d.waitingConfirmation
		d.flagMu.Unlock()

		if finished {
			result.Finished = true
			return result, nil
		}
		if paused {
			result.Paused = true
			return result, nil
		}
		if waiting {
			// Per §4.2 step 3 / §5, a subsequent Run call is itself what
			// resumes a confirmation-mode pause: it executes the pending
			// batch in place and falls through to the next iteration,
			// rather than requiring the separate ExecutePendingBatch call.
			resumed, err := d.resumePendingBatch(ctx)
			if err != nil {
				return result, err
			}
			if !resumed {
				result.WaitingForConfirmation = true
				return result, nil
			}
			d.emitter.StepFinished(ctx)
			d.flagMu.Lock()
			finishedNow := d.finished
			d.flagMu.Unlock()
			if finishedNow {
				result.Finished = true
				return result, nil
			}
			continue
		}

		if iteration >= d.opts.MaxIterationsPerRun {
			if _, err := d.appendEvent(ctx, models.Event{
				Type:   models.EventTypeAgentError,
				Source: models.EventSourceSystem,
				AgentError: &models.AgentErrorEvent{
					Message: "maximum iterations for this run exceeded",
					Code:    "max_iterations",
				},
			}); err != nil {
				return result, err
			}
			result.Iterations = iteration
			return result, nil
		}

		d.emitter.SetStep(iteration)
		d.emitter.StepStarted(ctx)

		log, err := d.loadLog(ctx)
		if err != nil {
			return result, err
		}

		if stuck, reason := d.detectStuck(log); stuck {
			d.emitter.Stuck(ctx, reason)
			if _, err := d.appendEvent(ctx, models.Event{
				Type:       models.EventTypeAgentError,
				Source:     models.EventSourceSystem,
				AgentError: &models.AgentErrorEvent{Message: reason, Code: "stuck"},
			}); err != nil {
				return result, err
			}
			d.flagMu.Lock()
			d.finished = true
			d.flagMu.Unlock()
			result.Finished = true
			return result, nil
		}

		view := models.ViewForLLM(log)

		if condensed, ok, cerr := d.agent.Condense(ctx, log); cerr == nil && ok {
			if _, err := d.appendEvent(ctx, condensed); err != nil {
				return result, err
			}
			d.emitter.Condensed(ctx)
			continue
		}

		d.flagMu.Lock()
		continuation := d.continuation
		d.flagMu.Unlock()

		stepResult, err := d.agent.Step(ctx, view, continuation)
		if err != nil {
			if IsContextWindowExceeded(err) {
				if condensed, ok, cerr := d.agent.Condense(ctx, log); cerr == nil && ok {
					if _, aerr := d.appendEvent(ctx, condensed); aerr != nil {
						return result, aerr
					}
					d.emitter.Condensed(ctx)
					continue
				}
				// Condensation couldn't shrink the view further; fall
				// through to the ordinary terminal AgentErrorEvent path.
			}

			if _, aerr := d.appendEvent(ctx, models.Event{
				Type:   models.EventTypeAgentError,
				Source: models.EventSourceSystem,
				AgentError: &models.AgentErrorEvent{
					Message:   err.Error(),
					Retriable: false,
				},
			}); aerr != nil {
				return result, aerr
			}
			d.emitter.Error(ctx, err, false)
			d.flagMu.Lock()
			d.finished = true
			d.flagMu.Unlock()
			result.Finished = true
			return result, nil
		}
		d.emitter.ActFinished(ctx, 0, 0)

		d.flagMu.Lock()
		d.continuation = stepResult.Continuation
		d.flagMu.Unlock()

		if stepResult.Message != nil {
			if _, err := d.appendEvent(ctx, models.Event{
				Type:    models.EventTypeMessage,
				Source:  models.EventSourceAgent,
				Message: stepResult.Message,
			}); err != nil {
				return result, err
			}
			d.emitter.StepFinished(ctx)
			return result, nil
		}

		d.flagMu.Lock()
		confirmOn := d.confirmationMode
		d.flagMu.Unlock()

		actions := stepResult.Actions
		levels := d.agent.ClassifyRisk(ctx, actions, view)
		forceConfirm := false
		for i := range actions {
			if i < len(levels) {
				actions[i].RiskLevel = levels[i]
			}
			switch actions[i].RiskLevel {
			case models.RiskLevelHigh:
				forceConfirm = true
			case models.RiskLevelMedium:
				d.emitter.RiskFlagged(ctx, actions[i].CallID, actions[i].Tool, "medium risk action")
			}
		}

		for i := range actions {
			if _, err := d.appendEvent(ctx, models.Event{
				Type:   models.EventTypeAction,
				Source: models.EventSourceAgent,
				Action: &actions[i],
			}); err != nil {
				return result, err
			}
		}

		if confirmOn || forceConfirm {
			callIDs := make([]string, len(actions))
			for i, a := range actions {
				callIDs[i] = a.CallID
			}
			reason := "confirmation mode enabled"
			if forceConfirm {
				reason = "high risk action requires confirmation"
			}
			if _, err := d.appendEvent(ctx, models.Event{
				Type:   models.EventTypePause,
				Source: models.EventSourceSystem,
				Pause:  &models.PauseEvent{Reason: reason, PendingCallIDs: callIDs},
			}); err != nil {
				return result, err
			}
			d.flagMu.Lock()
			d.waitingConfirmation = true
			d.pendingCallIDs = callIDs
			d.flagMu.Unlock()
			d.emitter.StepFinished(ctx)
			result.WaitingForConfirmation = true
			return result, nil
		}

		if err := d.executeBatch(ctx, actions); err != nil {
			return result, err
		}

		d.flagMu.Lock()
		d.iteration++
		finishedNow := d.finished
		d.flagMu.Unlock()
		d.emitter.StepFinished(ctx)

		if finishedNow {
			result.Finished = true
			return result, nil
		}
	}
}

// ExecutePendingBatch executes the action batch currently waiting for
// confirmation (e.g. after a caller approves it) and resumes the step
// loop in the same call. It is now a thin convenience over the same
// resume Run performs itself on a second call (§5); kept as an explicit
// entry point for callers that want to approve and resume in one step
// without relying on Run's implicit detection.
func (d *Driver) ExecutePendingBatch(ctx context.Context) (*RunResult, error) {
	if _, err := d.resumePendingBatch(ctx); err != nil {
		return nil, err
	}
	return d.Run(ctx)
}

// resumePendingBatch executes the action batch currently waiting for
// confirmation, appends its Observations, and clears the wait. Returns
// resumed=false with no error if nothing was pending.
func (d *Driver) resumePendingBatch(ctx context.Context) (resumed bool, err error) {
	d.flagMu.Lock()
	callIDs := append([]string(nil), d.pendingCallIDs...)
	waiting := d.waitingConfirmation
	d.flagMu.Unlock()

	if !waiting {
		return false, nil
	}

	log, err := d.loadLog(ctx)
	if err != nil {
		return false, err
	}
	actionsByID := indexActionsByCallID(log)
	actions := make([]models.ActionEvent, 0, len(callIDs))
	for _, id := range callIDs {
		if a, ok := actionsByID[id]; ok {
			actions = append(actions, a)
		}
	}

	if err := d.executeBatch(ctx, actions); err != nil {
		return false, err
	}

	d.flagMu.Lock()
	d.waitingConfirmation = false
	d.pendingCallIDs = nil
	d.iteration++
	d.flagMu.Unlock()

	return true, nil
}

// executeBatch runs actions through the approval checker and executor,
// appends an Observation for each, applies the tool result guard, and —
// if the finish tool succeeded — appends AgentFinishedEvent and marks
// the conversation finished.
func (d *Driver) executeBatch(ctx context.Context, actions []models.ActionEvent) error {
	if len(actions) == 0 {
		return nil
	}

	toRun := make([]models.ActionEvent, 0, len(actions))
	denied := make(map[string]string)

	if d.runtime.ApprovalChecker != nil {
		for _, a := range actions {
			a := a
			decision, reason := d.runtime.ApprovalChecker.Check(ctx, d.conversationID, &a)
			if decision == ApprovalDenied {
				denied[a.CallID] = reason
				continue
			}
			toRun = append(toRun, a)
		}
	} else {
		toRun = append(toRun, actions...)
	}

	var results []*ExecutionResult
	if len(toRun) > 0 {
		for _, a := range toRun {
			d.emitter.ToolStarted(ctx, a.CallID, a.Tool)
		}
		results = d.executor.ExecuteAll(ctx, toRun)
		for i, r := range results {
			success := r.Error == nil && (r.Result == nil || !r.Result.IsError)
			d.emitter.ToolFinished(ctx, toRun[i].CallID, toRun[i].Tool, success, r.Duration)
		}
	}

	byCallID := make(map[string]*ExecutionResult, len(actions))
	for _, r := range results {
		byCallID[r.CallID] = r
	}

	finishedCallID, finishedMessage := "", ""

	for _, a := range actions {
		if reason, ok := denied[a.CallID]; ok {
			if err := d.appendObservation(ctx, models.ObservationEvent{
				CallID: a.CallID, Tool: a.Tool, Output: reason, IsError: true,
			}); err != nil {
				return err
			}
			continue
		}

		r, ok := byCallID[a.CallID]
		if !ok {
			if err := d.appendObservation(ctx, models.ObservationEvent{
				CallID: a.CallID, Tool: a.Tool, Output: "no result", IsError: true,
			}); err != nil {
				return err
			}
			continue
		}

		switch {
		case r.Error != nil:
			if err := d.appendObservation(ctx, models.ObservationEvent{
				CallID: a.CallID, Tool: a.Tool, Output: r.Error.Error(), IsError: true, Elapsed: r.Duration,
			}); err != nil {
				return err
			}
		case r.Result != nil:
			guarded := d.runtime.ToolResultGuard.Apply(a.Tool, *r.Result, d.agent.cfg.PolicyResolver)
			if err := d.appendObservation(ctx, models.ObservationEvent{
				CallID: a.CallID, Tool: a.Tool, Output: guarded.Content, IsError: guarded.IsError, Elapsed: r.Duration,
			}); err != nil {
				return err
			}
			if a.Tool == FinishToolName && !guarded.IsError {
				finishedCallID = a.CallID
				finishedMessage = guarded.Content
			}
		default:
			if err := d.appendObservation(ctx, models.ObservationEvent{
				CallID: a.CallID, Tool: a.Tool, Output: "no result", IsError: true,
			}); err != nil {
				return err
			}
		}
	}

	if finishedCallID != "" {
		if _, err := d.appendEvent(ctx, models.Event{
			Type:          models.EventTypeAgentFinished,
			Source:        models.EventSourceAgent,
			AgentFinished: &models.AgentFinishedEvent{FinalMessage: finishedMessage},
		}); err != nil {
			return err
		}
		d.flagMu.Lock()
		d.finished = true
		d.flagMu.Unlock()
		d.emitter.Finished(ctx)
	}

	return nil
}

func (d *Driver) appendObservation(ctx context.Context, obs models.ObservationEvent) error {
	_, err := d.appendEvent(ctx, models.Event{
		Type:        models.EventTypeObservation,
		Source:      models.EventSourceSystem,
		Observation: &obs,
	})
	return err
}

func (d *Driver) ensureSystemPrompt(ctx context.Context) error {
	if d.agent == nil {
		return nil
	}
	sp, err := d.agent.InitState(d.conversationID, d.opts.SystemPrompt)
	if err != nil {
		return err
	}
	if sp == nil {
		return nil
	}
	_, err = d.appendEvent(ctx, models.Event{
		Type:         models.EventTypeSystemPrompt,
		Source:       models.EventSourceSystem,
		SystemPrompt: sp,
	})
	return err
}

// detectStuck implements the trailing-window stuck heuristic: if the
// last k ActionEvents in log all name the same normalized tool with
// identical canonicalized arguments, and their matching Observations all
// carry the same error output, the agent is repeating a failing call
// with no progress.
func (d *Driver) detectStuck(log []models.Event) (bool, string) {
	k := d.opts.StuckWindow
	type pair struct {
		action models.ActionEvent
		obs    *models.ObservationEvent
	}

	obsByCallID := make(map[string]*models.ObservationEvent)
	for i := range log {
		if log[i].Type == models.EventTypeObservation && log[i].Observation != nil {
			o := log[i].Observation
			obsByCallID[o.CallID] = o
		}
	}

	var pairs []pair
	for i := range log {
		if log[i].Type != models.EventTypeAction || log[i].Action == nil {
			continue
		}
		a := *log[i].Action
		o := obsByCallID[a.CallID]
		if o == nil || !o.IsError {
			pairs = nil // any successful or pending call resets the trailing window
			continue
		}
		pairs = append(pairs, pair{action: a, obs: o})
	}

	if len(pairs) < k {
		return false, ""
	}
	trailing := pairs[len(pairs)-k:]

	var resolver *policy.Resolver
	if d.agent != nil {
		resolver = d.agent.cfg.PolicyResolver
	}

	first := trailing[0]
	firstTool := normalizeToolName(first.action.Tool, resolver)
	firstArgs := canonicalizeArgs(first.action.Args)
	firstErr := first.obs.Output

	for _, p := range trailing[1:] {
		if normalizeToolName(p.action.Tool, resolver) != firstTool {
			return false, ""
		}
		if canonicalizeArgs(p.action.Args) != firstArgs {
			return false, ""
		}
		if p.obs.Output != firstErr {
			return false, ""
		}
	}

	return true, fmt.Sprintf("repeated failing call to %q with identical arguments %d times", firstTool, k)
}

// canonicalizeArgs produces a stable string for argument comparison by
// round-tripping through a sorted-key map; malformed JSON compares by
// raw bytes instead of failing the whole stuck check.
func canonicalizeArgs(raw []byte) string {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return string(raw)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, len(raw))
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		ordered = append(ordered, vb...)
	}
	ordered = append(ordered, '}')
	return string(ordered)
}
