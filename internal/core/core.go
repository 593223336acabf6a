// Package core implements the Turn Engine (C4): the outermost control
// loop that consumes prompts, drives model streams, dispatches tools
// through the Tool Runner, drains steering/follow-up queues, and emits
// the lifecycle events observers subscribe to.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/genloop/genloop/internal/client"
	"github.com/genloop/genloop/internal/compactor"
	"github.com/genloop/genloop/internal/estimator"
	"github.com/genloop/genloop/internal/event"
	"github.com/genloop/genloop/internal/hooks"
	"github.com/genloop/genloop/internal/log"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/permission"
	"github.com/genloop/genloop/internal/provider"
	"github.com/genloop/genloop/internal/tool"
	"github.com/genloop/genloop/internal/toolrunner"
)

// Caller-state errors, raised synchronously before any event is
// emitted (spec.md §7, "invalid-caller-state").
var (
	ErrAlreadyStreaming = errors.New("core: a run is already active")
	ErrNoMessages       = errors.New("core: continue() requires at least one prior message")
	ErrLastIsAssistant  = errors.New("core: continue() has nothing to follow up — last message is an assistant message")
)

// ContextTransform is an optional hook invoked with the messages about
// to be sent and the run's cancel context, immediately before they are
// handed to the stream. Its return replaces the messages for that
// stream call only.
type ContextTransform func(ctx context.Context, messages []message.Message) []message.Message

// Engine is one agent instance: conversation state, provider client,
// tool set, and the steering/follow-up queues that mediate a run.
// At most one run is active at a time (AgentState.is_streaming).
type Engine struct {
	Client       *client.Client
	SystemPrompt string

	Tools      *tool.Set
	Registry   *tool.Registry
	Permission permission.Checker
	Hooks      *hooks.Engine

	ContextWindow     int
	Compaction        compactor.CompactionSettings
	CompactionModelID string
	CompactionFocus   string
	ContextTransform  ContextTransform

	mu          sync.Mutex
	messages    []message.Message
	isStreaming bool
	cancel      context.CancelFunc
	err         error
	runID       string

	previousSummary       string
	previousReadFiles     []string
	previousModifiedFiles []string

	steering messageQueue
	followUp messageQueue

	obsMu     sync.Mutex
	observers []event.Sink
}

// NewEngine returns an Engine with both queues in one-at-a-time mode
// (spec.md §4.4's default discharge policy).
func NewEngine() *Engine {
	return &Engine{
		steering: messageQueue{mode: DrainOneAtATime},
		followUp: messageQueue{mode: DrainOneAtATime},
	}
}

// Subscribe registers an observer for every event emitted by future
// runs, returning an unsubscribe function.
func (e *Engine) Subscribe(sink event.Sink) (unsubscribe func()) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, sink)
	idx := len(e.observers) - 1
	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		if idx < len(e.observers) {
			e.observers[idx] = nil
		}
	}
}

func (e *Engine) emit(ev event.Event) {
	e.mu.Lock()
	ev.RunID = e.runID
	e.mu.Unlock()

	e.obsMu.Lock()
	observers := make([]event.Sink, len(e.observers))
	copy(observers, e.observers)
	e.obsMu.Unlock()
	for _, o := range observers {
		if o != nil {
			o.Emit(ev)
		}
	}
}

// Steer enqueues a message for mid-run injection (polled at run start,
// after each tool call, and once per turn after turn_end).
func (e *Engine) Steer(m message.Message) { e.steering.Enqueue(m) }

// FollowUp enqueues a message injected only when the turn loop would
// otherwise terminate naturally.
func (e *Engine) FollowUp(m message.Message) { e.followUp.Enqueue(m) }

// SetSteeringMode changes the steering queue's discharge policy.
func (e *Engine) SetSteeringMode(mode DrainMode) { e.steering.setMode(mode) }

// SetFollowUpMode changes the follow-up queue's discharge policy.
func (e *Engine) SetFollowUpMode(mode DrainMode) { e.followUp.setMode(mode) }

// IsStreaming reports whether a run is currently active.
func (e *Engine) IsStreaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isStreaming
}

// Err returns the error from the most recently completed run, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Messages returns a snapshot of the conversation so far. Callers must
// not mutate the conversation (via SetMessages) while a
// run is active.
func (e *Engine) Messages() []message.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]message.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// SetMessages replaces the conversation wholesale. Forbidden while a
// run is active (caller contract, spec.md §5).
func (e *Engine) SetMessages(msgs []message.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = msgs
}

// Prompt normalizes input text (and optional images) into a
// UserMessage and begins a run. Rejects with ErrAlreadyStreaming if a
// run is already active.
func (e *Engine) Prompt(ctx context.Context, input string, images []message.ImageData) error {
	if e.IsStreaming() {
		return ErrAlreadyStreaming
	}
	return e.run(ctx, []message.Message{message.NewUserMessage(input, images)})
}

// Continue begins a run with no new prompt messages, resuming after a
// tool round-trip or a steering/follow-up injection left pending.
func (e *Engine) Continue(ctx context.Context) error {
	if e.IsStreaming() {
		return ErrAlreadyStreaming
	}
	snapshot := e.Messages()
	if len(snapshot) == 0 {
		return ErrNoMessages
	}
	if snapshot[len(snapshot)-1].Role == message.RoleAssistant {
		return ErrLastIsAssistant
	}
	return e.run(ctx, nil)
}

// Abort trips the active run's cancel signal. Safe to call when idle;
// idempotent within a run.
func (e *Engine) Abort() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func appendBracket(m message.Message, emit func(event.Event)) {
	emit(event.Event{Kind: event.MessageStart, Message: m})
	emit(event.Event{Kind: event.MessageEnd, Message: m})
}

// run drives one full invocation of prompt()/continue(): the run
// algorithm of spec.md §4.4.
func (e *Engine) run(ctx context.Context, prompts []message.Message) error {
	ctx, span := otel.Tracer("genloop/core").Start(ctx, "agent.run")
	defer span.End()

	runID := uuid.New().String()
	span.SetAttributes(attribute.String("genloop.run_id", runID))

	e.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	e.isStreaming = true
	e.cancel = cancel
	e.err = nil
	e.runID = runID
	e.mu.Unlock()

	var newMessages []message.Message
	appendMessage := func(m message.Message) {
		e.mu.Lock()
		e.messages = append(e.messages, m)
		e.mu.Unlock()
		newMessages = append(newMessages, m)
	}

	defer func() {
		e.mu.Lock()
		e.isStreaming = false
		e.cancel = nil
		e.runID = ""
		e.mu.Unlock()
	}()

	e.emit(event.Event{Kind: event.AgentStart})
	e.emit(event.Event{Kind: event.TurnStart})

	for _, p := range prompts {
		appendBracket(p, e.emit)
		appendMessage(p)
	}

	if initial := e.steering.Drain(); len(initial) > 0 {
		for _, m := range initial {
			appendBracket(m, e.emit)
			appendMessage(m)
		}
	}

	for {
		if err := e.compactIfNeeded(runCtx); err != nil {
			e.mu.Lock()
			e.err = err
			e.mu.Unlock()
			e.emit(event.Event{Kind: event.AgentEnd, NewMessages: newMessages})
			return err
		}

		final, streamErr := e.streamTurn(runCtx)
		appendMessage(final)

		if final.StopReason == message.StopError || final.StopReason == message.StopAborted {
			e.emit(event.Event{Kind: event.TurnEnd, Assistant: final})
			e.emit(event.Event{Kind: event.AgentEnd, NewMessages: newMessages})
			if streamErr != nil {
				e.mu.Lock()
				e.err = streamErr
				e.mu.Unlock()
			}
			return nil
		}

		calls := final.ToolCalls()
		hasToolCalls := len(calls) > 0
		var toolResults, steeringAfterTools []message.Message
		if hasToolCalls {
			toolResults, steeringAfterTools = e.dispatchTools(runCtx, calls, appendMessage)
		}

		e.emit(event.Event{Kind: event.TurnEnd, Assistant: final, ToolResults: toolResults})

		pending := steeringAfterTools
		if len(pending) == 0 {
			pending = e.steering.Drain()
		}

		if len(pending) > 0 || hasToolCalls {
			e.emit(event.Event{Kind: event.TurnStart})
			for _, m := range pending {
				appendBracket(m, e.emit)
				appendMessage(m)
			}
			continue
		}

		followUp := e.followUp.Drain()
		if len(followUp) > 0 {
			e.emit(event.Event{Kind: event.TurnStart})
			for _, m := range followUp {
				appendBracket(m, e.emit)
				appendMessage(m)
			}
			continue
		}
		break
	}

	e.emit(event.Event{Kind: event.AgentEnd, NewMessages: newMessages})
	return nil
}

// compactIfNeeded checks the estimator and, if over threshold,
// delegates to the Compactor and splices its checkpoint in place of
// the summarized prefix.
func (e *Engine) compactIfNeeded(ctx context.Context) error {
	if !e.Compaction.Enabled {
		return nil
	}
	snapshot := e.Messages()
	usage := estimator.EstimateContext(snapshot)
	if !compactor.ShouldCompact(usage.Tokens, e.ContextWindow, e.Compaction) {
		return nil
	}

	e.emit(event.Event{Kind: event.CompactionStart, TokensBefore: usage.Tokens})

	result, err := compactor.Compact(ctx, e.Client.Provider, e.compactionModelID(), snapshot, e.Compaction, e.previousSummary, e.CompactionFocus, usage.Tokens, e.previousReadFiles, e.previousModifiedFiles)
	if err != nil {
		return fmt.Errorf("summarization-failure: %w", err)
	}

	checkpoint := compactor.CheckpointMessage(result)
	spliced := make([]message.Message, 0, len(snapshot)-result.FirstKeptIndex+1)
	spliced = append(spliced, checkpoint)
	spliced = append(spliced, snapshot[result.FirstKeptIndex:]...)

	e.mu.Lock()
	e.messages = spliced
	e.mu.Unlock()
	e.previousSummary = result.SummaryText
	e.previousReadFiles = result.ReadFiles
	e.previousModifiedFiles = result.ModifiedFiles

	log.Logger().Debug("compacted conversation",
		zap.Int("tokens_before", result.TokensBefore),
		zap.Int("first_kept_index", result.FirstKeptIndex),
	)

	e.emit(event.Event{Kind: event.CompactionEnd, Summary: result.SummaryText})
	return nil
}

func (e *Engine) compactionModelID() string {
	if e.CompactionModelID != "" {
		return e.CompactionModelID
	}
	return e.Client.Config.ModelID
}

// streamTurn opens one model stream and folds its events into a
// terminal assistant message, honoring the context transform and
// cancellation at every suspension point.
func (e *Engine) streamTurn(ctx context.Context) (message.Message, error) {
	messages := e.Messages()
	if e.ContextTransform != nil {
		messages = e.ContextTransform(ctx, messages)
	}

	manifests := e.toolManifests()

	turn := log.NextTurn()
	ch, err := e.Client.Stream(ctx, e.SystemPrompt, messages, manifests)
	if err != nil {
		final := errorMessage(err.Error())
		appendBracket(final, e.emit)
		return final, err
	}
	log.WriteDevRequest(e.Client.Name(), e.Client.Config.ModelID, e.Client.Options(e.SystemPrompt, messages, manifests), turn)

	final := e.consumeStream(ctx, ch)
	log.WriteDevResponse(e.Client.Name(), final, turn)
	return final, nil
}

func (e *Engine) toolManifests() []provider.ToolManifest {
	if e.Tools == nil {
		return nil
	}
	return e.Tools.Tools()
}

// consumeStream folds one provider event stream into a terminal
// assistant message, emitting message_start/message_update/message_end
// per spec.md §4.4, and synthesizing an "Aborted" message the moment
// the run's cancel signal trips.
func (e *Engine) consumeStream(ctx context.Context, ch <-chan provider.StreamEvent) message.Message {
	started := false
	for {
		select {
		case <-ctx.Done():
			final := abortedMessage()
			if started {
				e.emit(event.Event{Kind: event.MessageEnd, Message: final})
			} else {
				appendBracket(final, e.emit)
			}
			return final
		case ev, ok := <-ch:
			if !ok {
				final := abortedMessage()
				e.emit(event.Event{Kind: event.MessageEnd, Message: final})
				return final
			}
			switch ev.Type {
			case provider.EventStart:
				started = true
				e.emit(event.Event{Kind: event.MessageStart, Message: ev.Partial})
			case provider.EventTextDelta, provider.EventThinkingDelta, provider.EventToolCallDelta:
				e.emit(event.Event{Kind: event.MessageUpdate, Message: ev.Partial, Delta: ev.Delta})
			case provider.EventDone, provider.EventError:
				final := ev.Final
				e.emit(event.Event{Kind: event.MessageEnd, Message: final})
				return final
			default:
				// text_start/end, thinking_start/end, toolcall_start/end:
				// suspension points only, no observer-facing update.
			}
		}
	}
}

// dispatchTools runs hook and permission pre-checks, then delegates
// serial dispatch and steering interleaving to the Tool Runner.
func (e *Engine) dispatchTools(ctx context.Context, calls []message.ToolCall, appendMessage func(message.Message)) (toolResults, steeringAfter []message.Message) {
	calls, blocked := e.applyHooks(ctx, calls)

	sink := event.SinkFunc(func(ev event.Event) {
		e.emit(ev)
		if ev.Kind == event.MessageEnd && ev.Message.Role == message.RoleToolResult {
			appendMessage(ev.Message)
		}
	})

	preExecute := func(call message.ToolCall) (message.ToolResult, bool) {
		if reason, ok := blocked[call.ID]; ok {
			return message.ErrorResult(reason), true
		}
		if e.Permission == nil {
			return message.ToolResult{}, false
		}
		if e.Permission.Check(call.Name, call.Arguments) == permission.Reject {
			return message.ErrorResult(fmt.Sprintf("Tool %s is not permitted in this mode", call.Name)), true
		}
		return message.ToolResult{}, false
	}

	result := toolrunner.Run(ctx, e.Registry, calls, e.pollSteering, preExecute, sink)
	return result.ToolResults, result.Steering
}

// applyHooks runs PreToolUse hooks over the whole batch up front
// (matching the teacher's FilterToolCalls timing) and rewrites
// arguments a hook updated. Calls a hook blocks are returned in
// blocked, keyed by call ID, so the Tool Runner's PreExecute hook can
// synthesize their result without the registry ever seeing them.
func (e *Engine) applyHooks(ctx context.Context, calls []message.ToolCall) (out []message.ToolCall, blocked map[string]string) {
	if e.Hooks == nil {
		return calls, nil
	}
	out = make([]message.ToolCall, len(calls))
	for i, tc := range calls {
		outcome := e.Hooks.Execute(ctx, hooks.PreToolUse, hooks.HookInput{
			ToolName:  tc.Name,
			ToolInput: tc.Arguments,
			ToolUseID: tc.ID,
		})
		if outcome.ShouldBlock {
			if blocked == nil {
				blocked = make(map[string]string)
			}
			blocked[tc.ID] = "Blocked by hook: " + outcome.BlockReason
		} else if outcome.UpdatedInput != nil {
			tc.Arguments = outcome.UpdatedInput
		}
		out[i] = tc
	}
	return out, blocked
}

// pollSteering adapts the steering queue to toolrunner.SteeringSource.
func (e *Engine) pollSteering() []message.Message {
	return e.steering.Drain()
}

func errorMessage(text string) message.Message {
	m := message.NewAssistantMessage([]message.ContentBlock{message.Text(text)}, message.StopError, message.Usage{})
	m.ErrorMessage = text
	return m
}

func abortedMessage() message.Message {
	return message.NewAssistantMessage([]message.ContentBlock{message.Text("Aborted")}, message.StopAborted, message.Usage{})
}
