// Package toolrunner implements C3: serial execution of the tool calls
// in one assistant message, with per-call cancellation, steering
// interrupts, and the tool_execution_start/end event bracket.
package toolrunner

import (
	"context"
	"fmt"

	"github.com/genloop/genloop/internal/event"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/tool"
)

// SteeringSource is polled once per completed tool call; a non-empty
// return causes the runner to skip every remaining call in this batch.
type SteeringSource func() []message.Message

// PreExecute is consulted before a call's tool body runs. Returning
// ok=true substitutes result for the real Execute call entirely — the
// engine uses this to splice in permission/hook rejections while still
// getting the full tool_execution_start/end bracket and steering
// interleaving that Run owns.
type PreExecute func(call message.ToolCall) (result message.ToolResult, ok bool)

// Result is what Run hands back to the Turn Engine.
type Result struct {
	// ToolResults holds one ToolResultMessage per call in the input
	// batch, in order — including synthesized "Skipped" results for any
	// calls a steering interrupt preempted. Calls not started because
	// ctx was already done have no entry.
	ToolResults []message.Message
	// Steering is the non-empty steering batch that preempted execution,
	// or nil if every call ran to completion.
	Steering []message.Message
}

// Run executes calls serially against registry. Execution stops early,
// with every remaining call synthesized as "Skipped", the first time
// steering yields a non-empty batch. It also stops early, with no
// synthesis, if ctx is already done before a call would start.
func Run(ctx context.Context, registry *tool.Registry, calls []message.ToolCall, steering SteeringSource, preExecute PreExecute, sink event.Sink) Result {
	if sink == nil {
		sink = event.NoopSink{}
	}

	var result Result
	for i, call := range calls {
		if ctx.Err() != nil {
			break
		}

		msg := runOne(ctx, registry, call, preExecute, sink)
		result.ToolResults = append(result.ToolResults, msg)

		if steering == nil {
			continue
		}
		pending := steering()
		if len(pending) == 0 {
			continue
		}
		result.Steering = pending
		result.ToolResults = append(result.ToolResults, skipRemaining(calls[i+1:], sink)...)
		return result
	}
	return result
}

// runOne executes a single call through the full event bracket, never
// letting a tool body panic escape as an uncaught process failure.
func runOne(ctx context.Context, registry *tool.Registry, call message.ToolCall, preExecute PreExecute, sink event.Sink) message.Message {
	sink.Emit(event.Event{Kind: event.ToolExecutionStart, ToolCallID: call.ID, ToolName: call.Name, ToolArgs: call.Arguments})

	result := execute(ctx, registry, call, preExecute, sink)

	sink.Emit(event.Event{Kind: event.ToolExecutionEnd, ToolCallID: call.ID, ToolName: call.Name, ToolResult: result, ToolIsError: result.IsError})

	msg := message.NewToolResultMessage(call.ID, call.Name, result)
	sink.Emit(event.Event{Kind: event.MessageStart, Message: msg})
	sink.Emit(event.Event{Kind: event.MessageEnd, Message: msg})
	return msg
}

func execute(ctx context.Context, registry *tool.Registry, call message.ToolCall, preExecute PreExecute, sink event.Sink) (result message.ToolResult) {
	if preExecute != nil {
		if r, ok := preExecute(call); ok {
			return r
		}
	}
	t, ok := registry.Get(call.Name)
	if !ok {
		return message.ErrorResult("Tool not found: " + call.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			result = message.ErrorResult(fmt.Sprintf("%v", r))
		}
	}()
	progress := progressEmitter{callID: call.ID, name: call.Name, sink: sink}
	return t.Execute(ctx, call.ID, call.Arguments, progress)
}

// skipRemaining synthesizes a "Skipped" result for every call a
// steering interrupt preempted, still bracketed by the full event
// quadruple so the tool-call/tool-result invariant holds.
func skipRemaining(calls []message.ToolCall, sink event.Sink) []message.Message {
	out := make([]message.Message, 0, len(calls))
	for _, call := range calls {
		sink.Emit(event.Event{Kind: event.ToolExecutionStart, ToolCallID: call.ID, ToolName: call.Name, ToolArgs: call.Arguments})
		skipped := message.ErrorResult("Skipped")
		sink.Emit(event.Event{Kind: event.ToolExecutionEnd, ToolCallID: call.ID, ToolName: call.Name, ToolResult: skipped, ToolIsError: true})
		msg := message.NewToolResultMessage(call.ID, call.Name, skipped)
		sink.Emit(event.Event{Kind: event.MessageStart, Message: msg})
		sink.Emit(event.Event{Kind: event.MessageEnd, Message: msg})
		out = append(out, msg)
	}
	return out
}

// progressEmitter adapts a tool's ProgressSink to tool_execution_update events.
type progressEmitter struct {
	callID string
	name   string
	sink   event.Sink
}

func (p progressEmitter) Progress(text string) {
	p.sink.Emit(event.Event{Kind: event.ToolExecutionUpdate, ToolCallID: p.callID, ToolName: p.name, ToolProgress: text})
}
