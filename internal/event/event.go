// Package event defines the lifecycle event union observers of a run
// subscribe to. It is a leaf package that depends only on
// internal/message, so both internal/toolrunner and internal/core can emit through
// the same vocabulary without an import cycle between them.
package event

import "github.com/genloop/genloop/internal/message"

// Kind discriminates the Event union.
type Kind string

const (
	AgentStart          Kind = "agent_start"
	AgentEnd            Kind = "agent_end"
	TurnStart           Kind = "turn_start"
	TurnEnd             Kind = "turn_end"
	MessageStart        Kind = "message_start"
	MessageUpdate       Kind = "message_update"
	MessageEnd          Kind = "message_end"
	ToolExecutionStart  Kind = "tool_execution_start"
	ToolExecutionUpdate Kind = "tool_execution_update"
	ToolExecutionEnd    Kind = "tool_execution_end"
	CompactionStart     Kind = "compaction_start"
	CompactionEnd       Kind = "compaction_end"
)

// Event is one entry in the append-only lifecycle stream described by
// spec §4.4. Only the fields relevant to Kind are meaningful.
type Event struct {
	Kind Kind

	// RunID identifies the run (prompt()/continue() invocation) this
	// event belongs to, set on every event emitted during that run.
	RunID string

	// MessageStart / MessageUpdate / MessageEnd.
	Message message.Message
	Delta   string

	// ToolExecutionStart / ToolExecutionUpdate / ToolExecutionEnd.
	ToolCallID   string
	ToolName     string
	ToolArgs     map[string]any
	ToolResult   message.ToolResult
	ToolIsError  bool
	ToolProgress string

	// TurnEnd: the assistant message that closed the turn and the tool
	// result messages gathered while dispatching its tool calls.
	Assistant   message.Message
	ToolResults []message.Message

	// AgentEnd: every message appended to the conversation during the run.
	NewMessages []message.Message

	// CompactionStart / CompactionEnd.
	TokensBefore int
	Summary      string
}

// Sink receives emitted events in order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit implements Sink.
func (f SinkFunc) Emit(e Event) { f(e) }

// NoopSink discards every event.
type NoopSink struct{}

// Emit implements Sink.
func (NoopSink) Emit(Event) {}

// Multi fans an event out to every sink in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}
