package client

import (
	"context"

	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/provider"
)

// FakeProvider is a test double implementing provider.LLMProvider. Each
// Stream call pops the next queued message from Responses and replays
// it as a `start` event followed by a `done` event; Events, if set for that call index,
// replays instead of synthesizing one.
//
// Usage:
//
//	fake := &client.FakeProvider{
//	    Responses: []message.Message{
//	        message.NewAssistantMessage([]message.ContentBlock{message.Text("hi")}, message.StopEndTurn, message.Usage{}),
//	    },
//	}
type FakeProvider struct {
	// Responses is the queue of terminal assistant messages to return,
	// consumed in order. Exhausted calls return a default end-turn reply.
	Responses []message.Message

	// Events, if non-nil, is consulted before Responses: Events[callIdx]
	// is replayed verbatim as the full event sequence for that call.
	Events map[int][]provider.StreamEvent

	// ProviderName defaults to "fake".
	ProviderName string
	// Models backs ListModels.
	Models []provider.ModelInfo

	// Calls records every CompletionOptions received, in order.
	Calls []provider.CompletionOptions

	callIdx int
}

// Name implements provider.LLMProvider.
func (f *FakeProvider) Name() string {
	if f.ProviderName != "" {
		return f.ProviderName
	}
	return "fake"
}

// Stream implements provider.LLMProvider.
func (f *FakeProvider) Stream(_ context.Context, opts provider.CompletionOptions) (<-chan provider.StreamEvent, error) {
	f.Calls = append(f.Calls, opts)
	idx := f.callIdx
	f.callIdx++

	ch := make(chan provider.StreamEvent, 8)
	go func() {
		defer close(ch)
		if events, ok := f.Events[idx]; ok {
			for _, ev := range events {
				ch <- ev
			}
			return
		}
		ch <- provider.StreamEvent{Type: provider.EventStart}
		final := f.next(idx)
		ch <- provider.StreamEvent{Type: provider.EventDone, Final: final, Reason: final.StopReason}
	}()
	return ch, nil
}

// ListModels implements provider.LLMProvider.
func (f *FakeProvider) ListModels(_ context.Context) ([]provider.ModelInfo, error) {
	return f.Models, nil
}

func (f *FakeProvider) next(idx int) message.Message {
	if idx >= len(f.Responses) {
		return message.NewAssistantMessage([]message.ContentBlock{message.Text("no more responses")}, message.StopEndTurn, message.Usage{})
	}
	return f.Responses[idx]
}
