// Package compactor implements the Compactor (C2): cut-point selection,
// history/turn-prefix summarization, file-operation tracking, and the
// splice that rewrites a conversation prefix into a single synthetic
// checkpoint message.
//
// Grounded on the original Python compaction package: cut_point.py,
// summarize.py, file_ops.py, compact.py.
package compactor

import "github.com/genloop/genloop/internal/message"

// CutPoint describes where a conversation prefix may be safely replaced
// by a summary without splitting a tool call from its result.
type CutPoint struct {
	// FirstKeptIndex is the index, in the entries slice, of the first
	// message that survives compaction unchanged.
	FirstKeptIndex int
	// TurnStartIndex is the index of the most recent UserMessage
	// strictly before FirstKeptIndex, when the turn at FirstKeptIndex is
	// being split. -1 when not split.
	TurnStartIndex int
	// IsSplitTurn is true when FirstKeptIndex lands on an AssistantMessage,
	// meaning the turn that produced it must be partially summarized.
	IsSplitTurn bool
}

// isValidCutPoint reports whether a message at this role may begin the
// kept suffix: never a ToolResultMessage, since a result must remain
// attached to its call.
func isValidCutPoint(m message.Message) bool {
	return m.Role != message.RoleToolResult
}

// findValidCutPoints returns the indices of entries eligible to start
// the kept suffix, in ascending order.
func findValidCutPoints(entries []message.Message) []int {
	var points []int
	for i, m := range entries {
		if isValidCutPoint(m) {
			points = append(points, i)
		}
	}
	return points
}

// findTurnStartIndex scans backward from before cutIndex for the most
// recent UserMessage, which marks where the split turn began.
func findTurnStartIndex(entries []message.Message, cutIndex int) int {
	for i := cutIndex - 1; i >= 0; i-- {
		if entries[i].Role == message.RoleUser {
			return i
		}
	}
	return -1
}

// estimateFn is the token-cost function used while walking backward.
// Supplied by the caller (Compact passes internal/estimator.EstimateMessage),
// so cut-point selection can be driven by any cost function.
type estimateFn func(message.Message) int

// FindCutPoint walks entries backward accumulating estimated tokens
// until the running total exceeds keepRecentTokens, then snaps to the
// nearest valid cut point at or after that index. It extends the cut
// backward across any non-message entries immediately preceding the
// chosen message (entries with an empty Role act as opaque markers that
// travel with the message that follows them).
func FindCutPoint(entries []message.Message, keepRecentTokens int, estimate estimateFn) CutPoint {
	validPoints := findValidCutPoints(entries)
	if len(validPoints) == 0 {
		return CutPoint{FirstKeptIndex: len(entries), TurnStartIndex: -1}
	}

	chosen := validPoints[0]
	running := 0
	for i := len(entries) - 1; i >= 0; i-- {
		running += estimate(entries[i])
		if running > keepRecentTokens {
			chosen = nearestValidAtOrAfter(validPoints, i)
			break
		}
	}

	chosen = extendBackwardAcrossMarkers(entries, chosen)

	cp := CutPoint{FirstKeptIndex: chosen, TurnStartIndex: -1}
	if chosen < len(entries) && entries[chosen].Role == message.RoleAssistant {
		cp.TurnStartIndex = findTurnStartIndex(entries, chosen)
		cp.IsSplitTurn = true
	}
	return cp
}

// nearestValidAtOrAfter returns the smallest point in validPoints that
// is >= idx, or the last valid point if idx exceeds all of them.
func nearestValidAtOrAfter(validPoints []int, idx int) int {
	for _, p := range validPoints {
		if p >= idx {
			return p
		}
	}
	return validPoints[len(validPoints)-1]
}

// extendBackwardAcrossMarkers pulls the cut point backward over any
// zero-Role "marker" entries (e.g. configuration-change notices) that
// belong with the chosen message, so they are summarized together
// rather than orphaned in the kept suffix.
func extendBackwardAcrossMarkers(entries []message.Message, chosen int) int {
	for chosen > 0 && entries[chosen-1].Role == "" {
		chosen--
	}
	return chosen
}
