package compactor

import (
	"context"
	"fmt"

	"github.com/genloop/genloop/internal/estimator"
	"github.com/genloop/genloop/internal/message"
	"github.com/genloop/genloop/internal/provider"
)

// CompactionSettings mirrors spec.md's CompactionSettings: whether
// compaction is active, how much headroom to reserve for the
// checkpoint and the continuing turn, and how much of the recent
// conversation to always keep verbatim.
type CompactionSettings struct {
	Enabled          bool
	ReserveTokens    int
	KeepRecentTokens int
}

// ShouldCompact implements the trigger policy exactly:
// enabled ∧ tokens > window - reserve_tokens (strict inequality).
func ShouldCompact(contextTokens, contextWindow int, settings CompactionSettings) bool {
	if !settings.Enabled {
		return false
	}
	return contextTokens > contextWindow-settings.ReserveTokens
}

// CompactionResult is what the Turn Engine splices into the
// conversation in place of the summarized prefix.
type CompactionResult struct {
	SummaryText    string
	FirstKeptIndex int
	TokensBefore   int
	ReadFiles      []string
	ModifiedFiles  []string
}

// Compact selects a cut point over entries, summarizes the discarded
// prefix (and, for a split turn, the turn prefix separately), tracks
// file operations across the discarded range, and returns the result
// ready for the caller to splice in.
//
// previousSummary, when non-empty, is the summary from the prior
// compaction checkpoint; its presence selects the "update" prompt over
// the "initial" one so information already captured is preserved.
//
// previousReadFiles and previousModifiedFiles are the ReadFiles and
// ModifiedFiles from the prior CompactionResult, if any. They seed the
// new scan so files touched in a prefix discarded by an earlier
// compaction are not dropped from the accumulated <read-files>/
// <modified-files> lists on a second or later compaction pass.
func Compact(
	ctx context.Context,
	p provider.LLMProvider,
	modelID string,
	entries []message.Message,
	settings CompactionSettings,
	previousSummary string,
	customInstructions string,
	tokensBefore int,
	previousReadFiles []string,
	previousModifiedFiles []string,
) (CompactionResult, error) {
	cut := FindCutPoint(entries, settings.KeepRecentTokens, estimator.EstimateMessage)

	fileOps := NewFileOperations()
	SeedFileOps(fileOps, previousReadFiles, previousModifiedFiles)
	for _, m := range entries[:cut.FirstKeptIndex] {
		ExtractFileOps(m, fileOps)
	}
	readFiles, modifiedFiles := ComputeFileLists(fileOps)

	var summary string
	if cut.IsSplitTurn {
		historyMessages := entries[:cut.TurnStartIndex]
		turnPrefixMessages := entries[cut.TurnStartIndex:cut.FirstKeptIndex]

		historySummary := "No prior history."
		if len(historyMessages) > 0 {
			s, err := generateSummary(ctx, p, modelID, historyMessages, settings.ReserveTokens, customInstructions, previousSummary)
			if err != nil {
				return CompactionResult{}, fmt.Errorf("history summary: %w", err)
			}
			historySummary = s
		}

		turnPrefixSummary, err := generateTurnPrefixSummary(ctx, p, modelID, turnPrefixMessages, settings.ReserveTokens)
		if err != nil {
			return CompactionResult{}, fmt.Errorf("turn prefix summary: %w", err)
		}

		summary = fmt.Sprintf("%s\n\n---\n\n**Turn Context (split turn):**\n\n%s", historySummary, turnPrefixSummary)
	} else {
		s, err := generateSummary(ctx, p, modelID, entries[:cut.FirstKeptIndex], settings.ReserveTokens, customInstructions, previousSummary)
		if err != nil {
			return CompactionResult{}, fmt.Errorf("history summary: %w", err)
		}
		summary = s
	}

	summary += FormatFileOperations(readFiles, modifiedFiles)

	return CompactionResult{
		SummaryText:    summary,
		FirstKeptIndex: cut.FirstKeptIndex,
		TokensBefore:   tokensBefore,
		ReadFiles:      readFiles,
		ModifiedFiles:  modifiedFiles,
	}, nil
}

// CheckpointMessage builds the synthetic UserMessage that replaces a
// summarized prefix in the conversation.
func CheckpointMessage(result CompactionResult) message.Message {
	text := fmt.Sprintf("[Context Checkpoint - %d tokens compacted]\n\n%s", result.TokensBefore, result.SummaryText)
	return message.NewUserMessage(text, nil)
}

func generateSummary(
	ctx context.Context,
	p provider.LLMProvider,
	modelID string,
	messages []message.Message,
	reserveTokens int,
	customInstructions string,
	previousSummary string,
) (string, error) {
	basePrompt := summarizationPrompt
	if previousSummary != "" {
		basePrompt = updateSummarizationPrompt
	}
	if customInstructions != "" {
		basePrompt = basePrompt + "\n\nAdditional focus: " + customInstructions
	}

	promptText := fmt.Sprintf("<conversation>\n%s\n</conversation>\n\n", SerializeConversation(messages))
	if previousSummary != "" {
		promptText += fmt.Sprintf("<previous-summary>\n%s\n</previous-summary>\n\n", previousSummary)
	}
	promptText += basePrompt

	return runSummarizationCall(ctx, p, modelID, promptText, int(0.8*float64(reserveTokens)))
}

func generateTurnPrefixSummary(
	ctx context.Context,
	p provider.LLMProvider,
	modelID string,
	messages []message.Message,
	reserveTokens int,
) (string, error) {
	promptText := fmt.Sprintf("<conversation>\n%s\n</conversation>\n\n%s", SerializeConversation(messages), turnPrefixSummarizationPrompt)
	return runSummarizationCall(ctx, p, modelID, promptText, int(0.5*float64(reserveTokens)))
}

// runSummarizationCall issues a one-shot (non-streamed-to-observer)
// completion through the same LLMStream capability the Turn Engine
// uses, per spec.md §4.2.
func runSummarizationCall(ctx context.Context, p provider.LLMProvider, modelID, promptText string, maxTokens int) (string, error) {
	opts := provider.CompletionOptions{
		ModelID:      modelID,
		SystemPrompt: summarizationSystemPrompt,
		Messages:     []message.Message{message.NewUserMessage(promptText, nil)},
		MaxTokens:    maxTokens,
	}

	final, err := provider.Complete(ctx, p, opts)
	if err != nil {
		return "", err
	}
	if final.StopReason == message.StopError {
		return "", fmt.Errorf("summarization failed: %s", final.ErrorMessage)
	}
	return final.Text(), nil
}
