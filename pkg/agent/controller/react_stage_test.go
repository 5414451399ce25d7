package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/config"
)

func TestReActStage_FinalAnswerWins(t *testing.T) {
	client := &scriptedLLM{script: []scriptedResponse{
		{resp: textResponse("Thought: gathered everything\nFinal Answer: Data collection complete.")},
	}}
	stageCtx := newStageContext(t, config.IterationStrategyReactStage, 5, client, newRecordingToolExecutor(testTools))

	result, err := NewReActStageController().Execute(context.Background(), stageCtx)

	require.NoError(t, err)
	assert.Equal(t, "Data collection complete.", result.Analysis)
}

func TestReActStage_CompletionPatternExtractsSummary(t *testing.T) {
	// The model reports completion in prose without the Final Answer header;
	// the iteration-limit fallback picks up the completion line.
	client := &scriptedLLM{script: []scriptedResponse{
		{resp: textResponse("Thought: checking\nAction: kubernetes-server.kubectl_get\nAction Input: {}")},
		{resp: textResponse("Thought: Data collection complete for namespace stuck-ns.\nAction: kubernetes-server.kubectl_get\nAction Input: {}")},
	}}
	tools := newRecordingToolExecutor(testTools)
	stageCtx := newStageContext(t, config.IterationStrategyReactStage, 2, client, tools)

	result, err := NewReActStageController().Execute(context.Background(), stageCtx)

	require.NoError(t, err)
	assert.Contains(t, result.Analysis, "Data collection complete for namespace stuck-ns.")
	assert.Equal(t, 2, result.Iterations)
}

func TestReActStage_IncompletePatternQualifiedWithLimit(t *testing.T) {
	client := &scriptedLLM{script: []scriptedResponse{
		{resp: textResponse("Thought: Investigation in progress, more pods to check.\nAction: kubernetes-server.kubectl_get\nAction Input: {}")},
	}}
	tools := newRecordingToolExecutor(testTools)
	stageCtx := newStageContext(t, config.IterationStrategyReactStage, 1, client, tools)

	result, err := NewReActStageController().Execute(context.Background(), stageCtx)

	require.NoError(t, err)
	assert.Contains(t, result.Analysis, "due to iteration limits")
}

func TestReActStage_DefaultFallbackUsesLastThought(t *testing.T) {
	client := &scriptedLLM{script: []scriptedResponse{
		{resp: textResponse("Thought: no recognizable status markers here\nAction: kubernetes-server.kubectl_get\nAction Input: {}")},
	}}
	tools := newRecordingToolExecutor(testTools)
	stageCtx := newStageContext(t, config.IterationStrategyReactStage, 1, client, tools)

	result, err := NewReActStageController().Execute(context.Background(), stageCtx)

	require.NoError(t, err)
	assert.Contains(t, result.Analysis, "no recognizable status markers here")
}

func TestExtractStageSummary_PatternPrecedence(t *testing.T) {
	state := &reactState{responses: []string{
		"Thought: work in progress on the first pass",
		"Verification complete: all replicas healthy.",
	}}
	// Completion beats incomplete even when incomplete matched earlier.
	assert.Equal(t, "Verification complete: all replicas healthy.", extractStageSummary(state))

	// The incomplete branch reports the matched pattern, not the whole line.
	state = &reactState{responses: []string{
		"Thought: still investigating the stuck finalizer",
	}}
	assert.Equal(t, "still investigating due to iteration limits", extractStageSummary(state))

	assert.Empty(t, extractStageSummary(&reactState{responses: []string{"nothing matches"}}))
}
