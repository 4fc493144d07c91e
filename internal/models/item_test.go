package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUserTurnBoundary(t *testing.T) {
	assert.True(t, IsUserTurnBoundary(UserMessage("hello")))
	assert.False(t, IsUserTurnBoundary(AssistantMessage("hi")))
	assert.False(t, IsUserTurnBoundary(ResponseItem{Type: ItemTypeFunctionCall, Name: "shell"}))

	// A stored summary has the user role but does not open a turn.
	summary := UserMessage(SummaryPrefix + "\nwe discussed things")
	assert.False(t, IsUserTurnBoundary(summary))
}

func TestIsSummaryMessage(t *testing.T) {
	assert.True(t, IsSummaryMessage(SummaryPrefix))
	assert.True(t, IsSummaryMessage(SummaryPrefix+"\nbody"))
	assert.False(t, IsSummaryMessage("plain input"))
	// The prefix must be a whole line, not a fragment.
	assert.False(t, IsSummaryMessage(SummaryPrefix+" trailing on same line"))
}

func TestReplayError_CategoriesAndUnwrap(t *testing.T) {
	cause := errors.New("disk gone")
	err := NewTransientError("load page", cause)
	require.True(t, IsTransient(err))
	assert.False(t, IsCorruption(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "load page")

	corr := NewCorruptionError("bad record", nil)
	require.True(t, IsCorruption(corr))
	assert.False(t, IsTransient(corr))

	var re *ReplayError
	require.ErrorAs(t, NewNoValidBaseError("nothing to anchor on"), &re)
	assert.Equal(t, ErrorTypeNoValidBase, re.Type)
	assert.False(t, re.Retryable)
}
