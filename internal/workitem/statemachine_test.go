package workitem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTaskLifecycle(t *testing.T) {
	steps := []struct {
		current Status
		event   Event
		want    Status
	}{
		{StatusTodo, EventEnqueue, StatusTodo},
		{StatusTodo, EventClaim, StatusInProgress},
		{StatusInProgress, EventResolve, StatusInReview},
		{StatusInReview, EventEnqueue, StatusTodo},
		{StatusTodo, EventClaim, StatusInProgress},
		{StatusInProgress, EventNeedsReview, StatusInReview},
		{StatusInReview, EventApprove, StatusDone},
		{StatusDone, EventReopen, StatusTodo},
	}
	for _, s := range steps {
		got, err := Transition(KindTask, s.current, s.event)
		require.NoError(t, err, "%s + %s", s.current, s.event)
		assert.Equal(t, s.want, got)
	}
}

func TestTransitionChatLifecycle(t *testing.T) {
	steps := []struct {
		current Status
		event   Event
		want    Status
	}{
		{StatusIdle, EventEnqueue, StatusQueued},
		{StatusQueued, EventClaim, StatusInProgress},
		{StatusInProgress, EventResolve, StatusCompleted},
		{StatusCompleted, EventEnqueue, StatusQueued},
		{StatusQueued, EventClaim, StatusInProgress},
		{StatusInProgress, EventError, StatusFailed},
		{StatusFailed, EventEnqueue, StatusQueued},
	}
	for _, s := range steps {
		got, err := Transition(KindChat, s.current, s.event)
		require.NoError(t, err, "%s + %s", s.current, s.event)
		assert.Equal(t, s.want, got)
	}
}

func TestTransitionRejectsOffGraphEvents(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		current Status
		event   Event
	}{
		{"approve a running task", KindTask, StatusInProgress, EventApprove},
		{"claim a reviewed task", KindTask, StatusInReview, EventClaim},
		{"reopen a todo task", KindTask, StatusTodo, EventReopen},
		{"approve a chat", KindChat, StatusInProgress, EventApprove},
		{"claim an idle chat", KindChat, StatusIdle, EventClaim},
		{"chat status on a task", KindTask, StatusQueued, EventClaim},
		{"unknown kind", Kind("job"), StatusTodo, EventClaim},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Transition(c.kind, c.current, c.event)
			assert.ErrorIs(t, err, ErrRejected)
		})
	}
}

func TestTransitionCancelByKind(t *testing.T) {
	// A cancelled task still needs a human look, so it lands in review. A
	// cancelled chat turn is simply failed.
	got, err := Transition(KindTask, StatusInProgress, EventCancel)
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, got)

	got, err = Transition(KindChat, StatusInProgress, EventCancel)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got)

	got, err = Transition(KindTask, StatusTodo, EventCancel)
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, got)

	got, err = Transition(KindChat, StatusQueued, EventCancel)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got)
}

func TestTransitionEnqueueIsIdempotentWhilePending(t *testing.T) {
	got, err := Transition(KindTask, StatusTodo, EventEnqueue)
	require.NoError(t, err)
	assert.Equal(t, StatusTodo, got)

	got, err = Transition(KindChat, StatusQueued, EventEnqueue)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got)
}

func TestResting(t *testing.T) {
	task := &WorkItem{Kind: KindTask, Status: StatusInReview}
	assert.True(t, task.Resting())

	task.Status = StatusTodo
	assert.False(t, task.Resting())

	chat := &WorkItem{Kind: KindChat, Status: StatusCompleted}
	assert.True(t, chat.Resting())

	chat.InFlight = true
	assert.False(t, chat.Resting())
}
