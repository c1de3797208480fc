package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/earworm/internal/recognition"
)

func TestHubFansOut(t *testing.T) {
	hub := NewHub(nil)
	a, unsubA := hub.Subscribe(4)
	b, unsubB := hub.Subscribe(4)
	defer unsubB()
	assert.Equal(t, 2, hub.Subscribers())

	task := recognition.NewTask(false)
	hub.TaskChanged(task)

	assert.Equal(t, task.SessionID, (<-a).SessionID)
	assert.Equal(t, task.SessionID, (<-b).SessionID)

	unsubA()
	unsubA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers())
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(nil)
	ch, unsubscribe := hub.Subscribe(1)
	defer unsubscribe()

	first := recognition.NewTask(false)
	second := recognition.NewTask(false)
	hub.TaskChanged(first)
	hub.TaskChanged(second)

	require.Len(t, ch, 1)
	assert.Equal(t, first.SessionID, (<-ch).SessionID)
}
