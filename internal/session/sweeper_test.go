package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSweeper_RemovesExpired(t *testing.T) {
	reg := NewMemoryRegistry()
	past := time.Now().Add(-time.Hour)
	_, err := reg.Replace(context.Background(), Record{
		TokenValue: "stale",
		SubjectID:  "subject-1",
		CreatedAt:  past.Add(-time.Minute),
		ExpiresAt:  past,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunSweeper(ctx, reg, 5*time.Millisecond, zerolog.Nop(), nil) }()

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRunSweeper_DisabledWaitsForCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, RunSweeper(ctx, NewMemoryRegistry(), 0, zerolog.Nop(), nil))
}
