package httpx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionsEvictIdle(t *testing.T) {
	s := &Sessions{Idle: time.Minute}
	idle, _ := s.New("u1")
	fresh, _ := s.New("u2")
	require.Equal(t, 2, s.Len())

	s.mu.Lock()
	s.m[idle].touched = time.Now().Add(-2 * time.Minute)
	s.mu.Unlock()

	assert.Equal(t, 1, s.Evict(time.Now()))
	_, ok := s.Get(idle)
	assert.False(t, ok)
	_, ok = s.Get(fresh)
	assert.True(t, ok)
}

func TestSessionsNoIdleLimit(t *testing.T) {
	s := &Sessions{}
	s.New("u1")
	assert.Zero(t, s.Evict(time.Now().Add(24*time.Hour)))
}

func TestRunJanitorStops(t *testing.T) {
	s := &Sessions{Idle: time.Nanosecond}
	s.New("u1")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 2*time.Millisecond)
	cancel()
	<-done
}
