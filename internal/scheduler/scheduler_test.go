package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johnswift/hivesync/internal/syncer"
)

func TestStartRunsImmediately(t *testing.T) {
	var calls atomic.Int32
	s := New(func(context.Context) (*syncer.Summary, error) {
		calls.Add(1)
		return &syncer.Summary{RunID: "r1", Seen: 4}, nil
	}, zap.NewNop())

	require.NoError(t, s.Start(context.Background(), "@every 1h"))
	defer s.Stop()

	assert.Eventually(t, func() bool { return s.Status().Runs == 1 }, 2*time.Second, 10*time.Millisecond)
	st := s.Status()
	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, st.LastSummary)
	assert.Equal(t, 4, st.LastSummary.Seen)
	assert.Empty(t, st.LastError)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(func(context.Context) (*syncer.Summary, error) { return nil, nil }, zap.NewNop())
	assert.Error(t, s.Start(context.Background(), "not a schedule"))
	s.Stop()
}

func TestFailedRunKeepsScheduling(t *testing.T) {
	var calls atomic.Int32
	s := New(func(context.Context) (*syncer.Summary, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("fetch error: status 502")
		}
		return &syncer.Summary{}, nil
	}, zap.NewNop())
	ctx := context.Background()

	s.RunOnce(ctx)
	st := s.Status()
	assert.Equal(t, 1, st.Failures)
	assert.Contains(t, st.LastError, "502")

	s.RunOnce(ctx)
	st = s.Status()
	assert.Equal(t, 2, st.Runs)
	assert.Equal(t, 1, st.Failures)
	assert.Empty(t, st.LastError)
}

func TestRunOnceSkipsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(func(context.Context) (*syncer.Summary, error) {
		close(started)
		<-release
		return &syncer.Summary{}, nil
	}, zap.NewNop())
	ctx := context.Background()

	finished := make(chan struct{})
	go func() {
		s.RunOnce(ctx)
		close(finished)
	}()
	<-started

	s.RunOnce(ctx)
	assert.Equal(t, 1, s.Status().Skipped)

	close(release)
	<-finished
	assert.Equal(t, 1, s.Status().Runs)
}

func TestStopOnContextCancel(t *testing.T) {
	s := New(func(context.Context) (*syncer.Summary, error) { return &syncer.Summary{}, nil }, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx, "@every 1h"))
	cancel()

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestHealthReportsStatus(t *testing.T) {
	status := Status{Runs: 3, Failures: 1, LastError: "fetch error"}
	h := NewHealthServer("0", func() Status { return status }, zap.NewNop())
	require.NoError(t, h.Start())
	defer h.Shutdown(context.Background())

	resp, err := http.Get("http://" + h.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, float64(3), body["runs"])
	assert.Equal(t, "fetch error", body["last_error"])

	req, err := http.NewRequest(http.MethodPost, "http://"+h.Addr()+"/health", nil)
	require.NoError(t, err)
	post, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}
