package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mirai3103/fib-bench/internal/config"
	"github.com/Mirai3103/fib-bench/internal/models"
)

type fakeRunner struct {
	mu      sync.Mutex
	seen    []models.BenchRequest
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
}

func (f *fakeRunner) Run(ctx context.Context, req models.BenchRequest) models.Report {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	return models.Report{RequestID: req.ID, ScoreMs: 1}
}

type fakeResponder struct {
	mu      sync.Mutex
	replies map[string]models.Report
}

func (f *fakeResponder) Respond(reply string, report models.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replies == nil {
		f.replies = make(map[string]models.Report)
	}
	f.replies[reply] = report
	return nil
}

func benchConfig(maxJobs int) *config.BenchConfig {
	return &config.BenchConfig{
		MinDurationMs:     100,
		TimeLimitMs:       5000,
		MaxConcurrentJobs: maxJobs,
		Programs:          config.DefaultPrograms(),
	}
}

func TestHandleRequestFillsDefaultsAndResponds(t *testing.T) {
	runner := &fakeRunner{}
	responder := &fakeResponder{}
	h := NewJobHandler(runner, responder, benchConfig(1))

	h.HandleRequest(models.BenchRequest{ID: "r1"}, "_INBOX.r1")
	h.HandleRequest(models.BenchRequest{MinDurationMs: 7}, "")
	h.Wait()

	require.Len(t, runner.seen, 2)
	first := runner.seen[0]
	assert.Equal(t, "r1", first.ID)
	assert.Equal(t, 100, first.MinDurationMs)
	assert.Equal(t, 5000, first.TimeLimitMs)
	assert.Equal(t, config.DefaultPrograms(), first.Programs)

	second := runner.seen[1]
	assert.NotEmpty(t, second.ID)
	assert.Equal(t, 7, second.MinDurationMs)

	require.Len(t, responder.replies, 1)
	assert.Equal(t, "r1", responder.replies["_INBOX.r1"].RequestID)
}

func TestHandleRequestRespectsConcurrencyLimit(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	h := NewJobHandler(runner, nil, benchConfig(2))

	for i := 0; i < 6; i++ {
		h.HandleRequest(models.BenchRequest{ID: "r"}, "")
	}
	h.Wait()

	assert.Len(t, runner.seen, 6)
	assert.LessOrEqual(t, runner.maxSeen.Load(), int32(2))
}
