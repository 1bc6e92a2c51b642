package core

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mirai3103/fib-bench/internal/config"
	"github.com/Mirai3103/fib-bench/internal/core/executor"
	"github.com/Mirai3103/fib-bench/internal/models"
)

type scriptedExecutor struct {
	results []*executor.ExecuteResult
	err     error
	calls   int
}

func (s *scriptedExecutor) ID() string { return "scripted" }

func (s *scriptedExecutor) Execute(ctx context.Context, req executor.RunRequest) (*executor.ExecuteResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	res := s.results[s.calls%len(s.results)]
	s.calls++
	return res, nil
}

type recordingPublisher struct {
	results []models.ProgramResult
}

func (p *recordingPublisher) PublishProgramResult(result models.ProgramResult) error {
	p.results = append(p.results, result)
	return nil
}

func ok(ms float64) *executor.ExecuteResult {
	return &executor.ExecuteResult{Status: models.Success, Stdout: "39088169\n", TimeUsedMs: ms}
}

func TestGeometricMean(t *testing.T) {
	assert.InDelta(t, 4.0, GeometricMean([]float64{2, 8}), 1e-9)
	assert.InDelta(t, 10.0, GeometricMean([]float64{10}), 1e-9)
	assert.InDelta(t, 3.0, GeometricMean([]float64{0, 3, -1}), 1e-9)
	assert.Equal(t, 0.0, GeometricMean(nil))
}

func TestTrimEnds(t *testing.T) {
	assert.Equal(t, []float64{2, 3}, TrimEnds([]float64{1, 2, 3, 4}))
	assert.Equal(t, []float64{1, 2}, TrimEnds([]float64{1, 2}))
	assert.Equal(t, []float64{5}, TrimEnds([]float64{5}))
}

func TestMeasureProgramSingleSample(t *testing.T) {
	ex := &scriptedExecutor{results: []*executor.ExecuteResult{ok(12.5)}}
	r := NewRunner(map[executor.Type]executor.Executor{executor.DirectExecutor: ex}, nil, &config.BenchConfig{})

	res := r.MeasureProgram(context.Background(), models.BenchRequest{ID: "req-1"},
		models.Program{Name: "fib/binary", Command: []string{"./bin/fib"}, ExpectOutput: "39088169"})

	assert.Equal(t, models.Success, res.Status)
	assert.Equal(t, 1, ex.calls)
	assert.Equal(t, 1, res.Samples)
	assert.InDelta(t, 12.5, res.MeanMs, 1e-9)
	assert.Equal(t, "39088169", res.Output)
	assert.Equal(t, "req-1", res.RequestID)
}

// pacedExecutor trả về lần lượt từng kết quả và ngủ delays[i] trước khi trả về,
// để số sample không phụ thuộc vào tốc độ máy.
type pacedExecutor struct {
	results []*executor.ExecuteResult
	delays  []time.Duration
	calls   int
}

func (p *pacedExecutor) ID() string { return "paced" }

func (p *pacedExecutor) Execute(ctx context.Context, req executor.RunRequest) (*executor.ExecuteResult, error) {
	i := p.calls
	p.calls++
	time.Sleep(p.delays[i])
	return p.results[i], nil
}

func TestMeasureProgramRepeatsUntilMinDuration(t *testing.T) {
	tests := []struct {
		name     string
		times    []float64
		delays   []time.Duration
		wantMean float64
		wantMin  float64
		wantMax  float64
	}{
		// 4 sample: bỏ 100 đầu và 100 cuối, geomean(2, 8) = 4.
		{"trims first and last", []float64{100, 2, 8, 100}, []time.Duration{0, 0, 0, 80 * time.Millisecond}, 4, 2, 100},
		// 3 sample: chỉ còn sample giữa.
		{"three samples", []float64{50, 9, 50}, []time.Duration{0, 0, 80 * time.Millisecond}, 9, 9, 50},
		// 2 sample: không bỏ gì, geomean(1, 16) = 4.
		{"two samples kept", []float64{1, 16}, []time.Duration{0, 80 * time.Millisecond}, 4, 1, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &pacedExecutor{delays: tt.delays}
			for _, ms := range tt.times {
				ex.results = append(ex.results, ok(ms))
			}
			r := NewRunner(map[executor.Type]executor.Executor{executor.InProcessExecutor: ex}, nil, nil)

			res := r.MeasureProgram(context.Background(), models.BenchRequest{MinDurationMs: 40},
				models.Program{Name: "fib/inprocess", Executor: "inprocess", ExpectOutput: "39088169"})

			require.Equal(t, models.Success, res.Status)
			assert.Equal(t, len(tt.times), res.Samples)
			assert.Equal(t, len(tt.times), ex.calls)
			assert.InDelta(t, tt.wantMean, res.MeanMs, 1e-9)
			assert.Equal(t, tt.wantMin, res.MinMs)
			assert.Equal(t, tt.wantMax, res.MaxMs)
		})
	}
}

func TestMeasureProgramFailures(t *testing.T) {
	tests := []struct {
		name       string
		ex         *scriptedExecutor
		wantStatus models.RunStatus
	}{
		{"wrong output", &scriptedExecutor{results: []*executor.ExecuteResult{{Status: models.Success, Stdout: "42\n"}}}, models.WrongOutput},
		{"runtime error", &scriptedExecutor{results: []*executor.ExecuteResult{{Status: models.RuntimeError, Stderr: "panic"}}}, models.RuntimeError},
		{"time limit", &scriptedExecutor{results: []*executor.ExecuteResult{{Status: models.TimeLimitExceeded}}}, models.TimeLimitExceeded},
		{"executor error", &scriptedExecutor{err: errors.New("boom")}, models.InternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(map[executor.Type]executor.Executor{executor.DirectExecutor: tt.ex}, nil, nil)
			res := r.MeasureProgram(context.Background(), models.BenchRequest{MinDurationMs: 1000},
				models.Program{Name: "p", ExpectOutput: "39088169"})
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, 0, res.Samples)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestMeasureProgramUnknownExecutor(t *testing.T) {
	r := NewRunner(map[executor.Type]executor.Executor{}, nil, nil)
	res := r.MeasureProgram(context.Background(), models.BenchRequest{}, models.Program{Name: "p", Executor: "isolate"})
	assert.Equal(t, models.InternalError, res.Status)
}

func TestRunScoresAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	executors := map[executor.Type]executor.Executor{
		executor.DirectExecutor:    &scriptedExecutor{results: []*executor.ExecuteResult{ok(2)}},
		executor.InProcessExecutor: &scriptedExecutor{results: []*executor.ExecuteResult{ok(8)}},
	}
	r := NewRunner(executors, pub, nil)

	report := r.Run(context.Background(), models.BenchRequest{
		ID: "req-2",
		Programs: []models.Program{
			{Name: "a", Executor: "direct", ExpectOutput: "39088169"},
			{Name: "b", Executor: "inprocess", ExpectOutput: "39088169"},
			{Name: "c", Executor: "inprocess", ExpectOutput: "1"},
		},
	})

	assert.Equal(t, "req-2", report.RequestID)
	require.Len(t, report.Results, 3)
	assert.InDelta(t, 4.0, report.ScoreMs, 1e-9)
	assert.Equal(t, []string{"c"}, report.Failed)
	assert.Len(t, pub.results, 3)
}

func TestRunWithRealInProcessExecutor(t *testing.T) {
	r := NewRunner(DefaultExecutors(), nil, nil)
	report := r.Run(context.Background(), models.BenchRequest{
		Programs: []models.Program{{Name: "fib/10", Executor: "inprocess", Command: []string{"fib", "10"}, ExpectOutput: "55"}},
	})
	require.Len(t, report.Results, 1)
	assert.Equal(t, models.Success, report.Results[0].Status)
	assert.Empty(t, report.Failed)
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	err := WriteReport(&buf, models.Report{
		Results: []models.ProgramResult{
			{Program: "fib/inprocess", Status: models.Success, MeanMs: 210.04},
			{Program: "fib/binary", Status: models.WrongOutput},
		},
		ScoreMs: 210.04,
	})
	require.NoError(t, err)

	want := "fib/inprocess                          210.0ms\n" +
		"fib/binary                            wrong_output\n" +
		"                                      ========\n" +
		"Score                                  210.0ms\n"
	assert.Equal(t, want, buf.String())
}
