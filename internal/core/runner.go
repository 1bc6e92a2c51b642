package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/Mirai3103/fib-bench/internal/config"
	"github.com/Mirai3103/fib-bench/internal/core/executor"
	"github.com/Mirai3103/fib-bench/internal/models"
)

// Publisher nhận kết quả từng chương trình ngay khi đo xong.
type Publisher interface {
	PublishProgramResult(result models.ProgramResult) error
}

// Runner đo lần lượt từng chương trình của một BenchRequest.
type Runner struct {
	executors map[executor.Type]executor.Executor
	publisher Publisher // có thể nil
	benchCfg  *config.BenchConfig
}

// NewRunner creates a new Runner instance.
func NewRunner(executors map[executor.Type]executor.Executor, publisher Publisher, benchCfg *config.BenchConfig) *Runner {
	return &Runner{
		executors: executors,
		publisher: publisher,
		benchCfg:  benchCfg,
	}
}

// DefaultExecutors trả về một executor cho mỗi loại được hỗ trợ.
func DefaultExecutors() map[executor.Type]executor.Executor {
	executors := make(map[executor.Type]executor.Executor)
	for _, kind := range []executor.Type{executor.DirectExecutor, executor.InProcessExecutor, executor.IsolateExecutor} {
		e, err := executor.NewExecutor(kind)
		if err != nil {
			panic(err)
		}
		executors[kind] = e
	}
	return executors
}

// Run đo tất cả chương trình theo thứ tự, không song song.
func (r *Runner) Run(ctx context.Context, req models.BenchRequest) models.Report {
	log.Printf("Processing RequestID: %s, %d programs", req.ID, len(req.Programs))

	report := models.Report{RequestID: req.ID}
	var means []float64
	for _, p := range req.Programs {
		if ctx.Err() != nil {
			log.Printf("RequestID %s cancelled before program %s: %v", req.ID, p.Name, ctx.Err())
			report.Failed = append(report.Failed, p.Name)
			continue
		}

		result := r.MeasureProgram(ctx, req, p)
		if r.publisher != nil {
			if err := r.publisher.PublishProgramResult(result); err != nil {
				log.Printf("Error publishing result for program %s: %v", p.Name, err)
			}
		}
		log.Printf("Result for program %s, RequestID %s: Status=%s, Samples=%d, Mean=%.1fms, Mem=%dkB",
			p.Name, req.ID, result.Status, result.Samples, result.MeanMs, result.PeakMemoryKb)

		report.Results = append(report.Results, result)
		if result.Status == models.Success {
			means = append(means, result.MeanMs)
		} else {
			report.Failed = append(report.Failed, p.Name)
		}
	}
	report.ScoreMs = GeometricMean(means)

	log.Printf("Finished processing RequestID: %s, Score: %.1fms", req.ID, report.ScoreMs)
	return report
}

// MeasureProgram chạy chương trình lặp lại cho đến khi đủ MinDurationMs (ít nhất một lần).
// Mỗi lần chạy đều phải cho output đúng; lần đầu tiên không thành công sẽ dừng việc đo.
func (r *Runner) MeasureProgram(ctx context.Context, req models.BenchRequest, p models.Program) models.ProgramResult {
	result := models.ProgramResult{
		RequestID: req.ID,
		Program:   p.Name,
		Status:    models.Running,
	}

	kind := executor.Type(p.Executor)
	if kind == "" {
		kind = executor.DirectExecutor
	}
	ex, ok := r.executors[kind]
	if !ok {
		result.Status = models.InternalError
		result.Error = fmt.Sprintf("no executor %q for program %s", kind, p.Name)
		return result
	}

	workDir := ""
	if r.benchCfg != nil {
		workDir = r.benchCfg.WorkDir
	}
	runReq := executor.RunRequest{
		RequestID:        req.ID,
		Program:          p.Name,
		Command:          p.Command,
		WorkingDirectory: workDir,
		TimeLimitMs:      req.TimeLimitMs,
		MemoryLimitKb:    req.MemoryLimitKb,
	}

	minDuration := time.Duration(req.MinDurationMs) * time.Millisecond
	var samples []float64
	start := time.Now()
	for {
		res, err := ex.Execute(ctx, runReq)
		if err != nil {
			log.Printf("[%s] Execution error for program %s: %v", ex.ID(), p.Name, err)
			result.Status = models.InternalError
			result.Error = fmt.Sprintf("execution failed: %v", err)
			break
		}
		result.Output = strings.TrimSpace(res.Stdout)
		result.PeakMemoryKb = max(result.PeakMemoryKb, res.MemoryUsedKb)

		if res.Status != models.Success {
			result.Status = res.Status
			result.Error = res.Stderr
			if result.Error == "" {
				result.Error = string(res.Status)
			}
			break
		}
		if !compareOutput(res.Stdout, p.ExpectOutput) {
			result.Status = models.WrongOutput
			result.Error = fmt.Sprintf("expected %q, got %q", strings.TrimSpace(p.ExpectOutput), result.Output)
			break
		}
		samples = append(samples, res.TimeUsedMs)

		if time.Since(start) >= minDuration {
			break
		}
	}

	result.Samples = len(samples)
	if result.Status == models.Running {
		result.Status = models.Success
		result.MeanMs = GeometricMean(TrimEnds(samples))
		result.MinMs, result.MaxMs = minMax(samples)
	}
	return result
}

// compareOutput so sánh output sau khi trim. expected rỗng nghĩa là không kiểm tra.
func compareOutput(actual, expected string) bool {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return true
	}
	return strings.TrimSpace(actual) == expected
}

// WriteReport in báo cáo theo dạng bảng, dòng cuối là Score.
func WriteReport(w io.Writer, report models.Report) error {
	for _, res := range report.Results {
		var err error
		if res.Status == models.Success {
			_, err = fmt.Fprintf(w, "%-37s %6.1fms\n", res.Program, res.MeanMs)
		} else {
			_, err = fmt.Fprintf(w, "%-37s %s\n", res.Program, res.Status)
		}
		if err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "%-37s ========\n", ""); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%-37s %6.1fms\n", "Score", report.ScoreMs)
	return err
}
