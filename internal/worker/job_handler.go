package worker

import (
	"context"
	"log"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Mirai3103/fib-bench/internal/config"
	"github.com/Mirai3103/fib-bench/internal/models"
)

const requestTimeout = 5 * time.Minute

// BenchRunner là phần của core.Runner mà JobHandler cần.
type BenchRunner interface {
	Run(ctx context.Context, req models.BenchRequest) models.Report
}

// Responder trả Report về cho người gửi request.
type Responder interface {
	Respond(reply string, report models.Report) error
}

type JobHandler struct {
	runner    BenchRunner
	responder Responder
	benchCfg  *config.BenchConfig
	jobs      *pool.Pool
}

func NewJobHandler(runner BenchRunner, responder Responder, benchCfg *config.BenchConfig) *JobHandler {
	jobs := pool.New()
	if benchCfg.MaxConcurrentJobs > 0 {
		jobs = jobs.WithMaxGoroutines(benchCfg.MaxConcurrentJobs)
		log.Printf("JobHandler initialized with MaxConcurrentJobs: %d", benchCfg.MaxConcurrentJobs)
	} else {
		log.Printf("JobHandler initialized with unlimited concurrent jobs (MaxConcurrentJobs is %d)", benchCfg.MaxConcurrentJobs)
	}

	return &JobHandler{
		runner:    runner,
		responder: responder,
		benchCfg:  benchCfg,
		jobs:      jobs,
	}
}

// HandleRequest đưa request vào pool. Khi pool đầy, lời gọi sẽ block cho đến khi có slot.
// This method signature matches the RequestProcessor interface in the nats package.
func (h *JobHandler) HandleRequest(req models.BenchRequest, reply string) {
	req = h.withDefaults(req)
	log.Printf("JobHandler: Received RequestID: %s. Queuing for Core Runner.", req.ID)

	h.jobs.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		report := h.runner.Run(ctx, req)
		log.Printf("JobHandler: Core Runner finished processing RequestID: %s.", req.ID)

		if reply == "" || h.responder == nil {
			return
		}
		if err := h.responder.Respond(reply, report); err != nil {
			log.Printf("JobHandler: Failed to respond for RequestID %s: %v", req.ID, err)
		}
	})
}

// Wait chờ tất cả job đang chạy kết thúc. Không được gọi HandleRequest sau Wait.
func (h *JobHandler) Wait() {
	h.jobs.Wait()
}

// withDefaults điền các trường bị bỏ trống từ config.
func (h *JobHandler) withDefaults(req models.BenchRequest) models.BenchRequest {
	if req.ID == "" {
		req.ID = time.Now().UTC().Format("20060102T150405.000000000")
	}
	if len(req.Programs) == 0 {
		req.Programs = h.benchCfg.Programs
	}
	if req.MinDurationMs == 0 {
		req.MinDurationMs = h.benchCfg.MinDurationMs
	}
	if req.TimeLimitMs == 0 {
		req.TimeLimitMs = h.benchCfg.TimeLimitMs
	}
	if req.MemoryLimitKb == 0 {
		req.MemoryLimitKb = h.benchCfg.MemoryLimitKb
	}
	return req
}
