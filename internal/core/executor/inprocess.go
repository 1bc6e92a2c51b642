package executor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Mirai3103/fib-bench/internal/fib"
	"github.com/Mirai3103/fib-bench/internal/models"
)

// kernel trả về đúng dòng mà chương trình tương ứng sẽ in ra stdout.
type kernel func(args []string) (string, error)

var kernels = map[string]kernel{
	"fib": fibKernel,
}

func fibKernel(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: fib <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return "", fmt.Errorf("invalid n %q: %w", args[0], err)
	}
	result, err := fib.Fib(n)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(result, 10) + "\n", nil
}

// inProcessExecutor gọi kernel ngay trong tiến trình harness, không có chi phí fork/exec.
// Bộ nhớ không được đo.
type inProcessExecutor struct {
	mu sync.Mutex
	// Kernel của các sample bị quá hạn vẫn đang chạy; sample sau phải chờ chúng xong
	// để không tranh CPU với phép đo.
	stray []<-chan struct{}
}

func (e *inProcessExecutor) ID() string {
	return "inprocess_executor_v1"
}

type kernelResult struct {
	out     string
	err     error
	elapsed time.Duration
}

func (e *inProcessExecutor) Execute(ctx context.Context, req RunRequest) (*ExecuteResult, error) {
	if len(req.Command) == 0 {
		return nil, &Error{Type: ErrBadCommand, Message: "empty command"}
	}
	k, ok := kernels[req.Command[0]]
	if !ok {
		return nil, &Error{Type: ErrBadCommand, Message: fmt.Sprintf("unknown kernel %q", req.Command[0])}
	}

	if err := e.waitStray(ctx); err != nil {
		return nil, err
	}

	runCtx := ctx
	if req.TimeLimitMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeLimitMs)*time.Millisecond)
		defer cancel()
	}

	// Kernel không thể bị ngắt giữa chừng; khi quá hạn goroutine vẫn chạy tới hết.
	done := make(chan kernelResult, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		start := time.Now()
		out, err := k(req.Command[1:])
		done <- kernelResult{out: out, err: err, elapsed: time.Since(start)}
	}()

	select {
	case r := <-done:
		result := &ExecuteResult{
			Status:     models.Success,
			Stdout:     r.out,
			TimeUsedMs: float64(r.elapsed.Microseconds()) / 1000.0,
		}
		if r.err != nil {
			result.Status = models.RuntimeError
			result.Stderr = r.err.Error()
			result.ExitCode = 1
		}
		return result, nil
	case <-runCtx.Done():
		e.mu.Lock()
		e.stray = append(e.stray, finished)
		e.mu.Unlock()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &ExecuteResult{
			Status:     models.TimeLimitExceeded,
			ExitCode:   -1,
			TimeUsedMs: float64(req.TimeLimitMs),
		}, nil
	}
}

// waitStray chờ các kernel còn sót lại từ sample trước. Nếu ctx bị huỷ thì
// các kernel chưa xong được giữ lại cho lần gọi sau.
func (e *inProcessExecutor) waitStray(ctx context.Context) error {
	e.mu.Lock()
	pending := e.stray
	e.stray = nil
	e.mu.Unlock()

	for i, ch := range pending {
		select {
		case <-ch:
		case <-ctx.Done():
			e.mu.Lock()
			e.stray = append(e.stray, pending[i:]...)
			e.mu.Unlock()
			return ctx.Err()
		}
	}
	return nil
}

func (e *inProcessExecutor) strayCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.stray)
}
