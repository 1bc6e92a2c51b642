package executor

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/Mirai3103/fib-bench/internal/models"
)

const (
	memoryPollInterval = 20 * time.Millisecond // Tần suất kiểm tra bộ nhớ
	// Sau khi tiến trình kết thúc, Wait chỉ chờ thêm chừng này cho các pipe stdout/stderr.
	pipeWaitDelay = 500 * time.Millisecond
)

// directExecutor chạy chương trình trực tiếp trên host như một tiến trình con
// và theo dõi RSS của nó.
type directExecutor struct{}

func (e *directExecutor) ID() string {
	return "direct_executor_v1"
}

// Execute chạy lệnh một lần, đo thời gian wall-clock và bộ nhớ đỉnh.
func (e *directExecutor) Execute(ctx context.Context, req RunRequest) (*ExecuteResult, error) {
	if len(req.Command) == 0 {
		return nil, &Error{Type: ErrBadCommand, Message: "empty command"}
	}

	runCtx := ctx
	if req.TimeLimitMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeLimitMs)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.Command(req.Command[0], req.Command[1:]...)
	cmd.Dir = req.WorkingDirectory
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Nhóm tiến trình riêng để kill được cả các tiến trình cháu (shell wrapper, go run, ...).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = pipeWaitDelay

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		log.Printf("[%s] Failed to start command for program %s: %v", e.ID(), req.Program, err)
		return nil, &Error{
			Type:    ErrCmdStart,
			Message: "failed to start command",
			Cause:   err,
		}
	}

	pid := int32(cmd.Process.Pid)

	errChan := make(chan error, 1)
	go func() {
		errChan <- cmd.Wait()
	}()

	var maxMemUsage atomic.Uint64
	var memoryLimitExceeded atomic.Bool
	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	defer monitorCancel()

	go func() {
		ticker := time.NewTicker(memoryPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				proc, err := process.NewProcess(pid)
				if err != nil {
					// tiến trình có thể đã kết thúc
					continue
				}
				memInfo, err := proc.MemoryInfo()
				if err != nil {
					continue
				}

				currentMem := memInfo.RSS
				if currentMem > maxMemUsage.Load() {
					maxMemUsage.Store(currentMem)
				}

				if req.MemoryLimitKb > 0 && currentMem/1024 > uint64(req.MemoryLimitKb) {
					memoryLimitExceeded.Store(true)
					log.Printf("[%s] Memory limit exceeded for program %s, PID %d. Usage: %d KB, Limit: %d KB",
						e.ID(), req.Program, pid, currentMem/1024, req.MemoryLimitKb)
					if killErr := killProcessGroup(cmd); killErr != nil {
						log.Printf("[%s] Failed to kill process group %d: %v", e.ID(), pid, killErr)
					}
					return
				}
			}
		}
	}()

	var status models.RunStatus
	exitCode := 0

	select {
	case err := <-errChan:
		monitorCancel()
		switch {
		case err == nil:
			status = models.Success
		case memoryLimitExceeded.Load():
			status = models.MemoryLimitExceeded
			exitCode = -1
		default:
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				log.Printf("[%s] cmd.Wait() error for program %s (not ExitError): %v", e.ID(), req.Program, err)
				return nil, &Error{
					Type:    ErrCmdWait,
					Message: "command wait failed with unexpected error",
					Cause:   err,
				}
			}
			exitCode = exitErr.ExitCode()
			status = models.RuntimeError
			log.Printf("[%s] Program %s exited with code %d. Stderr: %s", e.ID(), req.Program, exitCode, stderr.String())
		}

	case <-runCtx.Done():
		monitorCancel()
		if err := killProcessGroup(cmd); err != nil {
			log.Printf("[%s] Failed to kill process group %d on cancellation: %v", e.ID(), pid, err)
		}
		<-errChan

		// Context cha bị huỷ (shutdown) thì không phải lỗi của chương trình.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[%s] Program %s exceeded time limit %dms", e.ID(), req.Program, req.TimeLimitMs)
		status = models.TimeLimitExceeded
		exitCode = -1
	}

	elapsed := time.Since(startTime)
	if status == models.TimeLimitExceeded {
		elapsed = min(elapsed, time.Duration(req.TimeLimitMs)*time.Millisecond+pipeWaitDelay)
	}
	if memoryLimitExceeded.Load() {
		status = models.MemoryLimitExceeded
	}

	return &ExecuteResult{
		Status:       status,
		Stdout:       stdout.String(),
		Stderr:       stderr.String(),
		ExitCode:     exitCode,
		TimeUsedMs:   float64(elapsed.Microseconds()) / 1000.0,
		MemoryUsedKb: int(maxMemUsage.Load() / 1024),
	}, nil
}

// killProcessGroup gửi SIGKILL tới cả nhóm tiến trình; Setpgid đảm bảo pgid == pid.
func killProcessGroup(cmd *exec.Cmd) error {
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
