package executor

import (
	"context"
	"fmt"

	"github.com/Mirai3103/fib-bench/internal/models"
)

type Type string

const (
	DirectExecutor    Type = "direct"    // Chạy chương trình như một tiến trình con
	InProcessExecutor Type = "inprocess" // Gọi kernel có sẵn ngay trong tiến trình harness
	IsolateExecutor   Type = "isolate"   // Chạy trong box của isolate, đo CPU time
)

// RunRequest chứa thông tin cần thiết để chạy một lần (một sample) của chương trình.
type RunRequest struct {
	RequestID        string   // ID của BenchRequest
	Program          string   // Tên chương trình
	Command          []string // Lệnh và tham số, ví dụ ["./bin/fib"] hoặc ["fib", "38"] với inprocess
	WorkingDirectory string
	TimeLimitMs      int // 0 = không giới hạn
	MemoryLimitKb    int // 0 = không giới hạn
}

// ExecuteResult chứa kết quả của một lần chạy.
// Status không bao giờ là WrongOutput: việc so sánh output do Runner làm.
type ExecuteResult struct {
	Status       models.RunStatus
	Stdout       string
	Stderr       string
	ExitCode     int
	TimeUsedMs   float64
	MemoryUsedKb int
}

// Executor là interface chung cho các cách chạy một chương trình benchmark.
type Executor interface {
	// Execute chạy một sample. Lỗi trả về là lỗi của chính executor,
	// không phải lỗi của chương trình được đo.
	Execute(ctx context.Context, req RunRequest) (*ExecuteResult, error)

	// ID trả về định danh của executor, dùng trong log.
	ID() string
}

func NewExecutor(kind Type) (Executor, error) {
	switch kind {
	case DirectExecutor:
		return &directExecutor{}, nil
	case InProcessExecutor:
		return &inProcessExecutor{}, nil
	case IsolateExecutor:
		return &isolateExecutor{isolatePath: DefaultIsolatePath}, nil
	default:
		return nil, &Error{Type: ErrUnknownExecutor, Message: fmt.Sprintf("unknown executor %q", kind)}
	}
}

type ErrorType string

const (
	ErrCmdStart        ErrorType = "COMMAND_START_ERROR"
	ErrCmdWait         ErrorType = "COMMAND_WAIT_ERROR"
	ErrBadCommand      ErrorType = "BAD_COMMAND"
	ErrUnknownExecutor ErrorType = "UNKNOWN_EXECUTOR"
)

type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (se *Error) Error() string {
	if se.Cause != nil {
		return fmt.Sprintf("%s: %s (type: %s)", se.Message, se.Cause.Error(), se.Type)
	}
	return fmt.Sprintf("%s (type: %s)", se.Message, se.Type)
}

func (se *Error) Unwrap() error {
	return se.Cause
}
