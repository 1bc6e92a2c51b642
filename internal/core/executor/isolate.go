package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Mirai3103/fib-bench/internal/models"
)

const (
	// DefaultIsolatePath is the default path to the isolate executable.
	DefaultIsolatePath = "isolate"
	// DefaultEnvPath is the default PATH for sandboxed processes.
	DefaultEnvPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	// DefaultProcesses is the default maximum number of processes.
	DefaultProcesses = 64
	// DefaultBoxCleanupTimeout is the timeout for the isolate --cleanup command.
	DefaultBoxCleanupTimeout = 5 * time.Second
)

// isolateExecutor chạy chương trình trong box của isolate. Khác với direct,
// thời gian báo cáo là CPU time và bộ nhớ là đỉnh của cgroup, nên ít nhiễu hơn
// khi đo trên máy dùng chung. Cần isolate đã cài và quyền tương ứng.
type isolateExecutor struct {
	isolatePath string
	boxIDs      atomic.Uint32
}

func (e *isolateExecutor) ID() string {
	return "isolate_executor_v1"
}

func (e *isolateExecutor) Execute(ctx context.Context, req RunRequest) (*ExecuteResult, error) {
	if len(req.Command) == 0 {
		return nil, &Error{Type: ErrBadCommand, Message: "empty command"}
	}
	boxID := strconv.FormatUint(uint64(e.boxIDs.Add(1)%1000), 10)

	tmpDir, err := os.MkdirTemp("", "fib-bench-isolate-")
	if err != nil {
		return nil, &Error{Type: ErrCmdStart, Message: "failed to create temp dir", Cause: err}
	}
	defer os.RemoveAll(tmpDir)
	stdoutPath := filepath.Join(tmpDir, "stdout")
	stderrPath := filepath.Join(tmpDir, "stderr")
	metaPath := filepath.Join(tmpDir, "meta")

	if out, err := exec.CommandContext(ctx, e.isolatePath, "--box-id="+boxID, "--cg", "--init").CombinedOutput(); err != nil {
		log.Printf("[%s] BoxID %s: isolate init failed. Output: %s", e.ID(), boxID, string(out))
		return nil, &Error{Type: ErrCmdStart, Message: "isolate init failed", Cause: err}
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), DefaultBoxCleanupTimeout)
		defer cancel()
		if out, err := exec.CommandContext(cleanupCtx, e.isolatePath, "--box-id="+boxID, "--cg", "--cleanup").CombinedOutput(); err != nil {
			log.Printf("[%s] BoxID %s: isolate cleanup failed. Output: %s, Error: %v", e.ID(), boxID, string(out), err)
		}
	}()

	args := isolateRunArgs(boxID, req, stdoutPath, stderrPath, metaPath)
	log.Printf("[%s] BoxID %s: Running %v for program %s", e.ID(), boxID, req.Command, req.Program)
	runErr := exec.CommandContext(ctx, e.isolatePath, args...).Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	stdout, _ := os.ReadFile(stdoutPath)
	stderr, _ := os.ReadFile(stderrPath)

	f, err := os.Open(metaPath)
	if err != nil {
		return nil, &Error{Type: ErrCmdWait, Message: "isolate meta file missing", Cause: runErr}
	}
	defer f.Close()
	meta, err := parseIsolateMeta(f)
	if err != nil {
		return nil, &Error{Type: ErrCmdWait, Message: "failed to parse isolate meta file", Cause: err}
	}
	if meta.Status == "XX" {
		return nil, &Error{Type: ErrCmdWait, Message: "isolate internal error: " + meta.Message}
	}

	return &ExecuteResult{
		Status:       meta.runStatus(req.MemoryLimitKb),
		Stdout:       string(stdout),
		Stderr:       string(stderr),
		ExitCode:     meta.ExitCode,
		TimeUsedMs:   meta.TimeSeconds * 1000,
		MemoryUsedKb: meta.CGMemKB,
	}, nil
}

func isolateRunArgs(boxID string, req RunRequest, stdoutPath, stderrPath, metaPath string) []string {
	args := []string{"--box-id=" + boxID, "--cg"}
	if req.MemoryLimitKb > 0 {
		args = append(args, fmt.Sprintf("--cg-mem=%d", req.MemoryLimitKb))
	}
	if req.TimeLimitMs > 0 {
		limit := float64(req.TimeLimitMs) / 1000.0
		args = append(args,
			fmt.Sprintf("--time=%.3f", limit),
			fmt.Sprintf("--wall-time=%.3f", limit*2),
		)
	}
	args = append(args,
		"--stdout="+stdoutPath,
		"--stderr="+stderrPath,
		"--meta="+metaPath,
		"--env=PATH="+DefaultEnvPath,
		fmt.Sprintf("--processes=%d", DefaultProcesses),
	)
	if req.WorkingDirectory != "" {
		args = append(args, "--dir=/box="+req.WorkingDirectory)
	}
	args = append(args, "--run", "--")
	return append(args, req.Command...)
}

// isolateMeta holds parsed data from the isolate --meta file.
type isolateMeta struct {
	TimeSeconds float64
	CGMemKB     int
	CGOOMKilled int
	ExitCode    int
	Status      string // TO, RE, SG, XX hoặc rỗng
	Message     string
}

func (m *isolateMeta) runStatus(memoryLimitKb int) models.RunStatus {
	if m.CGOOMKilled > 0 || (memoryLimitKb > 0 && m.CGMemKB > memoryLimitKb) {
		return models.MemoryLimitExceeded
	}
	switch m.Status {
	case "TO":
		return models.TimeLimitExceeded
	case "RE", "SG":
		return models.RuntimeError
	}
	if m.ExitCode != 0 {
		return models.RuntimeError
	}
	return models.Success
}

func parseIsolateMeta(r io.Reader) (*isolateMeta, error) {
	meta := &isolateMeta{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		var err error
		switch key {
		case "time":
			meta.TimeSeconds, err = strconv.ParseFloat(value, 64)
		case "cg-mem":
			meta.CGMemKB, err = strconv.Atoi(value)
		case "cg-oom-killed":
			meta.CGOOMKilled, err = strconv.Atoi(value)
		case "exitcode":
			meta.ExitCode, err = strconv.Atoi(value)
		case "status":
			meta.Status = value
		case "message":
			meta.Message = value
		}
		if err != nil {
			return nil, fmt.Errorf("meta %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return meta, nil
}
