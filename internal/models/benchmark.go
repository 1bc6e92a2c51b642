package models

type RunStatus string

const (
	Success             RunStatus = "success"
	WrongOutput         RunStatus = "wrong_output"
	RuntimeError        RunStatus = "runtime_error"
	TimeLimitExceeded   RunStatus = "time_limit_exceeded"
	MemoryLimitExceeded RunStatus = "memory_limit_exceeded"
	Running             RunStatus = "running"
	InternalError       RunStatus = "internal_error"
)

// Program mô tả một chương trình benchmark.
// Executor chọn cách chạy: "direct" (tiến trình con) hoặc "inprocess".
type Program struct {
	Name         string   `json:"name" mapstructure:"name"`
	Executor     string   `json:"executor" mapstructure:"executor"`
	Command      []string `json:"command" mapstructure:"command"`
	ExpectOutput string   `json:"expectOutput" mapstructure:"expectOutput"`
}

type BenchRequest struct {
	ID            string    `json:"id"`
	Programs      []Program `json:"programs"`
	MinDurationMs int       `json:"minDurationMs"`
	TimeLimitMs   int       `json:"timeLimitMs"`
	MemoryLimitKb int       `json:"memoryLimitKb"`
}

type ProgramResult struct {
	RequestID    string    `json:"requestId"`
	Program      string    `json:"program"`
	Status       RunStatus `json:"status"`
	Samples      int       `json:"samples"`
	MeanMs       float64   `json:"meanMs"`
	MinMs        float64   `json:"minMs"`
	MaxMs        float64   `json:"maxMs"`
	PeakMemoryKb int       `json:"peakMemoryKb"`
	Output       string    `json:"output"`
	Error        string    `json:"error"`
}

// Report là kết quả tổng hợp của một BenchRequest.
// ScoreMs là trung bình nhân của MeanMs các chương trình thành công.
type Report struct {
	RequestID string          `json:"requestId"`
	Results   []ProgramResult `json:"results"`
	ScoreMs   float64         `json:"scoreMs"`
	Failed    []string        `json:"failed,omitempty"`
}
