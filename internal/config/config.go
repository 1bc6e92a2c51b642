package config

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Mirai3103/fib-bench/internal/models"
)

// Config chứa tất cả cấu hình cho fib-bench
type Config struct {
	NATS  NATSConfig  `mapstructure:"nats"`
	Bench BenchConfig `mapstructure:"bench"`
}

// NATSConfig chứa cấu hình kết nối NATS
type NATSConfig struct {
	URL              string `mapstructure:"url"`
	RequestSubject   string `mapstructure:"requestSubject"`
	ResultSubject    string `mapstructure:"resultSubject"`
	QueueGroup       string `mapstructure:"queueGroup"`
	MaxReconnects    int    `mapstructure:"maxReconnects"`
	ReconnectWaitSec int    `mapstructure:"reconnectWaitSec"`
}

// BenchConfig chứa cấu hình cho harness
type BenchConfig struct {
	MinDurationMs     int              `mapstructure:"minDurationMs"`     // Lặp lại mỗi chương trình cho đến khi đủ thời gian này
	TimeLimitMs       int              `mapstructure:"timeLimitMs"`       // Giới hạn cho một lần chạy
	MemoryLimitKb     int              `mapstructure:"memoryLimitKb"`     // 0 = không giới hạn
	MaxConcurrentJobs int              `mapstructure:"maxConcurrentJobs"` // Số request NATS xử lý đồng thời
	WorkDir           string           `mapstructure:"workDir"`
	Programs          []models.Program `mapstructure:"programs"`
}

// DefaultPrograms là danh sách chương trình khi không có file config.
func DefaultPrograms() []models.Program {
	return []models.Program{
		{Name: "fib/inprocess", Executor: "inprocess", Command: []string{"fib", "38"}, ExpectOutput: "39088169"},
		{Name: "fib/binary", Executor: "direct", Command: []string{"./bin/fib"}, ExpectOutput: "39088169"},
	}
}

// New trả về một viper instance đã đặt default, env và đường dẫn tìm file.
// cmd/bench dùng instance này để bind flag trước khi gọi Load.
func New(configPaths ...string) *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	for _, path := range configPaths {
		if path != "" {
			v.AddConfigPath(path)
		}
	}
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fib-bench/")

	// FIBBENCH_NATS_URL -> nats.url
	v.SetEnvPrefix("FIBBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.requestSubject", "bench.requested")
	v.SetDefault("nats.resultSubject", "bench.result")
	v.SetDefault("nats.queueGroup", "fib-bench-group")
	v.SetDefault("nats.maxReconnects", 5)
	v.SetDefault("nats.reconnectWaitSec", 2)
	v.SetDefault("bench.minDurationMs", 1000)
	v.SetDefault("bench.timeLimitMs", 10000)
	v.SetDefault("bench.memoryLimitKb", 0)
	v.SetDefault("bench.maxConcurrentJobs", 1)
	v.SetDefault("bench.workDir", ".")

	return v
}

// Load đọc .env (nếu có), file config và biến môi trường vào Config.
func Load(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Error loading .env file: %v", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			log.Printf("Error reading config file: %v", err)
			return nil, err
		}
		log.Println("Config file not found; using defaults and environment variables.")
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Printf("Error unmarshalling config: %s", err)
		return nil, err
	}
	if len(cfg.Bench.Programs) == 0 {
		cfg.Bench.Programs = DefaultPrograms()
	}

	log.Printf("Configuration loaded successfully: %+v", cfg)
	return &cfg, nil
}

// LoadConfig đọc cấu hình từ file và environment variables.
func LoadConfig(configPaths ...string) (*Config, error) {
	return Load(New(configPaths...))
}
