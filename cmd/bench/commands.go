package main

import (
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	appConfig "github.com/Mirai3103/fib-bench/internal/config"
	"github.com/Mirai3103/fib-bench/internal/core"
	"github.com/Mirai3103/fib-bench/internal/models"
	natsClient "github.com/Mirai3103/fib-bench/internal/nats"
	"github.com/Mirai3103/fib-bench/internal/worker"
)

// errBenchFailed báo rằng có chương trình không thành công; report đã được in.
var errBenchFailed = errors.New("one or more programs failed")

type options struct {
	configDir string
	v         *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "bench",
		Short:         "Run and score CPU micro-benchmarks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.v = appConfig.New(opts.configDir)
			bindFlags(opts.v, cmd.Flags())
		},
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config", "", "directory containing config.yaml")
	root.PersistentFlags().String("nats-url", "", "NATS server URL")

	root.AddCommand(newRunCmd(opts), newServeCmd(opts), newSubmitCmd(opts))
	return root
}

// flagKeys ánh xạ tên flag sang key của viper.
var flagKeys = map[string]string{
	"nats-url":     "nats.url",
	"min-duration": "bench.minDurationMs",
	"time-limit":   "bench.timeLimitMs",
	"memory-limit": "bench.memoryLimitKb",
	"max-jobs":     "bench.maxConcurrentJobs",
	"workdir":      "bench.workDir",
}

// bindFlags chỉ bind những flag được người dùng đặt, để default của viper không bị ghi đè.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			log.Printf("Error binding flag --%s: %v", f.Name, err)
		}
	})
}

func addBenchFlags(flags *pflag.FlagSet) {
	flags.Int("min-duration", 0, "repeat each program for at least this many milliseconds")
	flags.Int("time-limit", 0, "per-sample time limit in milliseconds")
	flags.Int("memory-limit", 0, "per-sample memory limit in KB (0 = unlimited)")
	flags.String("workdir", "", "working directory for direct programs")
}

func requestFromConfig(cfg *appConfig.Config, programs []string) (models.BenchRequest, error) {
	req := models.BenchRequest{
		ID:            fmt.Sprintf("bench-%d", time.Now().UnixNano()),
		Programs:      cfg.Bench.Programs,
		MinDurationMs: cfg.Bench.MinDurationMs,
		TimeLimitMs:   cfg.Bench.TimeLimitMs,
		MemoryLimitKb: cfg.Bench.MemoryLimitKb,
	}
	if len(programs) == 0 {
		return req, nil
	}

	byName := make(map[string]models.Program, len(cfg.Bench.Programs))
	for _, p := range cfg.Bench.Programs {
		byName[p.Name] = p
	}
	req.Programs = nil
	for _, name := range programs {
		p, ok := byName[name]
		if !ok {
			return req, fmt.Errorf("unknown program %q", name)
		}
		req.Programs = append(req.Programs, p)
	}
	return req, nil
}

func newRunCmd(opts *options) *cobra.Command {
	var publish bool
	cmd := &cobra.Command{
		Use:   "run [program...]",
		Short: "Run the configured programs locally and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appConfig.Load(opts.v)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			req, err := requestFromConfig(cfg, args)
			if err != nil {
				return err
			}

			var publisher core.Publisher
			if publish {
				nc, err := natsClient.Connect(cfg.NATS)
				if err != nil {
					return fmt.Errorf("connect to NATS: %w", err)
				}
				defer nc.Close()
				publisher = natsClient.NewPublisher(nc, cfg.NATS.ResultSubject)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := core.NewRunner(core.DefaultExecutors(), publisher, &cfg.Bench)
			report := runner.Run(ctx, req)
			if err := core.WriteReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				for _, res := range report.Results {
					if res.Status != models.Success {
						log.Printf("%s: %s: %s", res.Program, res.Status, strings.TrimSpace(res.Error))
					}
				}
				return errBenchFailed
			}
			return nil
		},
	}
	addBenchFlags(cmd.Flags())
	cmd.Flags().BoolVar(&publish, "publish", false, "also publish per-program results to NATS")
	return cmd
}

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for benchmark requests on NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Println("Starting Bench Service...")
			cfg, err := appConfig.Load(opts.v)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			nc, err := natsClient.Connect(cfg.NATS)
			if err != nil {
				return fmt.Errorf("connect to NATS: %w", err)
			}
			defer nc.Close()

			publisher := natsClient.NewPublisher(nc, cfg.NATS.ResultSubject)
			runner := core.NewRunner(core.DefaultExecutors(), publisher, &cfg.Bench)
			jobHandler := worker.NewJobHandler(runner, publisher, &cfg.Bench)

			subscriber := natsClient.NewSubscriber(nc, cfg.NATS.RequestSubject, cfg.NATS.QueueGroup, jobHandler)
			subscription, err := subscriber.SubscribeToRequests()
			if err != nil {
				return fmt.Errorf("subscribe to %s: %w", cfg.NATS.RequestSubject, err)
			}

			log.Println("Bench Service is now listening for requests on NATS.")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			log.Println("Shutting down Bench Service...")
			err = multierr.Append(nil, subscription.Unsubscribe())
			jobHandler.Wait()
			err = multierr.Append(err, nc.Drain())
			if err != nil {
				log.Printf("Error during shutdown: %v", err)
			}
			return err
		},
	}
	cmd.Flags().Int("max-jobs", 0, "maximum number of requests processed concurrently")
	return cmd
}

func newSubmitCmd(opts *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "submit [program...]",
		Short: "Send a benchmark request to a bench service and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appConfig.Load(opts.v)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			req, err := requestFromConfig(cfg, args)
			if err != nil {
				return err
			}

			nc, err := natsClient.Connect(cfg.NATS)
			if err != nil {
				return fmt.Errorf("connect to NATS: %w", err)
			}
			defer nc.Close()

			report, err := natsClient.Submit(nc, cfg.NATS.RequestSubject, req, timeout)
			if err != nil {
				return err
			}
			if err := core.WriteReport(cmd.OutOrStdout(), *report); err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return errBenchFailed
			}
			return nil
		},
	}
	addBenchFlags(cmd.Flags())
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for the report")
	return cmd
}
