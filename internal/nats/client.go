package nats

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Mirai3103/fib-bench/internal/config"
	"github.com/Mirai3103/fib-bench/internal/models"
)

// Connect mở kết nối NATS với các tuỳ chọn reconnect từ config.
func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(time.Duration(cfg.ReconnectWaitSec)*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("NATS connection closed.")
		}),
	)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server: %s", cfg.URL)
	return nc, nil
}

// Submit gửi một BenchRequest và chờ Report trả về qua request/reply.
func Submit(nc *nats.Conn, subject string, req models.BenchRequest, timeout time.Duration) (*models.Report, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	msg, err := nc.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("request %s on %s: %w", req.ID, subject, err)
	}
	var report models.Report
	if err := json.Unmarshal(msg.Data, &report); err != nil {
		return nil, fmt.Errorf("decode report for %s: %w", req.ID, err)
	}
	return &report, nil
}
