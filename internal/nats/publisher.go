package nats

import (
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/Mirai3103/fib-bench/internal/models"
)

type Publisher struct {
	nc            *nats.Conn
	resultSubject string
}

func NewPublisher(nc *nats.Conn, resultSubject string) *Publisher {
	return &Publisher{nc: nc, resultSubject: resultSubject}
}

// PublishProgramResult gửi kết quả của một chương trình lên resultSubject.
func (p *Publisher) PublishProgramResult(result models.ProgramResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("Error marshalling program result: %v", err)
		return err
	}

	if err := p.nc.Publish(p.resultSubject, data); err != nil {
		log.Printf("Error publishing program result to NATS: %v", err)
		return err
	}
	log.Printf("Published result for RequestID: %s, Program: %s to NATS topic %s", result.RequestID, result.Program, p.resultSubject)
	return nil
}

// Respond trả Report về reply subject của request.
func (p *Publisher) Respond(reply string, report models.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		log.Printf("Error marshalling report: %v", err)
		return err
	}
	if err := p.nc.Publish(reply, data); err != nil {
		log.Printf("Error publishing report to %s: %v", reply, err)
		return err
	}
	log.Printf("Sent report for RequestID: %s to %s", report.RequestID, reply)
	return nil
}
