package nats

import (
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/Mirai3103/fib-bench/internal/models"
)

// RequestProcessor defines the interface for handling benchmark requests.
// reply is the message's reply subject and may be empty.
type RequestProcessor interface {
	HandleRequest(req models.BenchRequest, reply string)
}

type Subscriber struct {
	nc             *nats.Conn
	subject        string
	queueGroup     string
	requestHandler RequestProcessor
}

func NewSubscriber(nc *nats.Conn, subject, queueGroup string, handler RequestProcessor) *Subscriber {
	return &Subscriber{
		nc:             nc,
		subject:        subject,
		queueGroup:     queueGroup,
		requestHandler: handler,
	}
}

func (s *Subscriber) SubscribeToRequests() (*nats.Subscription, error) {
	subscription, err := s.nc.QueueSubscribe(s.subject, s.queueGroup, func(msg *nats.Msg) {
		log.Printf("Received a message on subject: %s, queue: %s", msg.Subject, msg.Sub.Queue)
		var req models.BenchRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Printf("Error unmarshalling bench request: %v. Message data: %s", err, string(msg.Data))
			return
		}

		s.requestHandler.HandleRequest(req, msg.Reply)
	})
	if err != nil {
		log.Printf("Error subscribing to NATS subject %s: %v", s.subject, err)
		return nil, err
	}

	log.Printf("Subscribed to NATS subject: %s, queue group: %s", s.subject, s.queueGroup)
	return subscription, nil
}
