package probe

import (
	"FlowLens/internal/config"
	"log"

	"github.com/nats-io/nats.go"
)

// Publisher is responsible for publishing flow-log documents to a NATS topic.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish sends one raw flow-log document to the configured NATS subject.
// Documents travel as-is; the engine side owns decoding and validation.
func (p *Publisher) Publish(document []byte) error {
	return p.nc.Publish(p.subject, document)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
