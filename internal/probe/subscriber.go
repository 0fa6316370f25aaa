package probe

import (
	"FlowLens/internal/config"
	"log"

	"github.com/nats-io/nats.go"
)

// DocumentHandler is a function that processes one received flow-log document.
type DocumentHandler func(document []byte)

// Subscriber is responsible for subscribing to a NATS subject and processing messages.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.ProbeConfig) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes to the given subject and starts processing messages with the provided handler.
func (s *Subscriber) Start(handler DocumentHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for messages...", s.subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
