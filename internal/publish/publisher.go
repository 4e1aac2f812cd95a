package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"modes1090/internal/modes"
	"modes1090/internal/tracker"
)

const (
	// StreamName is the JetStream stream holding decoded messages.
	StreamName = "MODES_MESSAGES"

	// SubjectPrefix is followed by the ICAO address of the sender.
	SubjectPrefix = "modes.messages"
)

// JetStream is the subset of nats.JetStreamContext the publisher uses.
type JetStream interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// Event is the JSON document published per decoded message.
type Event struct {
	Session   string            `json:"session"`
	ICAO      string            `json:"icao"`
	DF        int               `json:"df"`
	Raw       string            `json:"raw"`
	CRCOK     bool              `json:"crc_ok"`
	Corrected int               `json:"corrected_bits"`
	Timestamp time.Time         `json:"timestamp"`
	SBS       string            `json:"sbs,omitempty"`
	Aircraft  *tracker.Aircraft `json:"aircraft,omitempty"`
}

// Publisher sends decoded messages to NATS JetStream, tagged with a session
// ID unique to this process run.
type Publisher struct {
	conn    *nats.Conn
	js      JetStream
	session string
	logger  *logrus.Logger
}

// Connect dials url and makes sure the stream exists.
func Connect(url string, logger *logrus.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("modes1090"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	p := NewWithJetStream(js, logger)
	p.conn = nc

	logger.WithFields(logrus.Fields{
		"url":     url,
		"stream":  StreamName,
		"session": p.session,
	}).Info("Publishing messages to NATS")

	return p, nil
}

// NewWithJetStream creates a publisher over an existing JetStream context.
func NewWithJetStream(js JetStream, logger *logrus.Logger) *Publisher {
	return &Publisher{
		js:      js,
		session: uuid.New().String(),
		logger:  logger,
	}
}

// Session returns the ID attached to every event.
func (p *Publisher) Session() string {
	return p.session
}

// Subject returns the subject used for an ICAO address.
func Subject(icao string) string {
	return SubjectPrefix + "." + icao
}

// Publish sends one message without waiting for the server acknowledgement.
func (p *Publisher) Publish(m *modes.Message, ac *tracker.Aircraft, sbs string) error {
	event := Event{
		Session:   p.session,
		ICAO:      m.ICAO(),
		DF:        m.DF,
		Raw:       m.Hex(),
		CRCOK:     m.CRCOK,
		Corrected: m.Corrected(),
		Timestamp: m.Timestamp,
		SBS:       sbs,
		Aircraft:  ac,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.PublishAsync(Subject(event.ICAO), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.WithError(err).Warn("NATS drain failed")
		p.conn.Close()
	}
}
