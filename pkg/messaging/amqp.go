// Package messaging publishes completed tone-analysis results to an AMQP
// queue for downstream consumers. Publishing is best-effort: the dialing
// loop never blocks on, or fails because of, the message broker.
package messaging

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"wardial-server/pkg/audio"
)

// toneResultMessage is the wire shape of one published analysis result.
type toneResultMessage struct {
	CallID string                   `json:"call_id"`
	Result audio.ToneAnalysisResult `json:"result"`
}

// AMQPPublisher sends analysis results to a durable queue.
type AMQPPublisher struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	logger    *logrus.Logger

	mu     sync.Mutex
	closed bool
}

// NewAMQPPublisher connects to the broker and declares the queue. There
// is no retry loop here; a dialer session either starts with messaging
// or without it.
func NewAMQPPublisher(url, queueName string, logger *logrus.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := channel.QueueDeclare(
		queueName,
		true,  // Durable
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	logger.WithField("queue", queueName).Info("Connected to AMQP broker")

	return &AMQPPublisher{
		conn:      conn,
		channel:   channel,
		queueName: queueName,
		logger:    logger,
	}, nil
}

// PublishToneResult implements audio.ResultPublisher.
func (p *AMQPPublisher) PublishToneResult(callID string, result audio.ToneAnalysisResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return amqp.ErrClosed
	}

	body, err := json.Marshal(toneResultMessage{CallID: callID, Result: result})
	if err != nil {
		return err
	}

	return p.channel.Publish(
		"",          // Exchange
		p.queueName, // Routing key (queue name)
		false,       // Mandatory
		false,       // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Close shuts the channel and connection. Safe to call more than once.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
