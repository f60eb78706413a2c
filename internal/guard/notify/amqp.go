package notify

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
)

// AMQPNotifier publishes emergency payloads to a fanout exchange. Downstream
// workers (SMS, push) consume from their own queues; this service only owns
// the hand-off.
type AMQPNotifier struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPNotifier connects to the broker and declares the exchange.
func NewAMQPNotifier(amqpURL, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to open channel")
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrap(err, "failed to declare exchange")
	}

	return &AMQPNotifier{conn: conn, channel: ch, exchange: exchange}, nil
}

func (n *AMQPNotifier) Name() string {
	return "amqp"
}

// Notify publishes one message carrying the payload and the full guardian
// set. Per-recipient fan-out happens in the consumers, so a broker accept
// counts as delivered for every guardian.
func (n *AMQPNotifier) Notify(ctx context.Context, payload *EmergencyPayload, guardians []Guardian) ([]DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(struct {
		*EmergencyPayload
		Guardians []Guardian `json:"guardians"`
	}{payload, guardians})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal emergency payload")
	}

	// The publish runs off-goroutine: a stalled broker connection must not
	// hold the delivery attempt past its deadline.
	done := make(chan error, 1)
	go func() {
		done <- n.channel.Publish(
			n.exchange,
			"", // fanout ignores the routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
			},
		)
	}()

	select {
	case err = <-done:
		if err != nil {
			return nil, errors.Wrap(err, "failed to publish emergency payload")
		}
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "emergency publish aborted")
	}

	results := make([]DeliveryResult, len(guardians))
	for i, g := range guardians {
		results[i] = DeliveryResult{GuardianID: g.ID, Delivered: true}
	}
	return results, nil
}

// Close releases the channel and connection.
func (n *AMQPNotifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
