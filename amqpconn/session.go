package amqpconn

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/sean-gilliam/sharedconn"
)

// DeliveryFunc is a callback function that is called for every delivered
// message. Return value true means that it must continue delivering; false
// means must cancel.
type DeliveryFunc func(*amqp.Delivery) bool

// Session is a unit of work on the shared connection, backed by a dedicated
// channel. It implements sharedconn.Session.
type Session struct {
	ch     *amqp.Channel
	mode   sharedconn.AcknowledgeMode
	id     string
	logger zerolog.Logger
}

// Mode returns the acknowledge mode the session was created with.
func (s *Session) Mode() sharedconn.AcknowledgeMode { return s.mode }

// Close releases the underlying channel.
func (s *Session) Close() error {
	if err := s.ch.Close(); err != nil {
		return &AMQPError{Message: "failed to close channel", Inner: err, Channel: s.id}
	}
	return nil
}

// Publish publishes pub to exchange with the given routeKey. Use an empty
// exchange and the queue name as routeKey to publish directly to a queue.
func (s *Session) Publish(exchange, routeKey string, mandatory bool, pub amqp.Publishing) error {
	if err := s.ch.Publish(exchange, routeKey, mandatory, false, pub); err != nil {
		return &AMQPError{Message: "failed to publish", Inner: err, Channel: s.id}
	}
	return nil
}

// QueueDeclare is a wrapper around amqp.QueueDeclare on this session's
// channel.
func (s *Session) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	queue, err := s.ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
	if err != nil {
		return queue, &AMQPError{Message: "failed to declare queue", Inner: err, Channel: s.id}
	}
	return queue, nil
}

// QueueBind is a wrapper around amqp.QueueBind on this session's channel.
func (s *Session) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	if err := s.ch.QueueBind(name, key, exchange, noWait, args); err != nil {
		return &AMQPError{Message: "failed to bind queue", Inner: err, Channel: s.id}
	}
	return nil
}

// Commit commits the current transaction. The session must have been created
// in Transacted mode.
func (s *Session) Commit() error {
	if s.mode != sharedconn.Transacted {
		return &sharedconn.IllegalStateError{Message: "commit on a non-transacted session"}
	}
	if err := s.ch.TxCommit(); err != nil {
		return &AMQPError{Message: "failed to commit", Inner: err, Channel: s.id}
	}
	return nil
}

// Rollback rolls back the current transaction. The session must have been
// created in Transacted mode.
func (s *Session) Rollback() error {
	if s.mode != sharedconn.Transacted {
		return &sharedconn.IllegalStateError{Message: "rollback on a non-transacted session"}
	}
	if err := s.ch.TxRollback(); err != nil {
		return &AMQPError{Message: "failed to rollback", Inner: err, Channel: s.id}
	}
	return nil
}

// Consume delivers queued messages to fn until the context is done, fn
// returns false, or the channel closes. Auto acknowledgement follows the
// session's acknowledge mode. It returns the count of messages delivered to
// fn and an error if the channel or connection was closed underneath it.
func (s *Session) Consume(ctx context.Context, queue string, fn DeliveryFunc) (int, error) {
	autoAck := s.mode == sharedconn.AutoAcknowledge
	deliveries, err := s.ch.Consume(queue, s.id, autoAck, false, false, false, nil)
	if err != nil {
		return 0, &AMQPError{Message: "failed to consume", Inner: err, Channel: s.id}
	}
	s.logger.Debug().Str("queue", queue).Msg("consume started")
	count := 0
	for {
		select {
		case d, open := <-deliveries:
			if !open {
				return count, &AMQPError{Message: "channel closed", Channel: s.id}
			}
			count++
			if !fn(&d) {
				return count, s.cancelDrain(deliveries, fn, &count)
			}
		case <-ctx.Done():
			return count, s.cancelDrain(deliveries, fn, &count)
		}
	}
}

// cancelDrain cancels the consumer and drains deliveries that were already
// inflight or buffered by the library.
func (s *Session) cancelDrain(deliveries <-chan amqp.Delivery, fn DeliveryFunc, count *int) error {
	if err := s.ch.Cancel(s.id, false); err != nil {
		return &AMQPError{Message: "failed to cancel consume", Inner: err, Channel: s.id}
	}
	for d := range deliveries {
		d := d
		*count++
		fn(&d)
	}
	s.logger.Debug().Msg("consume canceled")
	return nil
}
