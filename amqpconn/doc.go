// Package amqpconn adapts a RabbitMQ connection to the capability set the
// sharedconn manager consumes.
// This adapter is a wrapper around https://github.com/streadway/amqp.
// Key points:
// - Factory dials with configurable heartbeat and dial hook
// - server-initiated closes fan out to registered exception listeners
// - sessions map acknowledge modes onto channel semantics (Transacted -> Tx)
package amqpconn
