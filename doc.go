// Package sharedconn maintains a single long-lived broker connection shared
// by many independent clients.
// Key points:
// - lazy creation and caching of one physical connection
// - a proxy that absorbs Stop/Close so client code can "own" the connection
// - any broker-reported error can invalidate the cache and force a reconnect
// - optional session caching layered on the same connection
// - broker adapters live in subpackages (see amqpconn for RabbitMQ)
package sharedconn
