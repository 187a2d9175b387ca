package sharedconn

import (
	"fmt"

	"github.com/rs/zerolog"
)

// SessionResolver is the session-acquisition hook consulted by the shared
// proxy before it creates a plain session on the target connection.
// Returning (nil, nil) means no cached session is available and the proxy
// falls through to CreateSession on the target.
type SessionResolver func(target Connection, mode AcknowledgeMode) (Session, error)

// sharedConnection is the proxy handed out by the manager in place of the
// real connection. It delegates everything to the wrapped target except the
// shutdown operations, which are absorbed so that client code calling
// Stop/Close does not tear the connection down for every other holder.
//
// A proxy wraps exactly one target for its whole lifetime. After a reset the
// manager hands out a new proxy; stale proxies keep no-oping their shutdown
// calls against the discarded target.
type sharedConnection struct {
	target  Connection
	resolve SessionResolver
	metrics Collector
	logger  zerolog.Logger
}

func newSharedConnection(target Connection, resolve SessionResolver, metrics Collector, logger zerolog.Logger) *sharedConnection {
	return &sharedConnection{
		target:  target,
		resolve: resolve,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *sharedConnection) ClientID() string {
	return c.target.ClientID()
}

// SetClientID succeeds as a no-op when id matches what the target already
// carries (including both being unset). A conflicting assignment fails: the
// identifier of a shared connection belongs to the manager configuration.
func (c *sharedConnection) SetClientID(id string) error {
	current := c.target.ClientID()
	if current == id {
		return nil
	}
	if current != "" {
		return &IllegalStateError{Message: fmt.Sprintf(
			"cannot change client id %q of a shared connection to %q; configure the id on the connection manager instead",
			current, id)}
	}
	return c.target.SetClientID(id)
}

func (c *sharedConnection) Start() error {
	return c.target.Start()
}

// Stop is absorbed; the shared connection keeps running for other holders.
func (c *sharedConnection) Stop() error {
	c.metrics.IncSuppressedShutdown()
	c.logger.Debug().Msg("suppressed stop of shared connection")
	return nil
}

// Close is absorbed; only the manager closes the real connection.
func (c *sharedConnection) Close() error {
	c.metrics.IncSuppressedShutdown()
	c.logger.Debug().Msg("suppressed close of shared connection")
	return nil
}

// Dispose is a manager-issued teardown signal, not a protocol close, so it
// passes through.
func (c *sharedConnection) Dispose() error {
	return c.target.Dispose()
}

func (c *sharedConnection) CreateSession(mode AcknowledgeMode) (Session, error) {
	if c.resolve != nil {
		s, err := c.resolve(c.target, mode)
		if err != nil {
			return nil, err
		}
		if s != nil {
			return s, nil
		}
	}
	return c.target.CreateSession(mode)
}

func (c *sharedConnection) AddExceptionListener(l ExceptionListener) {
	c.target.AddExceptionListener(l)
}

func (c *sharedConnection) RemoveExceptionListener(l ExceptionListener) {
	c.target.RemoveExceptionListener(l)
}
