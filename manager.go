package sharedconn

import (
	"sync"

	shortuuid "github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog"
)

// PrepareFunc is a hook run against a freshly created connection before it is
// exposed through the shared proxy. It runs after the manager's own
// preparation (client id, exception-listener subscription).
type PrepareFunc func(target Connection) error

// Config controls connection-manager parameters.
type Config struct {

	// Factory produces real broker connections on demand. It may be left nil
	// only if Connection is set.
	Factory ConnectionFactory

	// Connection is an externally created connection for the manager to
	// share. When set and Factory is nil, the manager shares this connection
	// instead of creating its own.
	Connection Connection

	// ClientID, if non-empty, is assigned to every connection the manager
	// creates before the connection is exposed to callers. Client ids must
	// be unique per broker.
	ClientID string

	// ExceptionListener, if set, is notified of every connection-level error
	// reported by the broker, in addition to the manager's own recovery
	// handling.
	ExceptionListener ExceptionListener

	// ReconnectOnException makes the manager subscribe itself to the
	// connection's exception channel and discard the cached connection on
	// any reported error, so the next Connection call reconnects.
	ReconnectOnException bool

	// Prepare, if set, runs after the manager's default preparation of each
	// new connection. A failure aborts initialization.
	Prepare PrepareFunc

	// ResolveSession, if set, is consulted by the shared proxy before it
	// creates a session on the real connection. It enables session caching
	// layered on top of connection sharing; see SessionCache.
	ResolveSession SessionResolver

	// Metrics collects lifecycle counters. Defaults to Noop().
	Metrics Collector
}

// ConnectionManager maintains a single shared broker connection and hands out
// a lifecycle-suppressing proxy for it, so that any number of independent
// callers can obtain "a connection" and close it when done without tearing it
// down for the others.
//
// The connection is created lazily on first use and cached until Reset,
// Close, or (with ReconnectOnException) a broker-reported error discards it.
// All callers between two resets observe the same proxy instance.
type ConnectionManager struct {
	cfg     Config
	metrics Collector
	logger  zerolog.Logger

	mu     sync.Mutex // guards target and shared together
	target Connection
	shared *sharedConnection
}

// New creates a connection manager configured with cfg. Call Validate after
// configuration and Close at shutdown.
func New(cfg Config, logger zerolog.Logger) *ConnectionManager {
	if cfg.Metrics == nil {
		cfg.Metrics = Noop()
	}
	return &ConnectionManager{
		cfg:     cfg,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Validate checks that the manager has a way to obtain a connection. It is
// the post-configuration step the host lifecycle must invoke once before
// first use.
func (m *ConnectionManager) Validate() error {
	if m.cfg.Factory == nil && m.cfg.Connection == nil {
		return &ConfigError{Message: "connection or connection factory must be set"}
	}
	return nil
}

// Connection returns the shared connection proxy, lazily establishing the
// real connection on first use. Every caller receives the same proxy until
// the next reset. Errors from the broker during establishment propagate
// unmodified and leave the manager without a cached connection.
func (m *ConnectionManager) Connection() (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.target == nil {
		if err := m.initConnection(); err != nil {
			return nil, err
		}
	}
	return m.shared, nil
}

// ConnectionWithCredentials always fails: a shared connection cannot carry
// per-call credentials.
func (m *ConnectionManager) ConnectionWithCredentials(user, password string) (Connection, error) {
	return nil, &UnsupportedOpError{
		Op:     "per-call credentials",
		Reason: "the managed connection is shared by all callers",
	}
}

// Reset discards the cached connection and proxy, returning the manager to
// its uninitialized state. The discarded connection is stopped and closed;
// failures on that path are logged and suppressed so they never block
// recovery. The next Connection call establishes a fresh connection.
func (m *ConnectionManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetConnection()
}

// OnException implements ExceptionListener. Any broker-reported error
// invalidates the cached connection; no attempt is made to classify errors
// by severity.
func (m *ConnectionManager) OnException(err error) {
	m.logger.Warn().Err(err).Msg("shared connection reported an error, resetting")
	m.metrics.IncFault()
	m.Reset()
}

// Close releases the managed connection. It is the teardown step the host
// lifecycle invokes at shutdown and is safe to call more than once.
func (m *ConnectionManager) Close() {
	m.Reset()
}

// initConnection is called with m.mu held.
func (m *ConnectionManager) initConnection() error {
	if m.target != nil {
		// guard against re-entrant initialization
		m.closeTarget(m.target)
	}
	target, err := m.createConnection()
	if err != nil {
		m.target = nil
		m.shared = nil
		return err
	}
	logger := m.logger.With().Str("shared_connection_id", shortuuid.New()).Logger()
	if err := m.prepareConnection(target, logger); err != nil {
		m.closeTarget(target)
		m.target = nil
		m.shared = nil
		return err
	}
	m.target = target
	m.shared = newSharedConnection(target, m.cfg.ResolveSession, m.metrics, logger)
	m.metrics.IncCreated()
	logger.Info().Msg("established shared connection")
	return nil
}

func (m *ConnectionManager) createConnection() (Connection, error) {
	if m.cfg.Factory != nil {
		return m.cfg.Factory.CreateConnection()
	}
	if m.cfg.Connection != nil {
		return m.cfg.Connection, nil
	}
	return nil, &ConfigError{Message: "connection or connection factory must be set"}
}

// prepareConnection applies the client id and subscribes the composed
// exception listener before the connection is exposed.
func (m *ConnectionManager) prepareConnection(target Connection, logger zerolog.Logger) error {
	if m.cfg.ClientID != "" {
		if err := target.SetClientID(m.cfg.ClientID); err != nil {
			return err
		}
	}
	if m.cfg.ExceptionListener != nil || m.cfg.ReconnectOnException {
		chain := NewChainedExceptionListener(logger)
		if m.cfg.ReconnectOnException {
			chain.Add(ExceptionListenerFunc(m.OnException))
		}
		if m.cfg.ExceptionListener != nil {
			chain.Add(m.cfg.ExceptionListener)
		}
		target.AddExceptionListener(chain)
	}
	if m.cfg.Prepare != nil {
		return m.cfg.Prepare(target)
	}
	return nil
}

// resetConnection is called with m.mu held.
func (m *ConnectionManager) resetConnection() {
	if m.target == nil {
		return
	}
	m.closeTarget(m.target)
	m.target = nil
	m.shared = nil
	m.metrics.IncReset()
}

// closeTarget shuts target down gracefully. Shutdown failures are logged and
// never propagated: a connection that refuses to die cleanly must not block
// its replacement.
func (m *ConnectionManager) closeTarget(target Connection) {
	if err := target.Stop(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to stop shared connection")
	}
	if err := target.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to close shared connection")
	}
}
