package sharedconn

// AcknowledgeMode selects how deliveries on a session are acknowledged.
type AcknowledgeMode int

// Acknowledge modes supported by sessions created through a Connection.
const (
	// AutoAcknowledge acknowledges deliveries as they are handed to the
	// application. This is the default mode.
	AutoAcknowledge AcknowledgeMode = iota

	// ClientAcknowledge leaves acknowledgement to the application.
	ClientAcknowledge

	// Transacted groups session operations into transactions that the
	// application commits or rolls back.
	Transacted
)

func (m AcknowledgeMode) String() string {
	switch m {
	case AutoAcknowledge:
		return "auto"
	case ClientAcknowledge:
		return "client"
	case Transacted:
		return "transacted"
	default:
		return "unknown"
	}
}

// Session is a broker unit of work created from a Connection.
// The manager treats sessions as opaque beyond their lifetime.
type Session interface {
	Close() error
}

// ExceptionListener is notified of connection-level errors reported
// asynchronously by the broker.
type ExceptionListener interface {
	OnException(err error)
}

// ExceptionListenerFunc adapts a plain function to ExceptionListener.
type ExceptionListenerFunc func(err error)

// OnException calls f(err).
func (f ExceptionListenerFunc) OnException(err error) { f(err) }

// Connection is the capability set the manager requires of a broker
// connection. Implementations must be safe for concurrent use; the broker
// protocols this targets document connections as shareable across producers
// and consumers.
type Connection interface {
	// ClientID returns the client identifier, or "" if none was assigned.
	ClientID() string

	// SetClientID assigns the client identifier. The identifier can be set
	// at most once per connection; assigning a conflicting value fails.
	SetClientID(id string) error

	// Start begins (or resumes) delivery of inbound messages.
	Start() error

	// Stop pauses delivery of inbound messages.
	Stop() error

	// Close performs a protocol-level close of the connection.
	Close() error

	// Dispose releases all resources held by the connection. Unlike Close
	// this is a teardown signal issued by the owning manager, not something
	// client code calls in normal operation.
	Dispose() error

	// CreateSession creates a new session with the given acknowledge mode.
	CreateSession(mode AcknowledgeMode) (Session, error)

	// AddExceptionListener registers l to be invoked for connection-level
	// errors. Listeners run in registration order.
	AddExceptionListener(l ExceptionListener)

	// RemoveExceptionListener unregisters a previously added listener.
	RemoveExceptionListener(l ExceptionListener)
}

// ConnectionFactory produces broker connections on demand.
type ConnectionFactory interface {
	CreateConnection() (Connection, error)
	CreateConnectionWithCredentials(user, password string) (Connection, error)
}
