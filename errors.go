package sharedconn

import "fmt"

// ConfigError is returned when the manager is used before it has been given
// either a connection factory or a connection.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Message
}

// UnsupportedOpError is returned for operations the shared-connection model
// cannot support, such as per-call credentials.
type UnsupportedOpError struct {
	Op     string
	Reason string
}

func (e *UnsupportedOpError) Error() string {
	str := fmt.Sprintf("%v is not supported", e.Op)
	if e.Reason != "" {
		str += ": " + e.Reason
	}
	return str
}

// IllegalStateError is returned when an operation conflicts with the current
// state of the shared connection, such as changing an established client id.
type IllegalStateError struct {
	Message string
}

func (e *IllegalStateError) Error() string {
	return e.Message
}
