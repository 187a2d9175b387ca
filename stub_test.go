package sharedconn

import (
	"sync"

	"go.uber.org/atomic"
)

// stubConnection is a countable Connection double. It records every
// lifecycle call so tests can verify which calls reached the real connection
// and which were absorbed by the proxy.
type stubConnection struct {
	starts   atomic.Int64
	stops    atomic.Int64
	closes   atomic.Int64
	disposes atomic.Int64
	sessions atomic.Int64

	sessionErr error
	clientErr  error

	mu        sync.Mutex
	clientID  string
	listeners []ExceptionListener
}

func (c *stubConnection) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

func (c *stubConnection) SetClientID(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clientErr != nil {
		return c.clientErr
	}
	c.clientID = id
	return nil
}

func (c *stubConnection) Start() error {
	c.starts.Inc()
	return nil
}

func (c *stubConnection) Stop() error {
	c.stops.Inc()
	return nil
}

func (c *stubConnection) Close() error {
	c.closes.Inc()
	return nil
}

func (c *stubConnection) Dispose() error {
	c.disposes.Inc()
	return nil
}

func (c *stubConnection) CreateSession(mode AcknowledgeMode) (Session, error) {
	if c.sessionErr != nil {
		return nil, c.sessionErr
	}
	c.sessions.Inc()
	return &stubSession{}, nil
}

func (c *stubConnection) AddExceptionListener(l ExceptionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *stubConnection) RemoveExceptionListener(l ExceptionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, reg := range c.listeners {
		if reg == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// fireException simulates a broker-reported connection error the way an
// adapter delivers one: on a goroutine that holds no caller locks.
func (c *stubConnection) fireException(err error) {
	c.mu.Lock()
	listeners := make([]ExceptionListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnException(err)
	}
}

type stubSession struct {
	closes atomic.Int64
}

func (s *stubSession) Close() error {
	s.closes.Inc()
	return nil
}

// stubFactory hands out queued connections, then fresh ones.
type stubFactory struct {
	mu      sync.Mutex
	queue   []*stubConnection
	err     error
	created int
}

func (f *stubFactory) CreateConnection() (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created++
	if len(f.queue) > 0 {
		c := f.queue[0]
		f.queue = f.queue[1:]
		return c, nil
	}
	return &stubConnection{}, nil
}

func (f *stubFactory) CreateConnectionWithCredentials(user, password string) (Connection, error) {
	return f.CreateConnection()
}

func (f *stubFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// countingCollector records lifecycle counts for assertions.
type countingCollector struct {
	created    atomic.Int64
	resets     atomic.Int64
	faults     atomic.Int64
	suppressed atomic.Int64
}

func (c *countingCollector) IncCreated()            { c.created.Inc() }
func (c *countingCollector) IncReset()              { c.resets.Inc() }
func (c *countingCollector) IncFault()              { c.faults.Inc() }
func (c *countingCollector) IncSuppressedShutdown() { c.suppressed.Inc() }
