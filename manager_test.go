package sharedconn

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SameProxyAcrossConcurrentCalls(t *testing.T) {
	factory := &stubFactory{}
	mgr := New(Config{Factory: factory}, zerolog.Nop())
	defer mgr.Close()

	const callers = 32
	results := make([]Connection, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := mgr.Connection()
			require.NoError(t, err)
			results[i] = conn
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, factory.createdCount(), "exactly one physical connection")
	for i := 1; i < callers; i++ {
		require.Same(t, results[0], results[i])
	}
}

func TestManager_ProxySuppressesShutdown(t *testing.T) {
	target := &stubConnection{}
	factory := &stubFactory{queue: []*stubConnection{target}}
	mgr := New(Config{Factory: factory}, zerolog.Nop())
	defer mgr.Close()

	conn, err := mgr.Connection()
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Stop())
	require.NoError(t, conn.Close())

	assert.Equal(t, int64(0), target.closes.Load())
	assert.Equal(t, int64(0), target.stops.Load())

	// the manager itself still tears the target down
	mgr.Close()
	assert.Equal(t, int64(1), target.closes.Load())
	assert.Equal(t, int64(1), target.stops.Load())
}

func TestManager_ResetCreatesNewConnection(t *testing.T) {
	connA := &stubConnection{}
	connB := &stubConnection{}
	factory := &stubFactory{queue: []*stubConnection{connA, connB}}
	mgr := New(Config{Factory: factory}, zerolog.Nop())
	defer mgr.Close()

	p1, err := mgr.Connection()
	require.NoError(t, err)
	again, err := mgr.Connection()
	require.NoError(t, err)
	require.Same(t, p1, again)

	mgr.Reset()
	assert.Equal(t, int64(1), connA.stops.Load())
	assert.Equal(t, int64(1), connA.closes.Load())

	p2, err := mgr.Connection()
	require.NoError(t, err)
	require.NotSame(t, p1, p2)
	require.Equal(t, 2, factory.createdCount())
	assert.Equal(t, int64(0), connB.closes.Load())
}

func TestManager_ReconnectOnException(t *testing.T) {
	connA := &stubConnection{}
	connB := &stubConnection{}
	factory := &stubFactory{queue: []*stubConnection{connA, connB}}
	mgr := New(Config{Factory: factory, ReconnectOnException: true}, zerolog.Nop())
	defer mgr.Close()

	p1, err := mgr.Connection()
	require.NoError(t, err)

	connA.fireException(errors.New("connection forced"))

	p2, err := mgr.Connection()
	require.NoError(t, err)
	require.NotSame(t, p1, p2)
	require.Equal(t, 2, factory.createdCount())
	assert.Equal(t, int64(1), connA.closes.Load())
}

func TestManager_ExternalListenerWithoutReconnect(t *testing.T) {
	target := &stubConnection{}
	factory := &stubFactory{queue: []*stubConnection{target}}
	var seen error
	listener := ExceptionListenerFunc(func(err error) { seen = err })
	mgr := New(Config{Factory: factory, ExceptionListener: listener}, zerolog.Nop())
	defer mgr.Close()

	p1, err := mgr.Connection()
	require.NoError(t, err)

	fault := errors.New("connection forced")
	target.fireException(fault)
	require.Equal(t, fault, seen)

	// without ReconnectOnException the cached connection survives
	p2, err := mgr.Connection()
	require.NoError(t, err)
	require.Same(t, p1, p2)
	require.Equal(t, 1, factory.createdCount())
}

func TestManager_ExternalListenerRunsAfterRecovery(t *testing.T) {
	target := &stubConnection{}
	factory := &stubFactory{queue: []*stubConnection{target}}
	var seen error
	listener := ExceptionListenerFunc(func(err error) { seen = err })
	mgr := New(Config{
		Factory:              factory,
		ExceptionListener:    listener,
		ReconnectOnException: true,
	}, zerolog.Nop())
	defer mgr.Close()

	_, err := mgr.Connection()
	require.NoError(t, err)

	fault := errors.New("connection forced")
	target.fireException(fault)

	require.Equal(t, fault, seen)
	assert.Equal(t, int64(1), target.closes.Load())
}

func TestManager_WithCredentialsUnsupported(t *testing.T) {
	factory := &stubFactory{}
	mgr := New(Config{Factory: factory}, zerolog.Nop())
	defer mgr.Close()

	conn, err := mgr.ConnectionWithCredentials("guest", "guest")
	require.Nil(t, conn)
	var unsupported *UnsupportedOpError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, 0, factory.createdCount(), "manager state must not change")
}

func TestManager_ValidateRequiresFactoryOrConnection(t *testing.T) {
	mgr := New(Config{}, zerolog.Nop())
	var cfgErr *ConfigError
	require.ErrorAs(t, mgr.Validate(), &cfgErr)

	require.NoError(t, New(Config{Factory: &stubFactory{}}, zerolog.Nop()).Validate())
	require.NoError(t, New(Config{Connection: &stubConnection{}}, zerolog.Nop()).Validate())
}

func TestManager_DirectConnection(t *testing.T) {
	target := &stubConnection{}
	mgr := New(Config{Connection: target}, zerolog.Nop())
	defer mgr.Close()

	conn, err := mgr.Connection()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.Equal(t, int64(0), target.closes.Load())
}

func TestManager_ConnectionWithoutAnySource(t *testing.T) {
	mgr := New(Config{}, zerolog.Nop())
	_, err := mgr.Connection()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestManager_ClientIDApplied(t *testing.T) {
	target := &stubConnection{}
	factory := &stubFactory{queue: []*stubConnection{target}}
	mgr := New(Config{Factory: factory, ClientID: "invoicing"}, zerolog.Nop())
	defer mgr.Close()

	conn, err := mgr.Connection()
	require.NoError(t, err)
	assert.Equal(t, "invoicing", conn.ClientID())
	assert.Equal(t, "invoicing", target.ClientID())
}

func TestManager_CreateErrorPropagatesUnmodified(t *testing.T) {
	dialErr := errors.New("dial tcp: connection refused")
	factory := &stubFactory{err: dialErr}
	mgr := New(Config{Factory: factory}, zerolog.Nop())
	defer mgr.Close()

	_, err := mgr.Connection()
	require.Equal(t, dialErr, err)

	// no partial state: a later successful create works
	factory.mu.Lock()
	factory.err = nil
	factory.mu.Unlock()
	conn, err := mgr.Connection()
	require.NoError(t, err)
	require.NotNil(t, conn)
}

func TestManager_PrepareFailureDiscardsConnection(t *testing.T) {
	target := &stubConnection{clientErr: errors.New("client id taken")}
	factory := &stubFactory{queue: []*stubConnection{target}}
	mgr := New(Config{Factory: factory, ClientID: "dup"}, zerolog.Nop())
	defer mgr.Close()

	_, err := mgr.Connection()
	require.EqualError(t, err, "client id taken")
	assert.Equal(t, int64(1), target.closes.Load(), "half-prepared connection must be closed")
}

func TestManager_PrepareHookRuns(t *testing.T) {
	started := false
	mgr := New(Config{
		Factory: &stubFactory{},
		Prepare: func(target Connection) error {
			started = true
			return target.Start()
		},
	}, zerolog.Nop())
	defer mgr.Close()

	_, err := mgr.Connection()
	require.NoError(t, err)
	require.True(t, started)
}

func TestManager_CloseIdempotent(t *testing.T) {
	target := &stubConnection{}
	factory := &stubFactory{queue: []*stubConnection{target}}
	mgr := New(Config{Factory: factory}, zerolog.Nop())

	_, err := mgr.Connection()
	require.NoError(t, err)

	mgr.Close()
	mgr.Close()
	mgr.Reset()
	assert.Equal(t, int64(1), target.closes.Load())
}
