package sharedconn

import (
	"sync"

	"github.com/rs/zerolog"
)

// SessionCache keeps a bounded number of sessions per acknowledge mode and
// hands them back out through the manager's session-resolution hook, layering
// session reuse on top of connection sharing.
//
// Sessions obtained through the cache return to it on Close instead of being
// closed, the same suppression trick the shared proxy plays for the
// connection itself. Cached sessions are bound to the connection they were
// created on; entries from a previous connection generation are discarded
// when encountered.
type SessionCache struct {
	size   int
	logger zerolog.Logger

	mu    sync.Mutex
	conn  Connection // generation the cached sessions belong to
	idle  map[AcknowledgeMode][]*cachedSession
	total int
}

const defaultSessionCacheSize = 1

// NewSessionCache creates a cache holding at most size idle sessions across
// all acknowledge modes. A size of 0 uses the default of 1.
func NewSessionCache(size int, logger zerolog.Logger) *SessionCache {
	if size <= 0 {
		size = defaultSessionCacheSize
	}
	return &SessionCache{
		size:   size,
		logger: logger,
		idle:   make(map[AcknowledgeMode][]*cachedSession),
	}
}

// Resolver returns the hook to plug into Config.ResolveSession.
func (c *SessionCache) Resolver() SessionResolver {
	return c.resolve
}

func (c *SessionCache) resolve(target Connection, mode AcknowledgeMode) (Session, error) {
	c.mu.Lock()
	if c.conn != target {
		// the manager reconnected; everything cached died with the old
		// connection
		c.dropAllLocked()
		c.conn = target
	}
	if idle := c.idle[mode]; len(idle) > 0 {
		s := idle[len(idle)-1]
		c.idle[mode] = idle[:len(idle)-1]
		c.total--
		c.mu.Unlock()
		c.logger.Debug().Str("ack_mode", mode.String()).Msg("reusing cached session")
		return s, nil
	}
	c.mu.Unlock()

	real, err := target.CreateSession(mode)
	if err != nil {
		return nil, err
	}
	return &cachedSession{target: real, conn: target, mode: mode, cache: c}, nil
}

// put returns s to the cache, or closes it for real when the cache is full or
// the connection generation has moved on.
func (c *SessionCache) put(s *cachedSession) error {
	c.mu.Lock()
	if s.conn == c.conn && c.total < c.size {
		c.idle[s.mode] = append(c.idle[s.mode], s)
		c.total++
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return s.target.Close()
}

func (c *SessionCache) dropAllLocked() {
	for mode, idle := range c.idle {
		for _, s := range idle {
			if err := s.target.Close(); err != nil {
				c.logger.Warn().Err(err).Msg("failed to close stale cached session")
			}
		}
		delete(c.idle, mode)
	}
	c.total = 0
}

// Close discards every idle session. Call it when the owning manager shuts
// down.
func (c *SessionCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropAllLocked()
	c.conn = nil
}

// cachedSession wraps a real session so that Close returns it to the cache.
type cachedSession struct {
	target Session
	conn   Connection
	mode   AcknowledgeMode
	cache  *SessionCache
}

func (s *cachedSession) Close() error {
	return s.cache.put(s)
}
