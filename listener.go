package sharedconn

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ChainedExceptionListener fans a connection-level error out to an ordered
// list of delegates. Delegates run in the order they were added; a panic in
// one delegate is recovered and logged so the remaining delegates still run.
type ChainedExceptionListener struct {
	delegates []ExceptionListener
	logger    zerolog.Logger
}

// NewChainedExceptionListener creates a chain with the given delegates.
func NewChainedExceptionListener(logger zerolog.Logger, delegates ...ExceptionListener) *ChainedExceptionListener {
	return &ChainedExceptionListener{delegates: delegates, logger: logger}
}

// Add appends a delegate to the chain.
func (c *ChainedExceptionListener) Add(l ExceptionListener) {
	c.delegates = append(c.delegates, l)
}

// Len returns the number of delegates in the chain.
func (c *ChainedExceptionListener) Len() int {
	return len(c.delegates)
}

// OnException invokes every delegate with err, isolating failures per
// delegate.
func (c *ChainedExceptionListener) OnException(err error) {
	for _, d := range c.delegates {
		c.dispatch(d, err)
	}
}

func (c *ChainedExceptionListener) dispatch(d ExceptionListener, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn().
				Err(fmt.Errorf("%v", r)).
				Msg("exception listener panicked")
		}
	}()
	d.OnException(err)
}
