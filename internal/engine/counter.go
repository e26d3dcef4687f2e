package engine

import (
	"math"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// IncrementCounter initialises c for authority when it does not exist yet,
// and otherwise adds one market to it.
func IncrementCounter(c *domain.Counter, exists bool, authority string) error {
	if !exists {
		*c = domain.Counter{Authority: authority, Count: 1}
		return nil
	}
	if c.Count == math.MaxUint16 {
		return domain.ErrOverflow
	}
	c.Count++
	return nil
}
