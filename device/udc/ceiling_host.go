//go:build !(tinygo && stm32f103)

package udc

import "sync"

// Ceiling serializes access to the peripheral between the interrupt
// activation and lower-priority code. On hosted builds a mutex stands in
// for masking the interrupt. Claim is not reentrant.
type Ceiling struct {
	mu sync.Mutex
}

// Claim raises the ceiling, runs fn with a token proving it, then lowers
// the ceiling again.
func (c *Ceiling) Claim(fn func(t *Threshold)) {
	c.mu.Lock()
	t := &Threshold{ceiling: c, held: true}
	defer func() {
		t.held = false
		c.mu.Unlock()
	}()
	fn(t)
}
