//go:build tinygo && stm32f103

package udc

import "runtime/interrupt"

// Ceiling serializes access to the peripheral between the interrupt
// activation and lower-priority code by masking interrupts.
type Ceiling struct{}

// Claim masks interrupts, runs fn with a token proving it, then restores
// the previous mask.
func (c *Ceiling) Claim(fn func(t *Threshold)) {
	state := interrupt.Disable()
	t := Threshold{ceiling: c, held: true}
	fn(&t)
	t.held = false
	interrupt.Restore(state)
}
