package udc

import (
	"fmt"

	"github.com/ardnew/softudc/pkg"
)

// Threshold is proof that the holder runs with the USB priority ceiling
// raised. Threshold values are created by Ceiling.Claim and are valid only
// until the claimed function returns.
type Threshold struct {
	ceiling *Ceiling
	held    bool
}

// Held reports whether t is a live token of c.
func (t *Threshold) Held(c *Ceiling) bool {
	return t != nil && t.held && t.ceiling == c
}

func (c *Ceiling) check(t *Threshold) {
	if !t.Held(c) {
		panic(fmt.Errorf("%w: %p", pkg.ErrCeilingNotHeld, t))
	}
}

// Resources is the resource context of one activation: the ceiling token
// and the opaque state the scheduler owns on behalf of the application.
type Resources struct {
	Threshold *Threshold
	State     any
}
