//go:build tinygo && stm32f103

package udc

import (
	"device/arm"

	"github.com/ardnew/softudc/pkg"
)

// defaultTrap stops at a breakpoint. Without a debugger attached the
// breakpoint escalates to a hard fault.
func defaultTrap(err error) {
	pkg.LogError(pkg.ComponentDispatch, "trap", "error", err)
	arm.Asm("bkpt")
}
