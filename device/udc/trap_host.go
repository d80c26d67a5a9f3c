//go:build !(tinygo && stm32f103)

package udc

// defaultTrap halts the activation.
func defaultTrap(err error) {
	panic(err)
}
