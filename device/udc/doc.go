// Package udc drives the USB full-speed device controller of the STM32F103.
//
// A [Core] owns three things: the peripheral [Registers], the packet memory
// ([PMA]) with its buffer descriptor table, and the [Ceiling] that
// serializes access to both. Every operation that touches hardware requires
// a [Threshold] obtained from [Ceiling.Claim]; calling one without a live
// token panics.
//
// # Interrupt dispatch
//
// [Core.HandleInterrupt] is the USB interrupt entry. Each activation reads
// ISTR once and handles exactly one class of event, in priority order:
//
//	RESET > CTR > SOF > WKUP > SUSP > ERR
//
// Only the handled flag is cleared. Lower-priority flags stay pending and
// the interrupt fires again. An activation with no recognized flag, or a
// correct-transfer interrupt whose endpoint shows no completed
// transaction, calls [Config.Trap].
//
// # Packet memory
//
// The first 64 address units hold the buffer descriptor table. Buffers are
// carved downward from the top of memory by [PMA.AllocateNext], which finds
// the lowest address recorded in the table. Nothing is freed until the next
// bus reset zeroes the table.
//
// # Endpoint registers
//
// EPnR registers mix clear-only, toggle and read/write bits. The [Endpoint]
// mutators compute write words that change only the requested field.
//
// # Targets
//
// Under TinyGo with the stm32f103 build tag, [TakeMMIO] binds the real
// registers and the ceiling masks interrupts. Elsewhere the ceiling is a
// mutex and the package sim provides a simulated peripheral.
package udc
