//go:build tinygo && stm32f103

package udc

import (
	"runtime/volatile"
	"unsafe"

	"github.com/ardnew/softudc/pkg"
)

// Peripheral addresses (RM0008 section 23.5).
const (
	usbBase uintptr = 0x40005C00
	pmaBase uintptr = 0x40006000

	offEPR    = 0x00
	offCNTR   = 0x40
	offISTR   = 0x44
	offFNR    = 0x48
	offDADDR  = 0x4C
	offBTABLE = 0x50
	eprStride = 0x04
)

var mmioTaken bool

func reg16(off uintptr) *volatile.Register16 {
	return (*volatile.Register16)(unsafe.Pointer(usbBase + off))
}

// TakeMMIO returns the USB register block and packet memory of the chip.
// It panics with pkg.ErrAlreadyTaken if called twice; call it during
// startup, before the USB interrupt is enabled.
func TakeMMIO() (*Registers, PacketMemory) {
	if mmioTaken {
		panic(pkg.ErrAlreadyTaken)
	}
	mmioTaken = true

	regs := &Registers{
		CNTR:   reg16(offCNTR),
		ISTR:   reg16(offISTR),
		FNR:    reg16(offFNR),
		DADDR:  reg16(offDADDR),
		BTABLE: reg16(offBTABLE),
	}
	for i := range regs.EP {
		regs.EP[i] = reg16(offEPR + uintptr(i)*eprStride)
	}
	return regs, packetMemory{}
}

// packetMemory maps packet-buffer offset k to CPU address pmaBase+2k: the
// packet memory is 16 bits wide on a 32-bit aligned bus.
type packetMemory struct{}

func (packetMemory) slot(offset uint16) *volatile.Register16 {
	return (*volatile.Register16)(unsafe.Pointer(pmaBase + uintptr(offset)*2))
}

func (m packetMemory) LoadHalfword(offset uint16) uint16 {
	return m.slot(offset).Get()
}

func (m packetMemory) StoreHalfword(offset, value uint16) {
	m.slot(offset).Set(value)
}
