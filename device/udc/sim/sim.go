// Package sim simulates the STM32F103 USB peripheral for hosted tests.
//
// A [Peripheral] stores the register and packet memory contents and applies
// the hardware write semantics: rc_w0 flags in ISTR and EPnR, toggle bits in
// EPnR, read-only fields, and the reset interrupt raised when CNTR.FRES is
// released. The bus side is driven through methods such as [Peripheral.Raise]
// and [Peripheral.CompleteTransfer]; the interrupt line is a channel that
// receives a signal whenever an enabled flag is pending.
package sim

import (
	"sync"

	"github.com/ardnew/softudc/device/udc"
	"github.com/ardnew/softudc/pkg"
)

// Peripheral is a simulated USB peripheral. All methods are safe for
// concurrent use.
type Peripheral struct {
	mu     sync.Mutex
	epr    [udc.NumEndpoints]uint16
	cntr   uint16
	istr   uint16
	fnr    uint16
	daddr  uint16
	btable uint16
	pma    [udc.PMASize]uint16
	writes int
	line   chan struct{}
}

// New returns a peripheral in its power-on state.
func New() *Peripheral {
	return &Peripheral{
		cntr: udc.CNTR_RESET_VALUE,
		line: make(chan struct{}, 1),
	}
}

// Registers returns a register block bound to p.
func (p *Peripheral) Registers() *udc.Registers {
	regs := &udc.Registers{
		CNTR:   register{p, kindCNTR, 0},
		ISTR:   register{p, kindISTR, 0},
		FNR:    register{p, kindFNR, 0},
		DADDR:  register{p, kindDADDR, 0},
		BTABLE: register{p, kindBTABLE, 0},
	}
	for i := range regs.EP {
		regs.EP[i] = register{p, kindEPR, uint8(i)}
	}
	return regs
}

// Memory returns the packet memory of p.
func (p *Peripheral) Memory() udc.PacketMemory {
	return memory{p}
}

// Line is the interrupt line. It carries at most one pending signal; the
// receiver should check Pending before servicing, as a level-triggered
// controller would.
func (p *Peripheral) Line() <-chan struct{} {
	return p.line
}

// Pending reports whether any enabled ISTR flag is set.
func (p *Peripheral) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingLocked()
}

func (p *Peripheral) pendingLocked() bool {
	return p.istr&p.cntr&udc.ISTR_FLAGS != 0
}

// signalLocked asserts the line if an enabled flag is pending.
func (p *Peripheral) signalLocked() {
	if !p.pendingLocked() {
		return
	}
	select {
	case p.line <- struct{}{}:
	default:
	}
}

// Raise sets ISTR event flags from the bus side. Bits outside the flag
// field are ignored.
func (p *Peripheral) Raise(flags uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.istr |= flags & udc.ISTR_FLAGS
	pkg.LogDebug(pkg.ComponentSim, "flags raised", "flags", udc.FlagNames(flags))
	p.signalLocked()
}

// Direction selects the transaction direction of CompleteTransfer.
type Direction uint8

// Transaction directions.
const (
	Out   Direction = iota // host to device, CTR_RX
	In                     // device to host, CTR_TX
	Setup                  // SETUP, CTR_RX with SETUP
)

// CompleteTransfer reports a finished transaction on endpoint ep: it sets
// the endpoint's correct-transfer bit and ISTR.CTR with EP_ID and DIR.
func (p *Peripheral) CompleteTransfer(ep uint8, dir Direction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completeLocked(ep, dir)
	p.signalLocked()
}

func (p *Peripheral) completeLocked(ep uint8, dir Direction) {
	switch dir {
	case Out:
		p.epr[ep] = p.epr[ep]&^udc.EP_SETUP | udc.EP_CTR_RX
	case Setup:
		p.epr[ep] |= udc.EP_CTR_RX | udc.EP_SETUP
	case In:
		p.epr[ep] |= udc.EP_CTR_TX
	}
	istr := p.istr&^(udc.ISTR_EP_ID|udc.ISTR_DIR) | udc.ISTR_CTR | uint16(ep)&udc.ISTR_EP_ID
	if dir != In {
		istr |= udc.ISTR_DIR
	}
	p.istr = istr
}

// ReceiveSetup stores packet in the receive buffer of ep, as recorded in
// the buffer descriptor table, updates its received count and completes a
// SETUP transaction. If ep has no receive buffer only the transaction is
// completed. It reports whether the packet was stored.
func (p *Peripheral) ReceiveSetup(ep uint8, packet []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	base := uint16(ep) * 8
	addr := p.pma[base+4]
	stored := false
	if addr != 0 && int(addr)+len(packet) <= udc.PMASize {
		for i := 0; i < len(packet); i += 2 {
			v := uint16(packet[i])
			if i+1 < len(packet) {
				v |= uint16(packet[i+1]) << 8
			}
			p.pma[int(addr)+i] = v
		}
		p.pma[base+6] = p.pma[base+6]&^0x03FF | uint16(len(packet))&0x03FF
		stored = true
	}
	p.completeLocked(ep, Setup)
	p.signalLocked()
	return stored
}

// SetISTR overwrites ISTR, read-only fields included, bypassing the write
// semantics. It models a status word the dispatcher would never normally
// observe.
func (p *Peripheral) SetISTR(v uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.istr = v
	p.signalLocked()
}

// SetEPR overwrites an endpoint register, bypassing the write semantics.
func (p *Peripheral) SetEPR(ep uint8, v uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epr[ep] = v
}

// ISTR returns the raw interrupt status.
func (p *Peripheral) ISTR() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.istr
}

// CNTR returns the raw control register.
func (p *Peripheral) CNTR() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cntr
}

// DADDR returns the raw device address register.
func (p *Peripheral) DADDR() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.daddr
}

// EPR returns the raw register of endpoint ep.
func (p *Peripheral) EPR(ep uint8) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epr[ep]
}

// Halfword returns the raw packet memory slot at offset.
func (p *Peripheral) Halfword(offset uint16) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pma[offset]
}

// Writes returns the number of register writes performed so far.
func (p *Peripheral) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// Frame advances the frame number and raises SOF.
func (p *Peripheral) Frame() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fnr = p.fnr&^0x07FF | (p.fnr+1)&0x07FF
	p.istr |= udc.ISTR_SOF
	p.signalLocked()
}
