package udc

import (
	"fmt"
	"log/slog"

	"github.com/ardnew/softudc/device"
	"github.com/ardnew/softudc/pkg"
)

// EventHandler supplies the application-specific answers the core needs
// while servicing the interrupt.
type EventHandler interface {
	// DeviceDescriptor returns the device descriptor. It is called from
	// interrupt context with the ceiling held and must not block.
	DeviceDescriptor(res Resources) *device.DeviceDescriptor
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(res Resources) *device.DeviceDescriptor

// DeviceDescriptor calls f(res).
func (f EventHandlerFunc) DeviceDescriptor(res Resources) *device.DeviceDescriptor {
	return f(res)
}

// Config holds Core options.
type Config struct {
	// Trap is called for conditions the dispatcher cannot recover from. It
	// defaults to a panic on hosted builds and a breakpoint on the target.
	Trap func(err error)

	// OnEvent, if set, is called once per activation after the handled
	// flag has been cleared, with the ceiling still held.
	OnEvent func(ev Event, res Resources)

	// CheckTxCompletion makes the dispatcher test CTR_TX after CTR_RX and
	// report IN completions. When false the second test repeats the CTR_RX
	// test, so an IN-only completion is trapped as a desync.
	CheckTxCompletion bool
}

// Core owns the USB peripheral: its register block, its packet memory and
// the ceiling guarding both.
type Core struct {
	regs    *Registers
	pma     *PMA
	ceiling Ceiling
	config  Config
}

// New returns a Core driving regs and mem.
func New(regs *Registers, mem PacketMemory, config Config) *Core {
	if config.Trap == nil {
		config.Trap = defaultTrap
	}
	return &Core{
		regs:   regs,
		pma:    NewPMA(mem),
		config: config,
	}
}

// Ceiling returns the ceiling guarding the peripheral.
func (c *Core) Ceiling() *Ceiling { return &c.ceiling }

// Registers returns the register block. t must be held.
func (c *Core) Registers(t *Threshold) *Registers {
	c.ceiling.check(t)
	return c.regs
}

// PMA returns the packet memory. t must be held.
func (c *Core) PMA(t *Threshold) *PMA {
	c.ceiling.check(t)
	return c.pma
}

// HandleInterrupt is the USB interrupt entry. It reads ISTR once and
// handles the highest-priority pending class only; anything else stays
// pending and re-raises the interrupt.
func (c *Core) HandleInterrupt(res Resources, h EventHandler) {
	c.ceiling.check(res.Threshold)

	istr := c.regs.ISTR.Get()
	ev := c.dispatch(istr, res, h)

	pkg.LogDebug(pkg.ComponentDispatch, "interrupt serviced",
		"istr", fmt.Sprintf("0x%04X", istr), "event", ev.String())

	if c.config.OnEvent != nil {
		c.config.OnEvent(ev, res)
	}
}

func (c *Core) dispatch(istr uint16, res Resources, h EventHandler) Event {
	switch {
	case istr&ISTR_RESET != 0:
		c.resetAll()
		c.clear(ISTR_RESET)
		return EventReset

	case istr&ISTR_CTR != 0:
		ev := c.correctTransfer(uint8(istr&ISTR_EP_ID), res, h)
		c.clear(ISTR_CTR)
		return ev

	case istr&ISTR_SOF != 0:
		c.clear(ISTR_SOF)
		return EventSOF

	case istr&ISTR_WKUP != 0:
		c.clear(ISTR_WKUP)
		return EventWakeup

	case istr&ISTR_SUSP != 0:
		c.clear(ISTR_SUSP)
		return EventSuspend

	case istr&ISTR_ERR != 0:
		c.clear(ISTR_ERR)
		return EventError
	}

	c.config.Trap(fmt.Errorf("%w: ISTR=0x%04X", pkg.ErrUnknownInterrupt, istr))
	return EventUnknown
}

// clear acknowledges one ISTR flag. Every other flag is written as 1 so a
// flag raised since the read is left pending.
func (c *Core) clear(flag uint16) {
	c.regs.ISTR.Set(^flag)
}

// correctTransfer classifies a completed transaction on endpoint id. The
// endpoint register is only read here: its CTR bits are acknowledged by
// the transfer logic that consumes the data.
func (c *Core) correctTransfer(id uint8, res Resources, h EventHandler) Event {
	if id >= NumEndpoints {
		c.config.Trap(fmt.Errorf("%w: EP_ID=%d", pkg.ErrEndpointIndex, id))
		return EventDesync
	}

	epr := c.regs.Endpoint(id).Raw()
	switch {
	case epr&EP_CTR_RX != 0 && epr&EP_SETUP != 0:
		c.setup(id, res, h)
		return EventSetup

	case epr&EP_CTR_RX != 0:
		pkg.LogDebug(pkg.ComponentDispatch, "OUT transaction", "ep", id,
			"count", c.pma.RxCount(id))
		return EventOut

	case c.txCompleted(epr):
		pkg.LogDebug(pkg.ComponentDispatch, "IN transaction", "ep", id)
		return EventIn
	}

	c.config.Trap(fmt.Errorf("%w: EP%dR=0x%04X", pkg.ErrTransferDesync, id, epr))
	return EventDesync
}

func (c *Core) txCompleted(epr uint16) bool {
	if c.config.CheckTxCompletion {
		return epr&EP_CTR_TX != 0
	}
	return epr&EP_CTR_RX != 0
}

func (c *Core) setup(id uint8, res Resources, h EventHandler) {
	desc := h.DeviceDescriptor(res)

	if !pkg.Enabled(slog.LevelDebug) {
		return
	}
	args := []any{"ep", id}
	var setup device.SetupPacket
	if c.readSetup(id, &setup) {
		args = append(args, "request", setup.String())
	}
	if desc != nil {
		args = append(args,
			"vid", fmt.Sprintf("0x%04X", desc.VendorID),
			"pid", fmt.Sprintf("0x%04X", desc.ProductID),
			"class", desc.DeviceClass.String(),
			"usb", desc.USBVersion.String())
	}
	pkg.LogDebug(pkg.ComponentDispatch, "SETUP transaction", args...)
}

// readSetup decodes the SETUP packet in the receive buffer of ep, if one is
// allocated and holds a full packet.
func (c *Core) readSetup(ep uint8, out *device.SetupPacket) bool {
	addr := c.pma.RxAddress(ep)
	if addr == 0 || c.pma.RxCount(ep) < device.SetupPacketSize {
		return false
	}
	var buf [device.SetupPacketSize]byte
	c.pma.ReadBytes(addr, buf[:])
	return device.ParseSetupPacket(buf[:], out) == nil
}

// ResetAll returns every endpoint register to its power-on value, empties
// the buffer descriptor table and clears the device address.
func (c *Core) ResetAll(t *Threshold) {
	c.ceiling.check(t)
	c.resetAll()
}

func (c *Core) resetAll() {
	for i := range uint8(NumEndpoints) {
		c.regs.Endpoint(i).Reset()
	}
	c.pma.Reset()
	c.regs.DADDR.Set(0)
	pkg.LogInfo(pkg.ComponentEndpoint, "endpoints reset")
}

// PowerOn brings the peripheral out of power-down: it clears pending
// status, makes EP0 a control endpoint, places the buffer table at offset
// 0, enables the interrupt sources the dispatcher handles while holding
// the macrocell in reset, calls wait for the analog startup time, then
// releases the reset with ForceReset. wait may be nil.
func (c *Core) PowerOn(t *Threshold, wait func()) {
	c.ceiling.check(t)

	c.regs.ISTR.Set(0)
	ep0 := c.regs.Endpoint(0)
	ep0.SetType(TypeControl)
	ep0.SetKind(false)
	c.regs.BTABLE.Set(0)
	c.regs.CNTR.Set(CNTR_FRES | CNTR_RESETM | CNTR_ERRM |
		CNTR_SOFM | CNTR_CTRM | CNTR_SUSPM | CNTR_WKUPM)

	if wait != nil {
		wait()
	}
	c.ForceReset(t)
	pkg.LogInfo(pkg.ComponentCore, "powered on", "cntr", fmt.Sprintf("0x%04X", c.regs.CNTR.Get()))
}

// ForceReset pulses CNTR.FRES. Releasing it makes the peripheral raise a
// RESET interrupt as if the host had reset the bus.
func (c *Core) ForceReset(t *Threshold) {
	c.ceiling.check(t)
	c.regs.CNTR.Set(c.regs.CNTR.Get() | CNTR_FRES)
	c.regs.CNTR.Set(c.regs.CNTR.Get() &^ CNTR_FRES)
}

// ConfigureControl allocates the EP0 receive buffer and then the transmit
// buffer, each maxPacket bytes, arms EP0 to accept SETUP and OUT while
// NAKing IN, and enables the function at address 0. It returns the two
// buffer addresses. It must run after each bus reset.
func (c *Core) ConfigureControl(t *Threshold, maxPacket uint16) (rx, tx uint16) {
	c.ceiling.check(t)

	rx = c.pma.AllocateRx(0, maxPacket)
	tx = c.pma.AllocateTx(0, maxPacket)

	ep0 := c.regs.Endpoint(0)
	ep0.SetType(TypeControl)
	ep0.SetAddress(0)
	ep0.SetStatRx(StatValid)
	ep0.SetStatTx(StatNAK)
	c.regs.DADDR.Set(DADDR_EF)

	pkg.LogInfo(pkg.ComponentCore, "control endpoint configured",
		"rx", rx, "tx", tx, "max_packet", maxPacket)
	return rx, tx
}

// SetDeviceAddress enables the function at the given bus address.
func (c *Core) SetDeviceAddress(t *Threshold, addr uint8) {
	c.ceiling.check(t)
	c.regs.DADDR.Set(DADDR_EF | uint16(addr)&DADDR_ADD)
	pkg.LogInfo(pkg.ComponentCore, "device address set", "addr", addr&0x7F)
}
