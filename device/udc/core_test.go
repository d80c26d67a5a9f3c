package udc_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ardnew/softudc/device"
	"github.com/ardnew/softudc/device/udc"
	"github.com/ardnew/softudc/device/udc/sim"
	"github.com/ardnew/softudc/pkg"
)

var testDescriptor = device.DeviceDescriptor{
	USBVersion:        device.NewVersion(1, 1, 0),
	DeviceClass:       device.ClassHID,
	MaxPacketSize0:    64,
	VendorID:          0x1209,
	ProductID:         0x0001,
	DeviceVersion:     device.NewVersion(0, 0, 1),
	NumConfigurations: 1,
}

// harness wires a Core to a simulated peripheral and records what the
// dispatcher reports.
type harness struct {
	core    *udc.Core
	p       *sim.Peripheral
	events  []udc.Event
	traps   []error
	handled int
	lastRes udc.Resources
	handler udc.EventHandler
}

func newHarness(t *testing.T, checkTx bool) *harness {
	t.Helper()
	h := &harness{p: sim.New()}
	h.handler = udc.EventHandlerFunc(func(res udc.Resources) *device.DeviceDescriptor {
		h.handled++
		h.lastRes = res
		return &testDescriptor
	})
	h.core = udc.New(h.p.Registers(), h.p.Memory(), udc.Config{
		Trap:              func(err error) { h.traps = append(h.traps, err) },
		OnEvent:           func(ev udc.Event, _ udc.Resources) { h.events = append(h.events, ev) },
		CheckTxCompletion: checkTx,
	})
	return h
}

func (h *harness) interrupt(state any) {
	h.core.Ceiling().Claim(func(t *udc.Threshold) {
		h.core.HandleInterrupt(udc.Resources{Threshold: t, State: state}, h.handler)
	})
}

func (h *harness) lastEvent() udc.Event {
	if len(h.events) == 0 {
		return udc.EventNone
	}
	return h.events[len(h.events)-1]
}

func TestHandleInterrupt_Reset(t *testing.T) {
	h := newHarness(t, false)
	mem := h.p.Memory()
	for ep := range uint8(udc.NumEndpoints) {
		h.p.SetEPR(ep, udc.EP_CTR_RX|udc.EP_DTOG_TX|udc.EP_STAT_RX|uint16(ep))
		mem.StoreHalfword(uint16(ep)*8, 200+uint16(ep)*8)
		mem.StoreHalfword(uint16(ep)*8+4, 204+uint16(ep)*8)
	}
	h.p.Registers().DADDR.Set(udc.DADDR_EF | 5)
	h.p.Raise(udc.ISTR_RESET | udc.ISTR_SOF | udc.ISTR_CTR)

	h.interrupt(nil)

	if h.lastEvent() != udc.EventReset {
		t.Fatalf("event = %s, want reset", h.lastEvent())
	}
	for ep := range uint8(udc.NumEndpoints) {
		if got := h.p.EPR(ep); got != 0 {
			t.Errorf("EP%dR = 0x%04X after reset, want 0", ep, got)
		}
		if h.p.Halfword(uint16(ep)*8) != 0 || h.p.Halfword(uint16(ep)*8+4) != 0 {
			t.Errorf("EP%d buffer addresses not cleared", ep)
		}
	}
	if h.p.DADDR() != 0 {
		t.Errorf("DADDR = 0x%04X, want 0", h.p.DADDR())
	}
	if got := h.p.ISTR(); got != udc.ISTR_SOF|udc.ISTR_CTR {
		t.Errorf("ISTR = 0x%04X, want SOF|CTR left pending", got)
	}
	if h.handled != 0 || len(h.traps) != 0 {
		t.Errorf("handled=%d traps=%v, want none", h.handled, h.traps)
	}
}

func TestHandleInterrupt_Priority(t *testing.T) {
	tests := []struct {
		name      string
		istr      uint16
		want      udc.Event
		remaining uint16
	}{
		{"reset first", udc.ISTR_RESET | udc.ISTR_ERR | udc.ISTR_SOF, udc.EventReset, udc.ISTR_ERR | udc.ISTR_SOF},
		{"sof before wakeup", udc.ISTR_SOF | udc.ISTR_WKUP | udc.ISTR_SUSP | udc.ISTR_ERR, udc.EventSOF, udc.ISTR_WKUP | udc.ISTR_SUSP | udc.ISTR_ERR},
		{"wakeup before suspend", udc.ISTR_WKUP | udc.ISTR_SUSP, udc.EventWakeup, udc.ISTR_SUSP},
		{"suspend before error", udc.ISTR_SUSP | udc.ISTR_ERR, udc.EventSuspend, udc.ISTR_ERR},
		{"error alone", udc.ISTR_ERR, udc.EventError, 0},
		{"esof ignored", udc.ISTR_ESOF | udc.ISTR_SOF, udc.EventSOF, udc.ISTR_ESOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			h.p.Raise(tt.istr)
			h.interrupt(nil)

			if len(h.events) != 1 || h.events[0] != tt.want {
				t.Fatalf("events = %v, want [%s]", h.events, tt.want)
			}
			if got := h.p.ISTR(); got != tt.remaining {
				t.Errorf("ISTR = 0x%04X, want 0x%04X", got, tt.remaining)
			}
		})
	}
}

func TestHandleInterrupt_DrainsOneFlagPerActivation(t *testing.T) {
	h := newHarness(t, false)
	h.p.Raise(udc.ISTR_RESET | udc.ISTR_SOF | udc.ISTR_WKUP | udc.ISTR_SUSP | udc.ISTR_ERR)

	for h.p.ISTR()&udc.ISTR_FLAGS != 0 && len(h.events) < 10 {
		h.interrupt(nil)
	}

	want := []udc.Event{udc.EventReset, udc.EventSOF, udc.EventWakeup, udc.EventSuspend, udc.EventError}
	if len(h.events) != len(want) {
		t.Fatalf("events = %v, want %v", h.events, want)
	}
	for i := range want {
		if h.events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, h.events[i], want[i])
		}
	}
}

func TestHandleInterrupt_CorrectTransfer(t *testing.T) {
	tests := []struct {
		name        string
		checkTx     bool
		epr         uint16
		want        udc.Event
		wantHandled int
		wantTrap    error
	}{
		{"setup", false, udc.EP_CTR_RX | udc.EP_SETUP, udc.EventSetup, 1, nil},
		{"setup with tx pending", false, udc.EP_CTR_RX | udc.EP_SETUP | udc.EP_CTR_TX, udc.EventSetup, 1, nil},
		{"out", false, udc.EP_CTR_RX, udc.EventOut, 0, nil},
		{"in traps by default", false, udc.EP_CTR_TX, udc.EventDesync, 0, pkg.ErrTransferDesync},
		{"in reported when checked", true, udc.EP_CTR_TX, udc.EventIn, 0, nil},
		{"neither", false, udc.EP_STAT_RX, udc.EventDesync, 0, pkg.ErrTransferDesync},
		{"neither when checked", true, 0, udc.EventDesync, 0, pkg.ErrTransferDesync},
		{"out when checked", true, udc.EP_CTR_RX | udc.EP_CTR_TX, udc.EventOut, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.checkTx)
			h.p.SetEPR(2, tt.epr)
			h.p.SetISTR(udc.ISTR_CTR | udc.ISTR_SOF | 2)
			writes := h.p.Writes()

			h.interrupt("on")

			if h.lastEvent() != tt.want {
				t.Errorf("event = %s, want %s", h.lastEvent(), tt.want)
			}
			if h.handled != tt.wantHandled {
				t.Errorf("handler calls = %d, want %d", h.handled, tt.wantHandled)
			}
			if tt.wantTrap == nil && len(h.traps) != 0 {
				t.Errorf("unexpected traps %v", h.traps)
			}
			if tt.wantTrap != nil && (len(h.traps) != 1 || !errors.Is(h.traps[0], tt.wantTrap)) {
				t.Errorf("traps = %v, want %v", h.traps, tt.wantTrap)
			}
			if got := h.p.ISTR(); got != udc.ISTR_SOF|2 {
				t.Errorf("ISTR = 0x%04X, want CTR cleared and SOF kept", got)
			}
			if got := h.p.EPR(2); got != tt.epr {
				t.Errorf("EP2R = 0x%04X, dispatcher must not write it (was 0x%04X)", got, tt.epr)
			}
			if got := h.p.Writes() - writes; got != 1 {
				t.Errorf("register writes = %d, want 1 (ISTR only)", got)
			}
		})
	}
}

func TestHandleInterrupt_SetupResources(t *testing.T) {
	h := newHarness(t, false)
	h.p.CompleteTransfer(0, sim.Setup)

	on := true
	h.interrupt(&on)

	if h.handled != 1 {
		t.Fatalf("handler calls = %d, want 1", h.handled)
	}
	if h.lastRes.State != &on {
		t.Error("handler did not receive the activation state")
	}
	if h.lastRes.Threshold.Held(h.core.Ceiling()) {
		t.Error("threshold still held after the activation")
	}
}

func TestHandleInterrupt_EndpointIDOutOfRange(t *testing.T) {
	h := newHarness(t, false)
	h.p.SetISTR(udc.ISTR_CTR | 0x000C)

	h.interrupt(nil)

	if h.lastEvent() != udc.EventDesync {
		t.Errorf("event = %s, want desync", h.lastEvent())
	}
	if len(h.traps) != 1 || !errors.Is(h.traps[0], pkg.ErrEndpointIndex) {
		t.Errorf("traps = %v, want ErrEndpointIndex", h.traps)
	}
	if h.p.ISTR()&udc.ISTR_CTR != 0 {
		t.Error("CTR not cleared")
	}
}

func TestHandleInterrupt_Unknown(t *testing.T) {
	for _, istr := range []uint16{0, udc.ISTR_ESOF, udc.ISTR_PMAOVR, udc.ISTR_DIR | 3} {
		h := newHarness(t, false)
		h.p.SetISTR(istr)
		writes := h.p.Writes()

		h.interrupt(nil)

		if len(h.traps) != 1 || !errors.Is(h.traps[0], pkg.ErrUnknownInterrupt) {
			t.Errorf("ISTR 0x%04X: traps = %v, want ErrUnknownInterrupt", istr, h.traps)
		}
		if h.lastEvent() != udc.EventUnknown {
			t.Errorf("ISTR 0x%04X: event = %s, want unknown", istr, h.lastEvent())
		}
		if h.p.Writes() != writes || h.p.ISTR() != istr {
			t.Errorf("ISTR 0x%04X: status written on unknown interrupt", istr)
		}
	}
}

// racingISTR raises a flag on the peripheral right after each read, as if
// the bus event arrived while the dispatcher was running.
type racingISTR struct {
	udc.Register
	p    *sim.Peripheral
	flag uint16
}

func (r racingISTR) Get() uint16 {
	v := r.Register.Get()
	r.p.Raise(r.flag)
	return v
}

func TestHandleInterrupt_ConcurrentFlagSurvives(t *testing.T) {
	p := sim.New()
	regs := p.Registers()
	regs.ISTR = racingISTR{Register: regs.ISTR, p: p, flag: udc.ISTR_SOF}

	var traps []error
	core := udc.New(regs, p.Memory(), udc.Config{Trap: func(err error) { traps = append(traps, err) }})
	p.Raise(udc.ISTR_RESET)

	core.Ceiling().Claim(func(t *udc.Threshold) {
		core.HandleInterrupt(udc.Resources{Threshold: t}, udc.EventHandlerFunc(
			func(udc.Resources) *device.DeviceDescriptor { return nil }))
	})

	if got := p.ISTR(); got != udc.ISTR_SOF {
		t.Errorf("ISTR = 0x%04X, want SOF raised during dispatch to survive", got)
	}
	if len(traps) != 0 {
		t.Errorf("traps = %v", traps)
	}
}

func TestCore_CeilingEnforced(t *testing.T) {
	h := newHarness(t, false)
	other := newHarness(t, false)

	var stale *udc.Threshold
	h.core.Ceiling().Claim(func(t *udc.Threshold) { stale = t })

	var foreign *udc.Threshold
	other.core.Ceiling().Claim(func(th *udc.Threshold) {
		foreign = th
		mustPanic(t, pkg.ErrCeilingNotHeld, func() {
			h.core.HandleInterrupt(udc.Resources{Threshold: foreign}, h.handler)
		})
	})

	mustPanic(t, pkg.ErrCeilingNotHeld, func() {
		h.core.HandleInterrupt(udc.Resources{}, h.handler)
	})
	mustPanic(t, pkg.ErrCeilingNotHeld, func() {
		h.core.HandleInterrupt(udc.Resources{Threshold: stale}, h.handler)
	})
	mustPanic(t, pkg.ErrCeilingNotHeld, func() { h.core.ResetAll(stale) })
	mustPanic(t, pkg.ErrCeilingNotHeld, func() { h.core.PMA(nil) })
	mustPanic(t, pkg.ErrCeilingNotHeld, func() { h.core.Registers(foreign) })

	if h.p.Writes() != 0 {
		t.Errorf("%d register writes without the ceiling", h.p.Writes())
	}
}

func TestCore_DefaultTrapPanics(t *testing.T) {
	p := sim.New()
	core := udc.New(p.Registers(), p.Memory(), udc.Config{})

	core.Ceiling().Claim(func(th *udc.Threshold) {
		mustPanic(t, pkg.ErrUnknownInterrupt, func() {
			core.HandleInterrupt(udc.Resources{Threshold: th}, nil)
		})
	})
}

func TestCore_PowerOn(t *testing.T) {
	h := newHarness(t, false)
	h.p.Raise(udc.ISTR_SUSP)
	h.p.SetEPR(0, udc.EP_KIND|udc.EP_DTOG_RX)

	waited := 0
	h.core.Ceiling().Claim(func(th *udc.Threshold) {
		h.core.PowerOn(th, func() {
			waited++
			if h.p.CNTR()&udc.CNTR_FRES == 0 {
				t.Error("reset released before startup wait")
			}
		})
	})

	if waited != 1 {
		t.Errorf("wait called %d times, want 1", waited)
	}
	wantCNTR := udc.CNTR_CTRM | udc.CNTR_ERRM | udc.CNTR_WKUPM | udc.CNTR_SUSPM | udc.CNTR_RESETM | udc.CNTR_SOFM
	if got := h.p.CNTR(); got != wantCNTR {
		t.Errorf("CNTR = 0x%04X, want 0x%04X", got, wantCNTR)
	}
	if got := h.p.ISTR(); got != udc.ISTR_RESET {
		t.Errorf("ISTR = 0x%04X, want RESET from reset release only", got)
	}
	ep0 := h.p.Registers().Endpoint(0)
	if ep0.Type() != udc.TypeControl || ep0.Kind() {
		t.Errorf("EP0 = %s, want control without kind", ep0)
	}
	if h.p.EPR(0)&udc.EP_DTOG_RX == 0 {
		t.Error("PowerOn toggled DTOG_RX")
	}
	if !h.p.Pending() {
		t.Error("reset interrupt not pending after power-on")
	}

	h.interrupt(nil)
	if h.lastEvent() != udc.EventReset {
		t.Errorf("first event = %s, want reset", h.lastEvent())
	}
}

func TestCore_ConfigureControl(t *testing.T) {
	h := newHarness(t, false)

	var rx, tx uint16
	h.core.Ceiling().Claim(func(th *udc.Threshold) {
		rx, tx = h.core.ConfigureControl(th, 64)
	})

	if rx != 448 || tx != 384 {
		t.Fatalf("ConfigureControl() = %d, %d, want 448, 384", rx, tx)
	}
	if h.p.Halfword(4) != 448 || h.p.Halfword(0) != 384 {
		t.Errorf("BDT addresses rx=%d tx=%d", h.p.Halfword(4), h.p.Halfword(0))
	}
	if got := h.p.Halfword(6); got != 0x8400 {
		t.Errorf("COUNT0_RX = 0x%04X, want 0x8400", got)
	}
	ep0 := h.p.Registers().Endpoint(0)
	if ep0.Type() != udc.TypeControl || ep0.StatRx() != udc.StatValid || ep0.StatTx() != udc.StatNAK {
		t.Errorf("EP0 = %s", ep0)
	}
	if got := h.p.DADDR(); got != udc.DADDR_EF {
		t.Errorf("DADDR = 0x%04X, want EF", got)
	}

	h.core.Ceiling().Claim(func(th *udc.Threshold) {
		h.core.SetDeviceAddress(th, 0x85)
	})
	if got := h.p.DADDR(); got != udc.DADDR_EF|0x05 {
		t.Errorf("DADDR = 0x%04X, want 0x0085", got)
	}

	h.core.Ceiling().Claim(func(th *udc.Threshold) {
		mustPanic(t, pkg.ErrRxSizeOdd, func() { h.core.ConfigureControl(th, 9) })
	})
}

func TestHandleInterrupt_SetupLogged(t *testing.T) {
	var buf bytes.Buffer
	original := pkg.DefaultLogger
	t.Cleanup(func() { pkg.SetLogger(original) })
	pkg.SetLogger(pkg.NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := newHarness(t, false)
	h.core.Ceiling().Claim(func(th *udc.Threshold) {
		h.core.ConfigureControl(th, 64)
	})

	var setup device.SetupPacket
	device.GetDescriptorSetup(&setup, device.DescriptorTypeDevice, 0, 64)
	var packet [device.SetupPacketSize]byte
	setup.MarshalTo(packet[:])
	if !h.p.ReceiveSetup(0, packet[:]) {
		t.Fatal("setup packet not stored")
	}

	h.interrupt(nil)

	out := buf.String()
	for _, want := range []string{"SETUP transaction", "GET_DESCRIPTOR", "vid=0x1209", "class=HID"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}
