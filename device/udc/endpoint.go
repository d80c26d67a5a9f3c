package udc

import "fmt"

// EPnR bit fields.
//
// The register mixes three write behaviors. CTR_RX and CTR_TX are rc_w0
// (write 0 clears, 1 leaves). DTOG_* and STAT_* toggle when written with 1.
// SETUP is read-only. Everything else is plain read/write. Writing a value
// read a moment earlier back to the register is therefore never a no-op:
// every mutator below builds its write word from a fresh read so that only
// the intended bits change.
const (
	EP_CTR_RX  uint16 = 1 << 15
	EP_DTOG_RX uint16 = 1 << 14
	EP_STAT_RX uint16 = 3 << 12
	EP_SETUP   uint16 = 1 << 11
	EP_TYPE    uint16 = 3 << 9
	EP_KIND    uint16 = 1 << 8
	EP_CTR_TX  uint16 = 1 << 7
	EP_DTOG_TX uint16 = 1 << 6
	EP_STAT_TX uint16 = 3 << 4
	EP_EA      uint16 = 0x000F

	// EP_CLEAR_ONLY bits are rc_w0.
	EP_CLEAR_ONLY = EP_CTR_RX | EP_CTR_TX
	// EP_TOGGLE bits flip when written with 1.
	EP_TOGGLE = EP_DTOG_RX | EP_STAT_RX | EP_DTOG_TX | EP_STAT_TX
	// EP_RW bits are stored as written.
	EP_RW = EP_TYPE | EP_KIND | EP_EA
)

const (
	epStatRxShift = 12
	epStatTxShift = 4
	epTypeShift   = 9
)

// EndpointType is the EP_TYPE field encoding.
type EndpointType uint8

// Endpoint type encodings. Note these differ from the bmAttributes encoding
// used in endpoint descriptors.
const (
	TypeBulk        EndpointType = 0
	TypeControl     EndpointType = 1
	TypeIsochronous EndpointType = 2
	TypeInterrupt   EndpointType = 3
)

// String returns the endpoint type name.
func (t EndpointType) String() string {
	switch t {
	case TypeBulk:
		return "bulk"
	case TypeControl:
		return "control"
	case TypeIsochronous:
		return "isochronous"
	case TypeInterrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("EndpointType(%d)", uint8(t))
	}
}

// Stat is the STAT_RX/STAT_TX handshake state of one endpoint direction.
type Stat uint8

// Handshake states.
const (
	StatDisabled Stat = 0 // all requests ignored
	StatStall    Stat = 1 // answer with STALL
	StatNAK      Stat = 2 // answer with NAK
	StatValid    Stat = 3 // ready for a transaction
)

// String returns the state name.
func (s Stat) String() string {
	switch s {
	case StatDisabled:
		return "disabled"
	case StatStall:
		return "stall"
	case StatNAK:
		return "nak"
	case StatValid:
		return "valid"
	default:
		return fmt.Sprintf("Stat(%d)", uint8(s))
	}
}

// Endpoint is a view of one EPnR register.
type Endpoint struct {
	reg   Register
	index uint8
}

// Index returns the endpoint index (0-7).
func (e Endpoint) Index() uint8 { return e.index }

// Raw reads the register.
func (e Endpoint) Raw() uint16 { return e.reg.Get() }

// CorrectRx reports whether an OUT or SETUP transaction completed.
func (e Endpoint) CorrectRx() bool { return e.reg.Get()&EP_CTR_RX != 0 }

// CorrectTx reports whether an IN transaction completed.
func (e Endpoint) CorrectTx() bool { return e.reg.Get()&EP_CTR_TX != 0 }

// Setup reports whether the last completed reception was a SETUP.
func (e Endpoint) Setup() bool { return e.reg.Get()&EP_SETUP != 0 }

// Type returns the transfer type.
func (e Endpoint) Type() EndpointType {
	return EndpointType((e.reg.Get() & EP_TYPE) >> epTypeShift)
}

// Kind returns the EP_KIND bit (double-buffered bulk, or STATUS_OUT for
// control endpoints).
func (e Endpoint) Kind() bool { return e.reg.Get()&EP_KIND != 0 }

// Address returns the endpoint address field.
func (e Endpoint) Address() uint8 { return uint8(e.reg.Get() & EP_EA) }

// StatRx returns the receive handshake state.
func (e Endpoint) StatRx() Stat {
	return Stat((e.reg.Get() & EP_STAT_RX) >> epStatRxShift)
}

// StatTx returns the transmit handshake state.
func (e Endpoint) StatTx() Stat {
	return Stat((e.reg.Get() & EP_STAT_TX) >> epStatTxShift)
}

// keep is the write word that changes nothing: read/write fields as read,
// clear-only bits held at 1, toggle bits at 0.
func keep(v uint16) uint16 {
	return v&EP_RW | EP_CLEAR_ONLY
}

// modifyRW replaces the read/write fields selected by mask.
func (e Endpoint) modifyRW(mask, value uint16) {
	v := e.reg.Get()
	e.reg.Set(keep(v)&^mask | value&mask)
}

// SetType sets the transfer type.
func (e Endpoint) SetType(t EndpointType) {
	e.modifyRW(EP_TYPE, uint16(t)<<epTypeShift)
}

// SetKind sets or clears EP_KIND.
func (e Endpoint) SetKind(kind bool) {
	var v uint16
	if kind {
		v = EP_KIND
	}
	e.modifyRW(EP_KIND, v)
}

// SetAddress sets the endpoint address field.
func (e Endpoint) SetAddress(addr uint8) {
	e.modifyRW(EP_EA, uint16(addr))
}

// SetStatRx moves the receive handshake state to s by toggling exactly the
// bits that differ.
func (e Endpoint) SetStatRx(s Stat) {
	v := e.reg.Get()
	e.reg.Set(keep(v) | (v^uint16(s)<<epStatRxShift)&EP_STAT_RX)
}

// SetStatTx moves the transmit handshake state to s by toggling exactly the
// bits that differ.
func (e Endpoint) SetStatTx(s Stat) {
	v := e.reg.Get()
	e.reg.Set(keep(v) | (v^uint16(s)<<epStatTxShift)&EP_STAT_TX)
}

// ClearCorrectRx acknowledges a completed reception.
func (e Endpoint) ClearCorrectRx() {
	e.reg.Set(keep(e.reg.Get()) &^ EP_CTR_RX)
}

// ClearCorrectTx acknowledges a completed transmission.
func (e Endpoint) ClearCorrectTx() {
	e.reg.Set(keep(e.reg.Get()) &^ EP_CTR_TX)
}

// Reset returns the register to its power-on value of zero: clear-only bits
// are written 0, set toggle bits are toggled back, read/write fields are
// zeroed.
func (e Endpoint) Reset() {
	e.reg.Set(e.reg.Get() & EP_TOGGLE)
}

// String describes the register contents.
func (e Endpoint) String() string {
	v := e.reg.Get()
	return fmt.Sprintf("EP%d[0x%04X type=%s rx=%s tx=%s ctr_rx=%t ctr_tx=%t setup=%t]",
		e.index, v,
		EndpointType((v&EP_TYPE)>>epTypeShift),
		Stat((v&EP_STAT_RX)>>epStatRxShift),
		Stat((v&EP_STAT_TX)>>epStatTxShift),
		v&EP_CTR_RX != 0, v&EP_CTR_TX != 0, v&EP_SETUP != 0)
}
