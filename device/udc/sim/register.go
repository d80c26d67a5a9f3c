package sim

import (
	"github.com/ardnew/softudc/device/udc"
	"github.com/ardnew/softudc/pkg"
)

type regKind uint8

const (
	kindEPR regKind = iota
	kindCNTR
	kindISTR
	kindFNR
	kindDADDR
	kindBTABLE
)

// register is one register of a Peripheral.
type register struct {
	p     *Peripheral
	kind  regKind
	index uint8
}

func (r register) Get() uint16 {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	switch r.kind {
	case kindEPR:
		return p.epr[r.index]
	case kindCNTR:
		return p.cntr
	case kindISTR:
		return p.istr
	case kindFNR:
		return p.fnr
	case kindDADDR:
		return p.daddr
	default:
		return p.btable
	}
}

func (r register) Set(v uint16) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes++
	switch r.kind {
	case kindEPR:
		p.epr[r.index] = WriteEPR(p.epr[r.index], v)
	case kindCNTR:
		if p.cntr&udc.CNTR_FRES != 0 && v&udc.CNTR_FRES == 0 {
			p.istr |= udc.ISTR_RESET
			pkg.LogDebug(pkg.ComponentSim, "reset released")
		}
		p.cntr = v
	case kindISTR:
		p.istr = WriteISTR(p.istr, v)
	case kindFNR:
		// read-only
	case kindDADDR:
		p.daddr = v & (udc.DADDR_EF | udc.DADDR_ADD)
	case kindBTABLE:
		p.btable = v &^ 0x0007
	}
	// A write that leaves an enabled flag pending re-raises the line.
	p.signalLocked()
}

// WriteEPR returns the content of an endpoint register holding old after
// the CPU writes v.
func WriteEPR(old, v uint16) uint16 {
	next := old&v&udc.EP_CLEAR_ONLY |
		(old^v)&udc.EP_TOGGLE |
		v&udc.EP_RW
	if next&udc.EP_CTR_RX != 0 {
		next |= old & udc.EP_SETUP
	}
	return next
}

// WriteISTR returns the content of ISTR holding old after the CPU writes v.
func WriteISTR(old, v uint16) uint16 {
	return old&^udc.ISTR_FLAGS | old&v&udc.ISTR_FLAGS
}

// memory is the packet memory of a Peripheral.
type memory struct {
	p *Peripheral
}

func (m memory) LoadHalfword(offset uint16) uint16 {
	m.p.mu.Lock()
	defer m.p.mu.Unlock()
	return m.p.pma[offset]
}

func (m memory) StoreHalfword(offset, value uint16) {
	m.p.mu.Lock()
	defer m.p.mu.Unlock()
	m.p.pma[offset] = value
}
