package udc

import (
	"fmt"

	"github.com/ardnew/softudc/pkg"
)

// PacketMemory is the dedicated packet buffer RAM shared with the USB
// engine. Offsets are packet-buffer addresses as the peripheral sees them;
// only even offsets carry data. Implementations perform volatile accesses.
type PacketMemory interface {
	LoadHalfword(offset uint16) uint16
	StoreHalfword(offset uint16, value uint16)
}

// Packet memory layout.
const (
	// PMASize is the number of addressable halfword slots.
	PMASize = 512

	// BDTSize is the extent of the buffer descriptor table at offset 0.
	BDTSize = NumEndpoints * bdtEntrySize

	bdtEntrySize  = 8
	bdtAddrTx     = 0
	bdtCountTx    = 2
	bdtAddrRx     = 4
	bdtCountRx    = 6
	rxCountMask   = 0x03FF
	rxBlockSize32 = 0x8000
	rxNumBlocks   = 10 // shift of NUM_BLOCK in COUNTn_RX

	// rxSmallLimit is the largest receive size encoded in 2-byte blocks.
	rxSmallLimit = 62
	rxLargeLimit = 512
)

// PMA manages the packet memory: bounds-checked access, the buffer
// descriptor table, and a downward bump allocator for endpoint buffers.
//
// Buffers are carved once during setup and never freed; a bus reset zeroes
// the table, after which the application allocates again.
type PMA struct {
	mem PacketMemory
}

// NewPMA wraps mem.
func NewPMA(mem PacketMemory) *PMA {
	return &PMA{mem: mem}
}

func checkOffset(offset uint16) {
	if offset >= PMASize {
		panic(fmt.Errorf("%w: 0x%03X", pkg.ErrPMAOffset, offset))
	}
}

// Halfword reads the slot at offset.
func (p *PMA) Halfword(offset uint16) uint16 {
	checkOffset(offset)
	return p.mem.LoadHalfword(offset)
}

// SetHalfword writes the slot at offset.
func (p *PMA) SetHalfword(offset, value uint16) {
	checkOffset(offset)
	p.mem.StoreHalfword(offset, value)
}

func bdt(ep uint8, field uint16) uint16 {
	checkEndpoint(ep)
	return uint16(ep)*bdtEntrySize + field
}

// TxAddress returns the transmit buffer address of ep (0 = unallocated).
func (p *PMA) TxAddress(ep uint8) uint16 { return p.Halfword(bdt(ep, bdtAddrTx)) }

// SetTxAddress sets the transmit buffer address of ep.
func (p *PMA) SetTxAddress(ep uint8, addr uint16) { p.SetHalfword(bdt(ep, bdtAddrTx), addr) }

// TxCount returns the number of bytes queued for transmission on ep.
func (p *PMA) TxCount(ep uint8) uint16 { return p.Halfword(bdt(ep, bdtCountTx)) }

// SetTxCount sets the number of bytes to transmit on ep.
func (p *PMA) SetTxCount(ep uint8, n uint16) { p.SetHalfword(bdt(ep, bdtCountTx), n) }

// RxAddress returns the receive buffer address of ep (0 = unallocated).
func (p *PMA) RxAddress(ep uint8) uint16 { return p.Halfword(bdt(ep, bdtAddrRx)) }

// SetRxAddress sets the receive buffer address of ep.
func (p *PMA) SetRxAddress(ep uint8, addr uint16) { p.SetHalfword(bdt(ep, bdtAddrRx), addr) }

// RxCount returns the number of bytes received on ep. The block-size
// fields sharing the word are masked off.
func (p *PMA) RxCount(ep uint8) uint16 {
	return p.Halfword(bdt(ep, bdtCountRx)) & rxCountMask
}

// EncodeRxSize returns the COUNTn_RX block encoding of a receive buffer of
// size bytes. Sizes up to 62 are counted in 2-byte blocks and must be even;
// larger sizes are counted in 32-byte blocks, must be a multiple of 32 and
// at most 512.
func EncodeRxSize(size uint16) (uint16, error) {
	if size > rxSmallLimit {
		if size > rxLargeLimit {
			return 0, fmt.Errorf("%w: %d", pkg.ErrRxSizeTooLarge, size)
		}
		if size%32 != 0 {
			return 0, fmt.Errorf("%w: %d", pkg.ErrRxSizeAlignment, size)
		}
		return (size/32-1)<<rxNumBlocks | rxBlockSize32, nil
	}
	if size%2 != 0 {
		return 0, fmt.Errorf("%w: %d", pkg.ErrRxSizeOdd, size)
	}
	return (size / 2) << rxNumBlocks, nil
}

// SetRxSize programs the receive buffer size of ep. The count bits are
// cleared as a side effect. An unencodable size is a configuration error
// and panics.
func (p *PMA) SetRxSize(ep uint8, size uint16) {
	enc, err := EncodeRxSize(size)
	if err != nil {
		panic(err)
	}
	p.SetHalfword(bdt(ep, bdtCountRx), enc)
}

// NextBuffer returns the address of a size-unit buffer directly below the
// lowest buffer already recorded in the table, or below the top of memory
// if none is. The result is not recorded; the caller claims it by storing
// it as an endpoint address.
func (p *PMA) NextBuffer(size uint16) (uint16, error) {
	low := uint16(PMASize)
	for ep := range uint8(NumEndpoints) {
		for _, addr := range [...]uint16{p.TxAddress(ep), p.RxAddress(ep)} {
			if addr != 0 && addr < low {
				low = addr
			}
		}
	}
	if size > low || low-size < BDTSize {
		return 0, fmt.Errorf("%w: %d units requested, %d free",
			pkg.ErrPMAExhausted, size, max(int(low)-BDTSize, 0))
	}
	return low - size, nil
}

// AllocateNext is NextBuffer for setup code: exhaustion panics.
func (p *PMA) AllocateNext(size uint16) uint16 {
	addr, err := p.NextBuffer(size)
	if err != nil {
		panic(err)
	}
	pkg.LogDebug(pkg.ComponentPMA, "buffer allocated", "addr", addr, "size", size)
	return addr
}

// AllocateTx allocates a transmit buffer for ep and records it.
func (p *PMA) AllocateTx(ep uint8, size uint16) uint16 {
	addr := p.AllocateNext(size)
	p.SetTxAddress(ep, addr)
	p.SetTxCount(ep, 0)
	return addr
}

// AllocateRx allocates a receive buffer for ep, records it and programs its
// size. The size is validated before anything is written.
func (p *PMA) AllocateRx(ep uint8, size uint16) uint16 {
	if _, err := EncodeRxSize(size); err != nil {
		panic(err)
	}
	addr := p.AllocateNext(size)
	p.SetRxAddress(ep, addr)
	p.SetRxSize(ep, size)
	return addr
}

// Reset zeroes every address field in the table, returning all memory
// above it to the allocator.
func (p *PMA) Reset() {
	for ep := range uint8(NumEndpoints) {
		p.SetTxAddress(ep, 0)
		p.SetRxAddress(ep, 0)
	}
}

func checkRange(base uint16, halfwords int) {
	if halfwords == 0 {
		return
	}
	last := int(base) + 2*(halfwords-1)
	if last >= PMASize {
		panic(fmt.Errorf("%w: 0x%03X+%d halfwords", pkg.ErrPMAOffset, base, halfwords))
	}
}

// WriteBuffer copies data to the halfword slots base, base+2, base+4, ...
// The whole range is checked before the first write.
func (p *PMA) WriteBuffer(base uint16, data []uint16) {
	checkRange(base, len(data))
	for i, v := range data {
		p.mem.StoreHalfword(base+uint16(2*i), v)
	}
}

// WriteBytes packs b little-endian into halfwords starting at base. An odd
// trailing byte is written with a zero high byte.
func (p *PMA) WriteBytes(base uint16, b []byte) {
	n := (len(b) + 1) / 2
	checkRange(base, n)
	for i := range n {
		v := uint16(b[2*i])
		if 2*i+1 < len(b) {
			v |= uint16(b[2*i+1]) << 8
		}
		p.mem.StoreHalfword(base+uint16(2*i), v)
	}
}

// ReadBytes fills dst from the halfwords starting at base and returns
// len(dst).
func (p *PMA) ReadBytes(base uint16, dst []byte) int {
	n := (len(dst) + 1) / 2
	checkRange(base, n)
	for i := range n {
		v := p.mem.LoadHalfword(base + uint16(2*i))
		dst[2*i] = byte(v)
		if 2*i+1 < len(dst) {
			dst[2*i+1] = byte(v >> 8)
		}
	}
	return len(dst)
}
