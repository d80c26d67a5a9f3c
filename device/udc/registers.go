package udc

import (
	"fmt"

	"github.com/ardnew/softudc/pkg"
)

// NumEndpoints is the number of endpoint register/buffer-descriptor pairs.
const NumEndpoints = 8

// Register is one 16-bit peripheral register. Every Get and Set is a real
// bus access with side effects: implementations must not cache, merge or
// reorder them. TinyGo's *volatile.Register16 satisfies it directly.
type Register interface {
	Get() uint16
	Set(value uint16)
}

// Registers is the USB peripheral register block. A Registers value is the
// sole accessor of the hardware it describes; hand it to exactly one Core.
type Registers struct {
	EP     [NumEndpoints]Register // EPnR endpoint control/status
	CNTR   Register               // control
	ISTR   Register               // interrupt status
	FNR    Register               // frame number (read-only)
	DADDR  Register               // device address
	BTABLE Register               // buffer descriptor table base
}

// Endpoint returns the control/status register view for endpoint index.
// Indexes 8 and above are a caller bug and panic with pkg.ErrEndpointIndex.
func (r *Registers) Endpoint(index uint8) Endpoint {
	checkEndpoint(index)
	return Endpoint{reg: r.EP[index], index: index}
}

func checkEndpoint(index uint8) {
	if index >= NumEndpoints {
		panic(fmt.Errorf("%w: %d", pkg.ErrEndpointIndex, index))
	}
}

// ISTR bits. The event flags are rc_w0: writing 0 clears, writing 1 leaves
// the bit alone. DIR and EP_ID are read-only and only meaningful while CTR
// is set.
const (
	ISTR_CTR    uint16 = 1 << 15 // correct transfer
	ISTR_PMAOVR uint16 = 1 << 14 // packet memory over/underrun
	ISTR_ERR    uint16 = 1 << 13 // bus error
	ISTR_WKUP   uint16 = 1 << 12 // wakeup
	ISTR_SUSP   uint16 = 1 << 11 // suspend request
	ISTR_RESET  uint16 = 1 << 10 // bus reset
	ISTR_SOF    uint16 = 1 << 9  // start of frame
	ISTR_ESOF   uint16 = 1 << 8  // expected start of frame
	ISTR_DIR    uint16 = 1 << 4  // 1 = OUT/SETUP, 0 = IN
	ISTR_EP_ID  uint16 = 0x000F  // endpoint of the correct transfer

	// ISTR_FLAGS covers every clearable event flag.
	ISTR_FLAGS = ISTR_CTR | ISTR_PMAOVR | ISTR_ERR | ISTR_WKUP |
		ISTR_SUSP | ISTR_RESET | ISTR_SOF | ISTR_ESOF
)

// CNTR bits. The interrupt mask bits sit in the same positions as the ISTR
// flags they enable.
const (
	CNTR_CTRM    uint16 = 1 << 15
	CNTR_PMAOVRM uint16 = 1 << 14
	CNTR_ERRM    uint16 = 1 << 13
	CNTR_WKUPM   uint16 = 1 << 12
	CNTR_SUSPM   uint16 = 1 << 11
	CNTR_RESETM  uint16 = 1 << 10
	CNTR_SOFM    uint16 = 1 << 9
	CNTR_ESOFM   uint16 = 1 << 8
	CNTR_RESUME  uint16 = 1 << 4
	CNTR_FSUSP   uint16 = 1 << 3
	CNTR_LPMODE  uint16 = 1 << 2
	CNTR_PDWN    uint16 = 1 << 1
	CNTR_FRES    uint16 = 1 << 0 // force USB reset

	// CNTR_RESET_VALUE is the power-on content of CNTR.
	CNTR_RESET_VALUE = CNTR_PDWN | CNTR_FRES
)

// DADDR bits.
const (
	DADDR_EF  uint16 = 1 << 7 // function enable
	DADDR_ADD uint16 = 0x007F
)

// Flag names, in ISTR bit order from high to low.
var flagNames = [...]struct {
	flag uint16
	name string
}{
	{ISTR_CTR, "CTR"},
	{ISTR_PMAOVR, "PMAOVR"},
	{ISTR_ERR, "ERR"},
	{ISTR_WKUP, "WKUP"},
	{ISTR_SUSP, "SUSP"},
	{ISTR_RESET, "RESET"},
	{ISTR_SOF, "SOF"},
	{ISTR_ESOF, "ESOF"},
}

// ParseFlag returns the ISTR bit with the given name ("RESET", "SOF", ...).
func ParseFlag(name string) (uint16, bool) {
	for _, f := range flagNames {
		if f.name == name {
			return f.flag, true
		}
	}
	return 0, false
}

// FlagNames returns the names of the event flags set in istr, highest bit
// first.
func FlagNames(istr uint16) []string {
	var names []string
	for _, f := range flagNames {
		if istr&f.flag != 0 {
			names = append(names, f.name)
		}
	}
	return names
}
