package device

import "fmt"

// USB Descriptor Types (USB 2.0 Spec Table 9-5).
const (
	DescriptorTypeDevice           = 0x01
	DescriptorTypeConfiguration    = 0x02
	DescriptorTypeString           = 0x03
	DescriptorTypeInterface        = 0x04
	DescriptorTypeEndpoint         = 0x05
	DescriptorTypeDeviceQualifier  = 0x06
	DescriptorTypeOtherSpeedConfig = 0x07
	DescriptorTypeInterfacePower   = 0x08
)

// Class is a USB class code as assigned by usb.org.
// See http://www.usb.org/developers/defined_class.
type Class uint8

// USB Class Codes.
const (
	ClassPerInterface Class = 0x00 // Use class information in the interface descriptors
	ClassAudio        Class = 0x01
	ClassCDC          Class = 0x02 // Communications and CDC control
	ClassHID          Class = 0x03
	ClassPhysical     Class = 0x05
	ClassImage        Class = 0x06 // Still imaging
	ClassPrinter      Class = 0x07
	ClassMassStorage  Class = 0x08
	ClassHub          Class = 0x09
	ClassCDCData      Class = 0x0A
	ClassSmartCard    Class = 0x0B
	ClassContentSec   Class = 0x0D
	ClassVideo        Class = 0x0E
	ClassHealthcare   Class = 0x0F
	ClassAudioVideo   Class = 0x10
	ClassBillboard    Class = 0x11
	ClassDiagnostic   Class = 0xDC
	ClassWireless     Class = 0xE0
	ClassMisc         Class = 0xEF
	ClassAppSpecific  Class = 0xFE
	ClassVendor       Class = 0xFF
)

var classNames = map[Class]string{
	ClassPerInterface: "Per-Interface",
	ClassAudio:        "Audio",
	ClassCDC:          "CDC",
	ClassHID:          "HID",
	ClassPhysical:     "Physical",
	ClassImage:        "Image",
	ClassPrinter:      "Printer",
	ClassMassStorage:  "Mass Storage",
	ClassHub:          "Hub",
	ClassCDCData:      "CDC-Data",
	ClassSmartCard:    "Smart Card",
	ClassContentSec:   "Content Security",
	ClassVideo:        "Video",
	ClassHealthcare:   "Personal Healthcare",
	ClassAudioVideo:   "Audio/Video",
	ClassBillboard:    "Billboard",
	ClassDiagnostic:   "Diagnostic",
	ClassWireless:     "Wireless Controller",
	ClassMisc:         "Miscellaneous",
	ClassAppSpecific:  "Application Specific",
	ClassVendor:       "Vendor Specific",
}

// String returns the class name.
func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown Class (0x%02X)", uint8(c))
}

// StringIndex references an entry in the device's string table.
type StringIndex uint8

// String indexes with special meaning. Other indexes carry no meaning in the
// USB specification, though some hosts treat particular values specially.
const (
	// StringIndexNone means the descriptor has no associated string.
	StringIndexNone StringIndex = 0x00

	// StringIndexMicrosoftOS is queried by Windows for the Microsoft OS
	// string descriptor.
	StringIndexMicrosoftOS StringIndex = 0xEE
)
