package device

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/softudc/pkg"
)

// Version is a USB binary-coded-decimal version number: major in bits 15-8,
// minor in bits 7-4 and revision in bits 3-0. USB 2.0 is 0x0200, 1.1 is
// 0x0110.
type Version uint16

// Version field positions.
const (
	versionMajorShift = 8
	versionMinorShift = 4
)

// NewVersion packs a version number. minor and revision are silently
// truncated to their 4-bit fields.
func NewVersion(major, minor, revision uint8) Version {
	return Version(uint16(major)<<versionMajorShift |
		uint16(minor&0x0F)<<versionMinorShift |
		uint16(revision&0x0F))
}

// Major returns the major version.
func (v Version) Major() uint8 {
	return uint8(v >> versionMajorShift)
}

// Minor returns the minor version.
func (v Version) Minor() uint8 {
	return uint8(v>>versionMinorShift) & 0x0F
}

// Revision returns the sub-minor version.
func (v Version) Revision() uint8 {
	return uint8(v) & 0x0F
}

// String returns the version as "major.minor.revision".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Revision())
}

// Power is a maximum bus current rating in 2 mA units, as carried by
// bMaxPower in a configuration descriptor.
type Power uint8

// NewPower converts milliamps to 2 mA units. There is no range check: values
// above 510 mA wrap.
func NewPower(milliAmps uint16) Power {
	return Power(milliAmps >> 1)
}

// MilliAmps returns the rating in milliamps.
func (p Power) MilliAmps() uint16 {
	return uint16(p) << 1
}

// DeviceDescriptor represents a USB device descriptor (18 bytes).
type DeviceDescriptor struct {
	USBVersion        Version     // bcdUSB
	DeviceClass       Class       // bDeviceClass
	DeviceSubClass    uint8       // bDeviceSubClass
	DeviceProtocol    uint8       // bDeviceProtocol
	MaxPacketSize0    uint8       // bMaxPacketSize0
	VendorID          uint16      // idVendor
	ProductID         uint16      // idProduct
	DeviceVersion     Version     // bcdDevice
	Manufacturer      StringIndex // iManufacturer
	Product           StringIndex // iProduct
	SerialNumber      StringIndex // iSerialNumber
	NumConfigurations uint8       // bNumConfigurations
}

// DeviceDescriptorSize is the size of a device descriptor in bytes.
const DeviceDescriptorSize = 18

// MarshalTo serializes the device descriptor to buf.
// Returns the number of bytes written (always 18 if buf is large enough).
func (d *DeviceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < DeviceDescriptorSize {
		return 0
	}
	buf[0] = DeviceDescriptorSize
	buf[1] = DescriptorTypeDevice
	binary.LittleEndian.PutUint16(buf[2:4], uint16(d.USBVersion))
	buf[4] = uint8(d.DeviceClass)
	buf[5] = d.DeviceSubClass
	buf[6] = d.DeviceProtocol
	buf[7] = d.MaxPacketSize0
	binary.LittleEndian.PutUint16(buf[8:10], d.VendorID)
	binary.LittleEndian.PutUint16(buf[10:12], d.ProductID)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(d.DeviceVersion))
	buf[14] = uint8(d.Manufacturer)
	buf[15] = uint8(d.Product)
	buf[16] = uint8(d.SerialNumber)
	buf[17] = d.NumConfigurations
	return DeviceDescriptorSize
}

// ParseDeviceDescriptor parses a device descriptor from bytes into out.
// Returns an error if the data is too short or the descriptor type is wrong.
func ParseDeviceDescriptor(data []byte, out *DeviceDescriptor) error {
	if len(data) < DeviceDescriptorSize {
		return pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeDevice {
		return pkg.ErrDescriptorTypeMismatch
	}
	out.USBVersion = Version(binary.LittleEndian.Uint16(data[2:4]))
	out.DeviceClass = Class(data[4])
	out.DeviceSubClass = data[5]
	out.DeviceProtocol = data[6]
	out.MaxPacketSize0 = data[7]
	out.VendorID = binary.LittleEndian.Uint16(data[8:10])
	out.ProductID = binary.LittleEndian.Uint16(data[10:12])
	out.DeviceVersion = Version(binary.LittleEndian.Uint16(data[12:14]))
	out.Manufacturer = StringIndex(data[14])
	out.Product = StringIndex(data[15])
	out.SerialNumber = StringIndex(data[16])
	out.NumConfigurations = data[17]
	return nil
}

// QualifierDescriptor represents a USB device qualifier descriptor
// (10 bytes). A full-speed-only device stalls requests for it; it is kept
// for hosts probing high-speed capability.
type QualifierDescriptor struct {
	USBVersion        Version
	DeviceClass       Class
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	NumConfigurations uint8
}

// QualifierDescriptorSize is the size of a device qualifier descriptor in bytes.
const QualifierDescriptorSize = 10

// MarshalTo serializes the qualifier descriptor to buf. The trailing
// reserved byte is always written as zero.
func (q *QualifierDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < QualifierDescriptorSize {
		return 0
	}
	buf[0] = QualifierDescriptorSize
	buf[1] = DescriptorTypeDeviceQualifier
	binary.LittleEndian.PutUint16(buf[2:4], uint16(q.USBVersion))
	buf[4] = uint8(q.DeviceClass)
	buf[5] = q.DeviceSubClass
	buf[6] = q.DeviceProtocol
	buf[7] = q.MaxPacketSize0
	buf[8] = q.NumConfigurations
	buf[9] = 0
	return QualifierDescriptorSize
}

// ParseQualifierDescriptor parses a device qualifier descriptor into out.
func ParseQualifierDescriptor(data []byte, out *QualifierDescriptor) error {
	if len(data) < QualifierDescriptorSize {
		return pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeDeviceQualifier {
		return pkg.ErrDescriptorTypeMismatch
	}
	out.USBVersion = Version(binary.LittleEndian.Uint16(data[2:4]))
	out.DeviceClass = Class(data[4])
	out.DeviceSubClass = data[5]
	out.DeviceProtocol = data[6]
	out.MaxPacketSize0 = data[7]
	out.NumConfigurations = data[8]
	return nil
}

// Qualifier returns the qualifier descriptor describing d.
func (d *DeviceDescriptor) Qualifier() QualifierDescriptor {
	return QualifierDescriptor{
		USBVersion:        d.USBVersion,
		DeviceClass:       d.DeviceClass,
		DeviceSubClass:    d.DeviceSubClass,
		DeviceProtocol:    d.DeviceProtocol,
		MaxPacketSize0:    d.MaxPacketSize0,
		NumConfigurations: d.NumConfigurations,
	}
}

// Configuration attribute bits.
const (
	ConfigAttrBusPowered   = 0x80 // Reserved, must be set
	ConfigAttrSelfPowered  = 0x40
	ConfigAttrRemoteWakeup = 0x20
)

// ConfigurationDescriptor represents a USB configuration descriptor (9 bytes).
type ConfigurationDescriptor struct {
	TotalLength        uint16      // wTotalLength, including subordinate descriptors
	NumInterfaces      uint8       // bNumInterfaces
	ConfigurationValue uint8       // bConfigurationValue
	Description        StringIndex // iConfiguration
	Attributes         uint8       // bmAttributes
	MaxPower           Power       // bMaxPower
}

// ConfigurationDescriptorSize is the size of a configuration descriptor in bytes.
const ConfigurationDescriptorSize = 9

// MarshalTo serializes the configuration descriptor to buf.
// Returns the number of bytes written (always 9 if buf is large enough).
func (c *ConfigurationDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < ConfigurationDescriptorSize {
		return 0
	}
	buf[0] = ConfigurationDescriptorSize
	buf[1] = DescriptorTypeConfiguration
	binary.LittleEndian.PutUint16(buf[2:4], c.TotalLength)
	buf[4] = c.NumInterfaces
	buf[5] = c.ConfigurationValue
	buf[6] = uint8(c.Description)
	buf[7] = c.Attributes
	buf[8] = uint8(c.MaxPower)
	return ConfigurationDescriptorSize
}

// ParseConfigurationDescriptor parses a configuration descriptor from bytes into out.
// Returns an error if the data is too short or the descriptor type is wrong.
func ParseConfigurationDescriptor(data []byte, out *ConfigurationDescriptor) error {
	if len(data) < ConfigurationDescriptorSize {
		return pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeConfiguration {
		return pkg.ErrDescriptorTypeMismatch
	}
	out.TotalLength = binary.LittleEndian.Uint16(data[2:4])
	out.NumInterfaces = data[4]
	out.ConfigurationValue = data[5]
	out.Description = StringIndex(data[6])
	out.Attributes = data[7]
	out.MaxPower = Power(data[8])
	return nil
}
