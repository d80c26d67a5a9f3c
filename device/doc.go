// Package device holds the USB wire-format data model used by the device
// controller core: BCD versions, power ratings, the device, device qualifier
// and configuration descriptors, and the SETUP request packet.
//
// Every type here is plain data. Construction and extraction never allocate
// and never fail, so descriptors can live in package-level variables and be
// handed to the host straight from read-only memory:
//
//	var descriptor = device.DeviceDescriptor{
//	    USBVersion:     device.NewVersion(1, 1, 0),
//	    DeviceClass:    device.ClassHID,
//	    MaxPacketSize0: 64,
//	    VendorID:       0x1209,
//	    ProductID:      0x0001,
//	    DeviceVersion:  device.NewVersion(0, 0, 1),
//	}
//
// # Serialization
//
// Descriptors serialize with MarshalTo(buf) into caller-provided buffers and
// parse with Parse* functions taking an output parameter, matching the USB 2.0
// layouts byte for byte (little-endian multi-byte fields, no padding).
package device
