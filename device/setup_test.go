package device

import (
	"errors"
	"strings"
	"testing"

	"github.com/ardnew/softudc/pkg"
)

func TestParseSetupPacket(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    SetupPacket
		wantErr error
	}{
		{
			name: "GET_DESCRIPTOR device",
			data: []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00},
			want: SetupPacket{RequestType: 0x80, Request: 0x06, Value: 0x0100, Length: 18},
		},
		{
			name: "SET_ADDRESS",
			data: []byte{0x00, 0x05, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00},
			want: SetupPacket{RequestType: 0x00, Request: 0x05, Value: 5},
		},
		{
			name:    "too short",
			data:    []byte{0x80, 0x06, 0x00},
			wantErr: pkg.ErrSetupPacketTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got SetupPacket
			err := ParseSetupPacket(tt.data, &got)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseSetupPacket() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if got != tt.want {
				t.Errorf("ParseSetupPacket() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSetupPacket_MarshalTo(t *testing.T) {
	var setup SetupPacket
	GetDescriptorSetup(&setup, DescriptorTypeDevice, 0, DeviceDescriptorSize)

	var buf [SetupPacketSize]byte
	if n := setup.MarshalTo(buf[:]); n != SetupPacketSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, SetupPacketSize)
	}
	want := [SetupPacketSize]byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00}
	if buf != want {
		t.Errorf("MarshalTo() = % X, want % X", buf, want)
	}

	if n := setup.MarshalTo(buf[:4]); n != 0 {
		t.Errorf("MarshalTo(short) = %d, want 0", n)
	}
}

func TestSetupPacket_Predicates(t *testing.T) {
	var setup SetupPacket
	GetDescriptorSetup(&setup, DescriptorTypeConfiguration, 2, 9)

	if !setup.IsDeviceToHost() {
		t.Error("IsDeviceToHost() = false")
	}
	if !setup.IsGetDescriptor() {
		t.Error("IsGetDescriptor() = false")
	}
	if got := setup.DescriptorType(); got != DescriptorTypeConfiguration {
		t.Errorf("DescriptorType() = %d, want %d", got, DescriptorTypeConfiguration)
	}
	if got := setup.DescriptorIndex(); got != 2 {
		t.Errorf("DescriptorIndex() = %d, want 2", got)
	}
	if got := setup.Recipient(); got != RequestRecipientDevice {
		t.Errorf("Recipient() = %d, want %d", got, RequestRecipientDevice)
	}

	vendor := SetupPacket{RequestType: RequestTypeVendor, Request: RequestGetDescriptor}
	if vendor.IsGetDescriptor() {
		t.Error("vendor request reported as GET_DESCRIPTOR")
	}
}

func TestSetupPacket_String(t *testing.T) {
	tests := []struct {
		name  string
		setup SetupPacket
		want  []string
	}{
		{
			name:  "standard",
			setup: SetupPacket{RequestType: 0x80, Request: RequestGetDescriptor, Value: 0x0100, Length: 18},
			want:  []string{"IN", "GET_DESCRIPTOR", "Value=0x0100", "Length=18"},
		},
		{
			name:  "vendor",
			setup: SetupPacket{RequestType: RequestTypeVendor, Request: 0x42},
			want:  []string{"OUT", "0x42"},
		},
		{
			name:  "unassigned standard",
			setup: SetupPacket{Request: 0x02},
			want:  []string{"0x02"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.setup.String()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("String() = %q, missing %q", got, w)
				}
			}
		})
	}
}
