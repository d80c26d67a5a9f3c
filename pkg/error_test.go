package pkg

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	// Verify all sentinel errors are distinct
	errs := []error{
		ErrPMAOffset,
		ErrPMAExhausted,
		ErrRxSizeOdd,
		ErrRxSizeAlignment,
		ErrRxSizeTooLarge,
		ErrEndpointIndex,
		ErrCeilingNotHeld,
		ErrAlreadyTaken,
		ErrUnknownInterrupt,
		ErrTransferDesync,
		ErrDescriptorTooShort,
		ErrDescriptorTypeMismatch,
		ErrSetupPacketTooShort,
		ErrScenarioInvalid,
		ErrExpectationFailed,
	}

	for i, err1 := range errs {
		if err1 == nil {
			t.Errorf("error %d is nil", i)
			continue
		}
		for j, err2 := range errs {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("error %d and %d are equal", i, j)
			}
		}
	}
}

func TestWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("%w: need %d, have %d", ErrPMAExhausted, 128, 64)
	if !errors.Is(err, ErrPMAExhausted) {
		t.Errorf("errors.Is(%v, ErrPMAExhausted) = false", err)
	}
	if errors.Is(err, ErrPMAOffset) {
		t.Errorf("errors.Is(%v, ErrPMAOffset) = true", err)
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err     error
		wantMsg string
	}{
		{ErrPMAExhausted, "packet memory exhausted"},
		{ErrRxSizeTooLarge, "receive size exceeds 512"},
		{ErrUnknownInterrupt, "interrupt with no recognized status flag"},
		{ErrTransferDesync, "correct transfer without endpoint flag"},
		{ErrCeilingNotHeld, "priority ceiling not held"},
	}

	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("error.Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}
