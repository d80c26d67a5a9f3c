package pkg

import "errors"

// Packet memory configuration errors. These are raised once, while buffers
// are laid out at startup.
var (
	// ErrPMAOffset indicates an access outside the packet memory area.
	ErrPMAOffset = errors.New("packet memory offset out of range")

	// ErrPMAExhausted indicates there is no room left above the buffer
	// descriptor table for the requested buffer.
	ErrPMAExhausted = errors.New("packet memory exhausted")

	// ErrRxSizeOdd indicates a small receive buffer size that is not even.
	ErrRxSizeOdd = errors.New("receive size not a multiple of 2")

	// ErrRxSizeAlignment indicates a large receive buffer size that is not a
	// multiple of 32.
	ErrRxSizeAlignment = errors.New("receive size not a multiple of 32")

	// ErrRxSizeTooLarge indicates a receive buffer size above 512 bytes.
	ErrRxSizeTooLarge = errors.New("receive size exceeds 512")
)

// Contract violations.
var (
	// ErrEndpointIndex indicates an endpoint index outside 0-7.
	ErrEndpointIndex = errors.New("endpoint index out of range")

	// ErrCeilingNotHeld indicates shared peripheral state was touched
	// without holding the priority ceiling.
	ErrCeilingNotHeld = errors.New("priority ceiling not held")

	// ErrAlreadyTaken indicates a hardware singleton was claimed twice.
	ErrAlreadyTaken = errors.New("peripheral already taken")
)

// Dispatcher traps.
var (
	// ErrUnknownInterrupt indicates the interrupt fired with no recognized
	// status flag set.
	ErrUnknownInterrupt = errors.New("interrupt with no recognized status flag")

	// ErrTransferDesync indicates a correct-transfer interrupt for an
	// endpoint that has neither direction's correct-transfer flag set.
	ErrTransferDesync = errors.New("correct transfer without endpoint flag")
)

// Wire format errors.
var (
	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")
)

// Replay harness errors.
var (
	// ErrScenarioInvalid indicates a malformed replay scenario.
	ErrScenarioInvalid = errors.New("invalid scenario")

	// ErrExpectationFailed indicates a replay step did not behave as expected.
	ErrExpectationFailed = errors.New("expectation failed")
)
