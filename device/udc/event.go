package udc

import "fmt"

// Event identifies the interrupt class one activation handled.
type Event uint8

// Events, in dispatch priority order.
const (
	EventNone    Event = iota
	EventReset         // bus reset; endpoints and buffer table cleared
	EventSetup         // SETUP received; handler consulted
	EventOut           // OUT data received
	EventIn            // IN data sent
	EventDesync        // correct transfer with no endpoint flag; trapped
	EventSOF           // start of frame
	EventWakeup        // resume signaling
	EventSuspend       // suspend request
	EventError         // bus error
	EventUnknown       // no recognized flag; trapped
)

var eventNames = [...]string{
	EventNone:    "none",
	EventReset:   "reset",
	EventSetup:   "setup",
	EventOut:     "out",
	EventIn:      "in",
	EventDesync:  "desync",
	EventSOF:     "sof",
	EventWakeup:  "wakeup",
	EventSuspend: "suspend",
	EventError:   "error",
	EventUnknown: "unknown",
}

// String returns the event name.
func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", uint8(e))
}

// ParseEvent returns the event with the given name.
func ParseEvent(name string) (Event, bool) {
	for e, n := range eventNames {
		if n == name {
			return Event(e), true
		}
	}
	return EventNone, false
}

// Trapped reports whether handling e invoked the trap.
func (e Event) Trapped() bool {
	return e == EventDesync || e == EventUnknown
}
