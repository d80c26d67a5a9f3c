package replay

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/softudc/device/udc"
	"github.com/ardnew/softudc/pkg"
)

//go:embed scenarios/*.yaml
var builtin embed.FS

// DefaultMaxActivations bounds the activations a step may trigger when the
// step does not say.
const DefaultMaxActivations = 4

// Scenario is a scripted sequence of bus events replayed against a Core
// driving a simulated peripheral.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// CheckTxCompletion sets udc.Config.CheckTxCompletion.
	CheckTxCompletion bool `yaml:"check_tx_completion"`

	// ConfigureControl, if nonzero, is the EP0 max packet size the
	// application programs after every bus reset.
	ConfigureControl uint16 `yaml:"configure_control"`

	Steps []Step `yaml:"steps"`
}

// Step is one bus stimulus and the behavior expected in response.
type Step struct {
	Name string `yaml:"name"`

	// Flags raises ISTR event flags by name (RESET, CTR, SOF, ...).
	Flags []string `yaml:"flags"`

	// Transfer completes a transaction on an endpoint.
	Transfer *Transfer `yaml:"transfer"`

	// RawISTR overwrites ISTR, read-only fields included, and forces one
	// activation whether or not an enabled flag is pending.
	RawISTR *uint16 `yaml:"raw_istr"`

	MaxActivations int    `yaml:"max_activations"`
	Expect         Expect `yaml:"expect"`

	flags       uint16
	events      []udc.Event
	checkEvents bool
}

// Transfer describes a completed transaction.
type Transfer struct {
	Endpoint uint8 `yaml:"endpoint"`
	Rx       bool  `yaml:"rx"`    // OUT data received
	Tx       bool  `yaml:"tx"`    // IN data sent
	Setup    bool  `yaml:"setup"` // SETUP received; implies rx
}

// Expect lists what a step must produce. Unset fields are not checked.
type Expect struct {
	// Events is the exact sequence of events reported by the activations
	// the step triggered.
	Events []string `yaml:"events"`

	HandlerCalls *int `yaml:"handler_calls"`
	Traps        *int `yaml:"traps"`

	// ISTRAfter is compared with the event flag bits (15:8) of ISTR once
	// the step has settled.
	ISTRAfter *uint16 `yaml:"istr_after"`
}

// Load decodes one scenario from r and validates it.
func Load(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrScenarioInvalid, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile loads the scenario stored at name.
func LoadFile(name string) (*Scenario, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	s, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return s, nil
}

// Builtin returns the scenarios compiled into the package, sorted by file
// name.
func Builtin() ([]*Scenario, error) {
	names, err := fs.Glob(builtin, "scenarios/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		data, err := builtin.ReadFile(name)
		if err != nil {
			return nil, err
		}
		s, err := Load(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(name), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", pkg.ErrScenarioInvalid, fmt.Sprintf(format, args...))
}

// Validate checks s and resolves flag and event names.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return invalid("missing name")
	}
	if len(s.Steps) == 0 {
		return invalid("%s: no steps", s.Name)
	}
	if size := s.ConfigureControl; size != 0 {
		if _, err := udc.EncodeRxSize(size); err != nil {
			return invalid("%s: configure_control: %v", s.Name, err)
		}
		if 2*int(size) > udc.PMASize-udc.BDTSize {
			return invalid("%s: configure_control %d does not fit packet memory", s.Name, size)
		}
	}

	for i := range s.Steps {
		st := &s.Steps[i]
		if st.Name == "" {
			st.Name = fmt.Sprintf("step %d", i+1)
		}
		if err := st.resolve(); err != nil {
			return invalid("%s: %s: %v", s.Name, st.Name, err)
		}
	}
	return nil
}

func (st *Step) resolve() error {
	stimuli := 0
	if len(st.Flags) > 0 {
		stimuli++
	}
	if st.Transfer != nil {
		stimuli++
	}
	if st.RawISTR != nil {
		stimuli++
	}
	if stimuli != 1 {
		return fmt.Errorf("need exactly one of flags, transfer, raw_istr")
	}

	st.flags = 0
	for _, name := range st.Flags {
		flag, ok := udc.ParseFlag(name)
		if !ok {
			return fmt.Errorf("unknown flag %q", name)
		}
		st.flags |= flag
	}

	if tr := st.Transfer; tr != nil {
		if tr.Endpoint >= udc.NumEndpoints {
			return fmt.Errorf("endpoint %d out of range", tr.Endpoint)
		}
		if !tr.Rx && !tr.Tx && !tr.Setup {
			return fmt.Errorf("transfer needs rx, tx or setup")
		}
	}

	if st.MaxActivations < 0 {
		return fmt.Errorf("negative max_activations")
	}
	if st.MaxActivations == 0 {
		st.MaxActivations = DefaultMaxActivations
	}

	st.checkEvents = st.Expect.Events != nil
	st.events = st.events[:0]
	for _, name := range st.Expect.Events {
		ev, ok := udc.ParseEvent(name)
		if !ok || ev == udc.EventNone {
			return fmt.Errorf("unknown event %q", name)
		}
		st.events = append(st.events, ev)
	}
	if len(st.events) > st.MaxActivations {
		return fmt.Errorf("expects %d events but allows %d activations", len(st.events), st.MaxActivations)
	}
	return nil
}
