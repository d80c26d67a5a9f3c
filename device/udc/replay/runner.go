package replay

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softudc/device"
	"github.com/ardnew/softudc/device/udc"
	"github.com/ardnew/softudc/device/udc/sim"
	"github.com/ardnew/softudc/pkg"
)

// PowerOnStep names the result recorded for the power-on sequence that
// precedes the scripted steps.
const PowerOnStep = "power-on"

// Descriptor is the device descriptor the replay handler supplies.
var Descriptor = device.DeviceDescriptor{
	USBVersion:        device.NewVersion(1, 1, 0),
	DeviceClass:       device.ClassHID,
	MaxPacketSize0:    64,
	VendorID:          0x1209,
	ProductID:         0x0001,
	DeviceVersion:     device.NewVersion(0, 0, 1),
	NumConfigurations: 1,
}

// Activation is what one interrupt activation reported.
type Activation struct {
	Event        udc.Event
	HandlerCalls int
	Traps        []error
}

// StepResult is the outcome of one step.
type StepResult struct {
	Name        string
	Activations []Activation
	ISTR        uint16
	Failures    []string
}

// Events returns the events of every activation in order.
func (r *StepResult) Events() []udc.Event {
	events := make([]udc.Event, len(r.Activations))
	for i, a := range r.Activations {
		events[i] = a.Event
	}
	return events
}

// HandlerCalls returns the number of handler calls over the step.
func (r *StepResult) HandlerCalls() int {
	n := 0
	for _, a := range r.Activations {
		n += a.HandlerCalls
	}
	return n
}

// Traps returns every trap raised during the step.
func (r *StepResult) Traps() []error {
	var traps []error
	for _, a := range r.Activations {
		traps = append(traps, a.Traps...)
	}
	return traps
}

// Passed reports whether the step met its expectations.
func (r *StepResult) Passed() bool { return len(r.Failures) == 0 }

// Result is the outcome of one scenario.
type Result struct {
	Scenario string
	Steps    []StepResult
}

// Passed reports whether every step passed.
func (r *Result) Passed() bool {
	for i := range r.Steps {
		if !r.Steps[i].Passed() {
			return false
		}
	}
	return true
}

// Err returns an error wrapping pkg.ErrExpectationFailed describing the
// first failed step, or nil.
func (r *Result) Err() error {
	for i := range r.Steps {
		if st := &r.Steps[i]; !st.Passed() {
			return fmt.Errorf("%w: %s: %s: %s", pkg.ErrExpectationFailed,
				r.Scenario, st.Name, strings.Join(st.Failures, "; "))
		}
	}
	return nil
}

// Runner replays scenarios.
type Runner struct {
	// ForceTxCompletion enables CTR_TX checking regardless of the
	// scenario setting.
	ForceTxCompletion bool
}

// replay is the state of one scenario run. The interrupt goroutine owns
// current while servicing; the bus goroutine reads it only after the
// activation has been handed over.
type replay struct {
	scenario *Scenario
	p        *sim.Peripheral
	core     *udc.Core
	current  Activation
	on       bool
}

// Run replays s against a fresh simulated peripheral. Two goroutines run
// under an errgroup: the bus side applies each step's stimulus and decides
// when the interrupt line is asserted, and the interrupt side services one
// activation per request with the ceiling held. The returned error reports
// a run that could not complete; failed expectations are in the Result.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	rp := &replay{scenario: s, p: sim.New()}
	rp.core = udc.New(rp.p.Registers(), rp.p.Memory(), udc.Config{
		Trap:              rp.trap,
		OnEvent:           rp.event,
		CheckTxCompletion: s.CheckTxCompletion || r.ForceTxCompletion,
	})

	requests := make(chan struct{})
	activations := make(chan Activation)
	result := &Result{Scenario: s.Name}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case _, ok := <-requests:
				if !ok {
					return nil
				}
				a, err := rp.service()
				if err != nil {
					return err
				}
				select {
				case activations <- a:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	})

	g.Go(func() error {
		defer close(requests)

		activate := func() (Activation, error) {
			select {
			case requests <- struct{}{}:
			case <-ctx.Done():
				return Activation{}, ctx.Err()
			}
			select {
			case a := <-activations:
				return a, nil
			case <-ctx.Done():
				return Activation{}, ctx.Err()
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		powerOn, err := rp.powerOn(activate)
		if err != nil {
			return err
		}
		result.Steps = append(result.Steps, powerOn)

		for i := range s.Steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			st, err := rp.step(&s.Steps[i], activate)
			if err != nil {
				return err
			}
			result.Steps = append(result.Steps, st)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name, err)
	}

	pkg.LogInfo(pkg.ComponentReplay, "scenario replayed",
		"scenario", s.Name, "steps", len(result.Steps), "passed", result.Passed())
	return result, nil
}

func (rp *replay) trap(err error) {
	pkg.LogDebug(pkg.ComponentReplay, "trap", "error", err)
	rp.current.Traps = append(rp.current.Traps, err)
}

// event plays the application: after a bus reset it programs EP0 again.
func (rp *replay) event(ev udc.Event, res udc.Resources) {
	rp.current.Event = ev
	if ev == udc.EventReset && rp.scenario.ConfigureControl != 0 {
		rp.core.ConfigureControl(res.Threshold, rp.scenario.ConfigureControl)
	}
}

func (rp *replay) DeviceDescriptor(res udc.Resources) *device.DeviceDescriptor {
	rp.current.HandlerCalls++
	return &Descriptor
}

// service runs one interrupt activation. A panic escaping the core is
// returned as an error.
func (rp *replay) service() (a Activation, err error) {
	rp.current = Activation{}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("activation panicked: %v", r)
		}
	}()
	rp.core.Ceiling().Claim(func(t *udc.Threshold) {
		rp.core.HandleInterrupt(udc.Resources{Threshold: t, State: &rp.on}, rp)
	})
	return rp.current, nil
}

// asserted reports whether the interrupt line is raised: a pending enabled
// flag. Any queued edge notification is consumed.
func (rp *replay) asserted() bool {
	select {
	case <-rp.p.Line():
	default:
	}
	return rp.p.Pending()
}

func (rp *replay) powerOn(activate func() (Activation, error)) (StepResult, error) {
	rp.core.Ceiling().Claim(func(t *udc.Threshold) {
		rp.core.PowerOn(t, nil)
	})

	res := StepResult{Name: PowerOnStep}
	for len(res.Activations) < DefaultMaxActivations && rp.asserted() {
		a, err := activate()
		if err != nil {
			return res, err
		}
		res.Activations = append(res.Activations, a)
	}
	res.ISTR = rp.p.ISTR()

	if ev := res.Events(); !slices.Equal(ev, []udc.Event{udc.EventReset}) {
		res.Failures = append(res.Failures, fmt.Sprintf("events %v, want [reset]", ev))
	}
	return res, nil
}

func (rp *replay) stimulate(st *Step) {
	switch {
	case st.RawISTR != nil:
		rp.p.SetISTR(*st.RawISTR)

	case st.Transfer != nil:
		tr := st.Transfer
		if tr.Setup {
			var setup device.SetupPacket
			device.GetDescriptorSetup(&setup, device.DescriptorTypeDevice, 0, device.DeviceDescriptorSize)
			var packet [device.SetupPacketSize]byte
			setup.MarshalTo(packet[:])
			rp.p.ReceiveSetup(tr.Endpoint, packet[:])
		} else if tr.Rx {
			rp.p.CompleteTransfer(tr.Endpoint, sim.Out)
		}
		if tr.Tx {
			rp.p.CompleteTransfer(tr.Endpoint, sim.In)
		}

	default:
		rp.p.Raise(st.flags)
	}
}

func (rp *replay) step(st *Step, activate func() (Activation, error)) (StepResult, error) {
	pkg.LogDebug(pkg.ComponentReplay, "step", "name", st.Name)
	rp.stimulate(st)

	res := StepResult{Name: st.Name}
	forced := st.RawISTR != nil
	for len(res.Activations) < st.MaxActivations {
		if !forced && !rp.asserted() {
			break
		}
		forced = false
		a, err := activate()
		if err != nil {
			return res, err
		}
		res.Activations = append(res.Activations, a)
	}
	res.ISTR = rp.p.ISTR()
	res.Failures = check(st, &res)
	return res, nil
}

func check(st *Step, res *StepResult) []string {
	var failures []string
	if got := res.Events(); st.checkEvents && !slices.Equal(got, st.events) {
		failures = append(failures, fmt.Sprintf("events %v, want %v", got, st.events))
	}
	if want := st.Expect.HandlerCalls; want != nil && res.HandlerCalls() != *want {
		failures = append(failures, fmt.Sprintf("handler calls %d, want %d", res.HandlerCalls(), *want))
	}
	if want := st.Expect.Traps; want != nil && len(res.Traps()) != *want {
		failures = append(failures, fmt.Sprintf("traps %d, want %d", len(res.Traps()), *want))
	}
	if want := st.Expect.ISTRAfter; want != nil && res.ISTR&udc.ISTR_FLAGS != *want {
		failures = append(failures, fmt.Sprintf("ISTR flags 0x%04X, want 0x%04X", res.ISTR&udc.ISTR_FLAGS, *want))
	}
	return failures
}
