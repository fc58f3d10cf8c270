package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gpuval"
)

// check is one command buffer to record. A nil wantErr means the command
// buffer must validate and submit.
type check struct {
	label   string
	record  func(b *gpuval.CommandBufferBuilder)
	wantErr error

	// before runs between Finish and Submit.
	before func(cb *gpuval.CommandBuffer) error
}

// plan is what a scenario sets up: its checks, plus a verification run
// once the submitted work has completed.
type plan struct {
	checks []check
	verify func(ctx context.Context) error
}

type scenario struct {
	name  string
	setup func(d *gpuval.Device) (*plan, error)
}

var scenarios = []scenario{
	{"copy", copyScenario},
	{"render", renderScenario},
	{"compute", computeScenario},
	{"hazards", hazardScenario},
}

type runner struct {
	device *gpuval.Device
	report func(format string, args ...any)

	verify     []func(ctx context.Context) error
	ran        int
	submitted  int
	rejected   int
	mismatched int
}

func (r *runner) runScenarios(only string) error {
	for _, s := range scenarios {
		if only != "all" && only != s.name {
			continue
		}
		p, err := s.setup(r.device)
		if err != nil {
			return fmt.Errorf("%s: setup: %w", s.name, err)
		}
		for _, c := range p.checks {
			r.run(s.name, c)
		}
		if p.verify != nil {
			r.verify = append(r.verify, p.verify)
		}
		r.ran++
	}
	if r.ran == 0 {
		return fmt.Errorf("unknown scenario %q", only)
	}
	return nil
}

func (r *runner) run(scenario string, c check) {
	err := r.record(c)
	switch {
	case err == nil:
		r.submitted++
	default:
		r.rejected++
	}

	if errors.Is(err, c.wantErr) {
		if err != nil {
			r.report("%s/%s: rejected as expected: %v", scenario, c.label, err)
		} else {
			r.report("%s/%s: ok", scenario, c.label)
		}
		return
	}
	r.mismatched++
	r.report("%s/%s: got %v, want %v", scenario, c.label, err, c.wantErr)
}

func (r *runner) record(c check) error {
	b := r.device.CreateCommandBufferBuilder(c.label)
	c.record(b)
	cb, err := b.Finish()
	if err != nil {
		return err
	}
	if c.before != nil {
		if err := c.before(cb); err != nil {
			return err
		}
	}
	return r.device.Queue().Submit(cb)
}

// finish waits for everything submitted, ticks the device and runs the
// scenario verifications.
func (r *runner) finish(ctx context.Context) error {
	if last := r.device.LastSubmittedSerial(); last > 0 {
		if err := r.device.WaitForSerialContext(ctx, last); err != nil {
			return fmt.Errorf("wait for serial %d: %w", last, err)
		}
	}
	r.device.Tick()
	for _, v := range r.verify {
		if err := v(ctx); err != nil {
			r.mismatched++
			r.report("verify: %v", err)
		}
	}
	return nil
}
