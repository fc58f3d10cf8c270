package gpuval

import "github.com/gogpu/gpuval/cmdlog"

// CommandBuffer is a validated, immutable list of commands ready for
// Queue.Submit. A command buffer can be submitted once.
type CommandBuffer struct {
	device   *Device
	label    string
	commands *cmdlog.Iterator[Opcode]
	passes   []PassResourceUsage
	buffers  []*Buffer
	textures []*Texture

	bindGroups []*BindGroup
	submitted  bool
}

// Label returns the debug label of the builder that produced cb.
func (cb *CommandBuffer) Label() string { return cb.label }

// Device returns the device cb was recorded on.
func (cb *CommandBuffer) Device() *Device { return cb.device }

// Passes returns the resource usage of every pass, in recording order.
func (cb *CommandBuffer) Passes() []PassResourceUsage { return cb.passes }

// Buffers returns every buffer the commands reference.
func (cb *CommandBuffer) Buffers() []*Buffer { return cb.buffers }

// Textures returns every texture the commands reference.
func (cb *CommandBuffer) Textures() []*Texture { return cb.textures }

// BindGroups returns every bind group the commands set.
func (cb *CommandBuffer) BindGroups() []*BindGroup { return cb.bindGroups }

// Commands returns the command log rewound to its first command. Backends
// replay the log with it; the n-th pass they meet has usage Passes()[n].
func (cb *CommandBuffer) Commands() *cmdlog.Iterator[Opcode] {
	if cb.commands == nil {
		return nil
	}
	cb.commands.Reset()
	return cb.commands
}

// IsSubmitted reports whether cb has been submitted.
func (cb *CommandBuffer) IsSubmitted() bool { return cb.submitted }

// Release drops the recorded commands. A released command buffer cannot be
// submitted.
func (cb *CommandBuffer) Release() {
	if cb.commands == nil {
		return
	}
	cb.commands.Release()
	cb.commands = nil
	cb.passes = nil
	cb.buffers = nil
	cb.textures = nil
	cb.bindGroups = nil
}
