package halbackend

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuval/serial"
)

// encoding is an encoder together with the command buffer it produced.
type encoding struct {
	encoder hal.CommandEncoder
	buffer  hal.CommandBuffer
}

// encoderPool recycles command encoders. An encoder whose command buffer
// was submitted at serial s is reset and reused once s completes.
type encoderPool struct {
	device   hal.Device
	free     []hal.CommandEncoder
	inFlight serial.Queue[encoding]
	created  int
}

func newEncoderPool(device hal.Device) *encoderPool {
	return &encoderPool{device: device}
}

// acquire returns an encoder that has begun encoding.
func (p *encoderPool) acquire(label string) (hal.CommandEncoder, error) {
	var enc hal.CommandEncoder
	if n := len(p.free); n > 0 {
		enc = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		var err error
		enc, err = p.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gpuval"})
		if err != nil {
			return nil, fmt.Errorf("halbackend: create command encoder: %w", err)
		}
		p.created++
	}
	if err := enc.BeginEncoding(label); err != nil {
		p.free = append(p.free, enc)
		return nil, fmt.Errorf("halbackend: begin encoding %q: %w", label, err)
	}
	return enc, nil
}

// discard abandons the recording in progress on enc.
func (p *encoderPool) discard(enc hal.CommandEncoder) {
	enc.DiscardEncoding()
	p.free = append(p.free, enc)
}

// retire parks enc until serial s completes.
func (p *encoderPool) retire(enc hal.CommandEncoder, cb hal.CommandBuffer, s serial.Serial) {
	p.inFlight.Enqueue(encoding{encoder: enc, buffer: cb}, s)
}

// recycle resets an encoding whose command buffer the GPU no longer uses.
func (p *encoderPool) recycle(e encoding) {
	e.encoder.ResetAll([]hal.CommandBuffer{e.buffer})
	p.free = append(p.free, e.encoder)
}

// tick recycles the encoders of every serial up to completed.
func (p *encoderPool) tick(completed serial.Serial) int {
	n := 0
	for _, e := range p.inFlight.UpTo(completed) {
		p.recycle(e)
		n++
	}
	p.inFlight.ClearUpTo(completed)
	return n
}

// destroy frees every encoder. The device must be idle.
func (p *encoderPool) destroy() {
	p.tick(serial.Max)
	for _, enc := range p.free {
		enc.Destroy()
	}
	p.free = nil
}
