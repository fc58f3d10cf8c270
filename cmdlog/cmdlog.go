// Package cmdlog implements an append-only log of tagged commands.
//
// A command buffer builder records each operation with [Allocate], which
// appends a tag and returns a zeroed command struct to fill in. Variable
// length payloads (buffer lists, offsets, constant bytes) are attached to the
// most recent command with [AllocateData]. When recording is done, [Allocator.Freeze]
// turns the log into an [Iterator] that walks the commands forward in
// recording order:
//
//	for id, ok := it.NextCommandID(); ok; id, ok = it.NextCommandID() {
//		switch id {
//		case OpSetVertexBuffers:
//			cmd := cmdlog.NextCommand[SetVertexBuffersCmd](it)
//			buffers := cmdlog.NextData[*Buffer](it, int(cmd.Count))
//			...
//		}
//	}
//
// Payloads belong to their command, so a consumer that skips a command's
// payload does not misalign later commands.
//
// Neither type is safe for concurrent use.
package cmdlog

import "fmt"

// record is one entry of the log: its tag, its command struct and the range
// of the side table holding its payloads.
type record[K comparable] struct {
	id        K
	cmd       any
	dataStart int
	dataCount int
}

// Allocator records commands. The zero value is ready to use.
type Allocator[K comparable] struct {
	records []record[K]
	data    []any
	frozen  bool
}

// Allocate appends a command tagged id and returns it for the caller to
// fill in. It panics if the allocator is frozen.
func Allocate[T any, K comparable](a *Allocator[K], id K) *T {
	if a.frozen {
		panic(fmt.Sprintf("cmdlog: Allocate(%v) after Freeze", id))
	}
	cmd := new(T)
	a.records = append(a.records, record[K]{id: id, cmd: cmd, dataStart: len(a.data)})
	return cmd
}

// AllocateData attaches a payload of count elements to the most recently
// allocated command and returns it for the caller to fill in.
// It panics if no command was allocated or the allocator is frozen.
func AllocateData[T any, K comparable](a *Allocator[K], count int) []T {
	if a.frozen {
		panic("cmdlog: AllocateData after Freeze")
	}
	if len(a.records) == 0 {
		panic("cmdlog: AllocateData before any command")
	}
	payload := make([]T, count)
	a.data = append(a.data, payload)
	a.records[len(a.records)-1].dataCount++
	return payload
}

// Len returns the number of recorded commands.
func (a *Allocator[K]) Len() int {
	return len(a.records)
}

// Frozen reports whether Freeze has been called.
func (a *Allocator[K]) Frozen() bool {
	return a.frozen
}

// Freeze ends recording and returns an iterator positioned before the first
// command. Further Allocate calls panic.
func (a *Allocator[K]) Freeze() *Iterator[K] {
	a.frozen = true
	return &Iterator[K]{records: a.records, data: a.data, pos: -1}
}

// Iterator walks a frozen log forward.
type Iterator[K comparable] struct {
	records []record[K]
	data    []any
	pos     int
	dataPos int
}

// NextCommandID advances to the next command and returns its tag.
// The second result is false once every command has been visited.
func (it *Iterator[K]) NextCommandID() (K, bool) {
	if it.pos+1 >= len(it.records) {
		it.pos = len(it.records)
		var zero K
		return zero, false
	}
	it.pos++
	it.dataPos = 0
	return it.records[it.pos].id, true
}

// NextCommand returns the command the iterator is positioned on.
// It panics if the command is not a T, which means the consumer and the
// recorder disagree about the tag.
func NextCommand[T any, K comparable](it *Iterator[K]) *T {
	r := it.current()
	cmd, ok := r.cmd.(*T)
	if !ok {
		panic(fmt.Sprintf("cmdlog: command %v holds %T, not %T", r.id, r.cmd, cmd))
	}
	return cmd
}

// NextData returns the next payload of the current command, which must hold
// count elements of type T.
func NextData[T any, K comparable](it *Iterator[K], count int) []T {
	r := it.current()
	if it.dataPos >= r.dataCount {
		panic(fmt.Sprintf("cmdlog: command %v has no more payloads", r.id))
	}
	payload, ok := it.data[r.dataStart+it.dataPos].([]T)
	if !ok {
		panic(fmt.Sprintf("cmdlog: payload of command %v is %T, not []%T", r.id, it.data[r.dataStart+it.dataPos], *new(T)))
	}
	if len(payload) != count {
		panic(fmt.Sprintf("cmdlog: payload of command %v has %d elements, want %d", r.id, len(payload), count))
	}
	it.dataPos++
	return payload
}

// Reset rewinds the iterator to before the first command.
func (it *Iterator[K]) Reset() {
	it.pos = -1
	it.dataPos = 0
}

// Len returns the number of commands in the log.
func (it *Iterator[K]) Len() int {
	return len(it.records)
}

// Release drops every command and payload. The iterator is empty afterwards.
func (it *Iterator[K]) Release() {
	clear(it.records)
	clear(it.data)
	it.records = nil
	it.data = nil
	it.Reset()
}

func (it *Iterator[K]) current() *record[K] {
	if it.pos < 0 || it.pos >= len(it.records) {
		panic("cmdlog: no current command")
	}
	return &it.records[it.pos]
}
