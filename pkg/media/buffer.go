package media

import "sync/atomic"

// Buffer is a reference counter for a payload owned by the capture
// subsystem. It starts with one reference held by the producer, and
// the release hook fires once when the last reference is dropped.
type Buffer struct {
	refs atomic.Int32
	done func()
}

func NewBuffer(done func()) *Buffer {
	b := &Buffer{done: done}
	b.refs.Store(1)
	return b
}

// Retain adds a reference. The payload stays valid until
// the matching Release.
func (b *Buffer) Retain() {
	if b == nil {
		return
	}
	if b.refs.Add(1) <= 1 {
		panic("media: retain of a released buffer")
	}
}

func (b *Buffer) Release() {
	if b == nil {
		return
	}
	switch n := b.refs.Add(-1); {
	case n == 0:
		if b.done != nil {
			b.done()
		}
	case n < 0:
		panic("media: buffer released too many times")
	}
}
