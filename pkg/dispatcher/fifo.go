package dispatcher

import (
	"time"

	"github.com/dualive/capture/pkg/media"
)

// fifo is a fixed-size ring of units, not concurrent safe.
type fifo struct {
	buf  []media.Unit
	head int
	n    int
}

func newFifo(size int) fifo { return fifo{buf: make([]media.Unit, size)} }

func (f *fifo) len() int { return f.n }

// push adds a unit to the tail, the caller makes sure there is room.
func (f *fifo) push(u media.Unit) {
	f.buf[(f.head+f.n)%len(f.buf)] = u
	f.n++
}

func (f *fifo) pop() media.Unit {
	if f.n == 0 {
		return nil
	}
	u := f.buf[f.head]
	f.buf[f.head] = nil
	f.head = (f.head + 1) % len(f.buf)
	f.n--
	return u
}

// removeFunc takes out all the units matching fn keeping the order of the rest.
func (f *fifo) removeFunc(fn func(media.Unit) bool) (removed []media.Unit) {
	n := f.n
	for range n {
		u := f.pop()
		if fn(u) {
			removed = append(removed, u)
		} else {
			f.push(u)
		}
	}
	return
}

// window counts events within a sliding time span,
// it remembers at most size last events.
type window struct {
	times []time.Time
	i, n  int
	span  time.Duration
}

func newWindow(size int, span time.Duration) *window {
	return &window{times: make([]time.Time, size), span: span}
}

func (w *window) add(t time.Time) {
	w.times[w.i] = t
	w.i = (w.i + 1) % len(w.times)
	if w.n < len(w.times) {
		w.n++
	}
}

func (w *window) count(now time.Time) (c int) {
	for k := 0; k < w.n; k++ {
		if now.Sub(w.times[k]) <= w.span {
			c++
		}
	}
	return
}

func (w *window) reset() { w.i, w.n = 0, 0 }
