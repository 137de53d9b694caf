package synthetic

// ring is a simple non-concurrent safe ring buffer for audio samples.
// It gathers variable-sized hardware periods into fixed-size blocks.
type ring struct {
	s  []int16
	wi int
}

func newRing(size int) ring { return ring{s: make([]int16, size)} }

// write fills the buffer until it's full and then passes the gathered
// data into the callback. The callback gets the internal storage, so
// the data should be copied out if kept.
//
// Underflow keeps the written samples until the next write,
// overflow calls the callback for every filled block.
func (r *ring) write(s []int16, onFull func([]int16)) (n int) {
	for n < len(s) {
		w := copy(r.s[r.wi:], s[n:])
		n += w
		r.wi += w
		if r.wi == len(r.s) {
			r.wi = 0
			onFull(r.s)
		}
	}
	return
}

func (r *ring) reset() { r.wi = 0 }
