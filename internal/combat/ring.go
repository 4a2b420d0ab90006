package combat

// Ring is a fixed-capacity ring buffer of rate samples. When
// full, pushing evicts the oldest sample. The zero value is not usable;
// use newRing.
type Ring struct {
	buf  []float64
	head int // index of the oldest sample
	size int
}

func newRing(capacity int) *Ring {
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends a sample, evicting the oldest when at capacity.
func (r *Ring) Push(v float64) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of samples currently held.
func (r *Ring) Len() int { return r.size }

// Samples returns the samples oldest-first as a fresh slice.
func (r *Ring) Samples() []float64 {
	out := make([]float64, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Reset drops all samples, keeping capacity.
func (r *Ring) Reset() {
	r.head = 0
	r.size = 0
}
