package orchestrator

// Ring is a fixed-capacity buffer that keeps the most recent values.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

// NewRing returns a ring holding at most capacity values.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push adds v, evicting the oldest value when full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of stored values.
func (r *Ring[T]) Len() int {
	return r.size
}

// Oldest returns a copy of the values, oldest first.
func (r *Ring[T]) Oldest() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Newest returns a copy of the values, newest first.
func (r *Ring[T]) Newest() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+r.size-1-i)%len(r.buf)]
	}
	return out
}
