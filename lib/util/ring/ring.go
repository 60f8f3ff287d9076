package ring

// Ring is a growable double-ended queue backed by a circular buffer. The zero
// value is a valid empty ring.
type Ring[T any] struct {
	buf    []T
	head   int
	length int
}

func (r *Ring[T]) grow() {
	size := len(r.buf) * 2
	if size == 0 {
		size = 4
	}

	buf := make([]T, size)
	n := copy(buf, r.buf[r.head:])
	copy(buf[n:], r.buf[:r.head])
	r.buf = buf
	r.head = 0
}

func (r *Ring[T]) index(n int) int {
	i := r.head + n
	if i >= len(r.buf) {
		i -= len(r.buf)
	}
	return i
}

func (r *Ring[T]) PushBack(value T) {
	if r.length == len(r.buf) {
		r.grow()
	}
	r.buf[r.index(r.length)] = value
	r.length++
}

func (r *Ring[T]) PushFront(value T) {
	if r.length == len(r.buf) {
		r.grow()
	}
	r.head--
	if r.head < 0 {
		r.head = len(r.buf) - 1
	}
	r.buf[r.head] = value
	r.length++
}

func (r *Ring[T]) PopFront() (T, bool) {
	if r.length == 0 {
		return *new(T), false
	}
	front := r.buf[r.head]
	r.buf[r.head] = *new(T)
	r.head++
	if r.head == len(r.buf) {
		r.head = 0
	}
	r.length--
	return front, true
}

func (r *Ring[T]) PopBack() (T, bool) {
	if r.length == 0 {
		return *new(T), false
	}
	i := r.index(r.length - 1)
	back := r.buf[i]
	r.buf[i] = *new(T)
	r.length--
	return back, true
}

// Get returns the nth item from the front. Panics if n is out of range.
func (r *Ring[T]) Get(n int) T {
	if n < 0 || n >= r.length {
		panic("index out of range")
	}
	return r.buf[r.index(n)]
}

func (r *Ring[T]) Length() int {
	return r.length
}

func (r *Ring[T]) Clear() {
	for i := 0; i < r.length; i++ {
		r.buf[r.index(i)] = *new(T)
	}
	r.head = 0
	r.length = 0
}
