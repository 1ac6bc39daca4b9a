package containers

// Ring is a fixed circular array with a cursor. Advance moves the cursor to
// (index + 1) mod Len.
type Ring[T any] struct {
	items []T
	index int
}

func NewRing[T any](items []T) *Ring[T] {
	return &Ring[T]{items: items}
}

// Advance moves the cursor forward and returns the new current element.
func (r *Ring[T]) Advance() T {
	r.index = (r.index + 1) % len(r.items)
	return r.items[r.index]
}

func (r *Ring[T]) Current() T {
	return r.items[r.index]
}

func (r *Ring[T]) Index() int {
	return r.index
}

// Seek places the cursor at i mod Len.
func (r *Ring[T]) Seek(i int) {
	n := len(r.items)
	r.index = ((i % n) + n) % n
}

func (r *Ring[T]) Len() int {
	return len(r.items)
}

func (r *Ring[T]) At(i int) T {
	return r.items[i]
}

// Each visits every element in storage order.
func (r *Ring[T]) Each(fn func(i int, item T)) {
	for i, it := range r.items {
		fn(i, it)
	}
}
