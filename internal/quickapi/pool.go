package quickapi

const poolPageSize = 128

// Pool is a pool of T that can be allocated and reset.
// Everything allocated from a Pool lives until the next Reset, which is how
// per-method scratch memory is bulk-reclaimed.
type Pool[T any] struct {
	pages            []*[poolPageSize]T
	allocated, index int
}

// NewPool returns a new Pool.
func NewPool[T any]() Pool[T] {
	var ret Pool[T]
	ret.Reset()
	return ret
}

// Allocated returns the number of allocated T currently in the pool.
func (p *Pool[T]) Allocated() int {
	return p.allocated
}

// Allocate allocates a new T from the pool.
func (p *Pool[T]) Allocate() *T {
	if p.index == poolPageSize {
		if len(p.pages) == cap(p.pages) {
			p.pages = append(p.pages, new([poolPageSize]T))
		} else {
			i := len(p.pages)
			p.pages = p.pages[:i+1]
			if p.pages[i] == nil {
				p.pages[i] = new([poolPageSize]T)
			}
		}
		p.index = 0
	}
	ret := &p.pages[len(p.pages)-1][p.index]
	p.index++
	p.allocated++
	return ret
}

// Reset resets the pool. Pages are zeroed and kept for reuse.
func (p *Pool[T]) Reset() {
	for _, ns := range p.pages {
		pages := ns[:]
		for i := range pages {
			var v T
			pages[i] = v
		}
	}
	p.pages = p.pages[:0]
	p.index = poolPageSize
	p.allocated = 0
}

const slicePoolChunkSize = 1024

// SlicePool hands out fixed-length zeroed slices of T carved from large
// chunks. Slices are never freed individually; Reset reclaims all of them.
type SlicePool[T any] struct {
	chunks [][]T
	// used is the number of chunks in chunks that hold live slices.
	used int
	// offset is the first free index in chunks[used-1].
	offset int
}

// NewSlicePool returns a new SlicePool.
func NewSlicePool[T any]() SlicePool[T] {
	return SlicePool[T]{}
}

// Allocate returns a zeroed slice of length n whose capacity is exactly n,
// so that appending to it never overwrites a neighbour.
func (p *SlicePool[T]) Allocate(n int) []T {
	if n == 0 {
		return nil
	}
	if n > slicePoolChunkSize {
		// Too large to share a chunk.
		return make([]T, n)
	}
	if p.used == 0 || p.offset+n > len(p.chunks[p.used-1]) {
		if p.used == len(p.chunks) {
			p.chunks = append(p.chunks, make([]T, slicePoolChunkSize))
		}
		p.used++
		p.offset = 0
	}
	chunk := p.chunks[p.used-1]
	ret := chunk[p.offset : p.offset+n : p.offset+n]
	p.offset += n
	return ret
}

// Reset zeroes every handed out slice and makes the chunks available again.
func (p *SlicePool[T]) Reset() {
	var zero T
	for _, c := range p.chunks[:p.used] {
		for i := range c {
			c[i] = zero
		}
	}
	p.used, p.offset = 0, 0
}
