// Package pagination tracks page positions for list endpoints.
//
// The Jotform list endpoints page with limit/offset. A stream is complete
// when a page comes back with zero records: there is no total count and no
// "has more" flag, so the empty page is the only end-of-data signal. The
// offset advances by the page size, not by the number of records actually
// returned, so a short page is followed by one more request that comes
// back empty.
package pagination

// Paginator yields the offset of the next page to request.
type Paginator interface {
	// Current returns the offset for the next request.
	Current() int
	// Advance records that a page with pageLen records was received.
	Advance(pageLen int)
	// Finished reports whether no further requests should be made.
	Finished() bool
	// Reset rewinds to the first page.
	Reset()
}

// OffsetPaginator walks offsets 0, n, 2n, ... until an empty page.
type OffsetPaginator struct {
	pageSize int
	offset   int
	finished bool
}

// NewOffsetPaginator creates a paginator with the given page size.
func NewOffsetPaginator(pageSize int) *OffsetPaginator {
	if pageSize <= 0 {
		pageSize = 1
	}
	return &OffsetPaginator{pageSize: pageSize}
}

// PageSize returns the configured page size.
func (p *OffsetPaginator) PageSize() int { return p.pageSize }

// Current returns the offset for the next request.
func (p *OffsetPaginator) Current() int { return p.offset }

// Finished reports whether an empty page has been seen.
func (p *OffsetPaginator) Finished() bool { return p.finished }

// Advance moves one page forward, or finishes on an empty page. Calls
// after completion are ignored.
func (p *OffsetPaginator) Advance(pageLen int) {
	if p.finished {
		return
	}
	if pageLen <= 0 {
		p.finished = true
		return
	}
	p.offset += p.pageSize
}

// Reset rewinds to offset 0.
func (p *OffsetPaginator) Reset() {
	p.offset = 0
	p.finished = false
}

// SinglePage is used by endpoints that return everything in one response.
type SinglePage struct {
	done bool
}

// NewSinglePage creates a paginator that finishes after one page.
func NewSinglePage() *SinglePage { return &SinglePage{} }

// Current always returns offset 0.
func (p *SinglePage) Current() int { return 0 }

// Advance finishes the paginator whatever the page length.
func (p *SinglePage) Advance(int) { p.done = true }

// Finished reports whether the page has been read.
func (p *SinglePage) Finished() bool { return p.done }

// Reset makes the page readable again.
func (p *SinglePage) Reset() { p.done = false }
