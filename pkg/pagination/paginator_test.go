package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffsetPaginator_Sequence(t *testing.T) {
	p := NewOffsetPaginator(100)

	var offsets []int
	for _, pageLen := range []int{100, 100, 37, 0} {
		assert.False(t, p.Finished())
		offsets = append(offsets, p.Current())
		p.Advance(pageLen)
	}

	assert.Equal(t, []int{0, 100, 200, 300}, offsets)
	assert.True(t, p.Finished())
}

func TestOffsetPaginator_EmptyFirstPage(t *testing.T) {
	p := NewOffsetPaginator(100)
	assert.Equal(t, 0, p.Current())

	p.Advance(0)
	assert.True(t, p.Finished())
	assert.Equal(t, 0, p.Current())
}

func TestOffsetPaginator_NeverMovesBackwards(t *testing.T) {
	p := NewOffsetPaginator(50)
	p.Advance(50)
	p.Advance(0)
	p.Advance(50)

	assert.Equal(t, 50, p.Current())
	assert.True(t, p.Finished())
}

func TestOffsetPaginator_Reset(t *testing.T) {
	p := NewOffsetPaginator(10)
	p.Advance(10)
	p.Advance(0)
	p.Reset()

	assert.Equal(t, 0, p.Current())
	assert.False(t, p.Finished())
	assert.Equal(t, 10, p.PageSize())
}

func TestOffsetPaginator_InvalidPageSize(t *testing.T) {
	p := NewOffsetPaginator(0)
	assert.Equal(t, 1, p.PageSize())
}

func TestSinglePage(t *testing.T) {
	var p Paginator = NewSinglePage()
	assert.False(t, p.Finished())
	p.Advance(250)
	assert.True(t, p.Finished())
	assert.Equal(t, 0, p.Current())

	p.Reset()
	assert.False(t, p.Finished())
}
