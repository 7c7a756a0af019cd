package progressr

import (
	"io"
	"sync/atomic"
)

// Reader counts the bytes read through it. It is safe to query from another
// goroutine while reads are in progress.
type Reader struct {
	io.Reader
	total   int64
	current atomic.Int64
}

// NewReader wraps reader. A total of zero or less means the size is unknown.
func NewReader(reader io.Reader, total int64) *Reader {
	return &Reader{
		Reader: reader,
		total:  total,
	}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.Reader.Read(b)
	p.current.Add(int64(n))
	return n, err
}

func (p *Reader) Current() int64 {
	return p.current.Load()
}

// Progress returns the fraction read so far, or 0 when the total is unknown.
func (p *Reader) Progress() float64 {
	if p.total <= 0 {
		return 0
	}
	return float64(p.current.Load()) / float64(p.total)
}
