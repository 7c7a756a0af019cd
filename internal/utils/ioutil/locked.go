package ioutil

import (
	"io"
	"sync"
)

// ReleaseReadCloser calls release once, after the wrapped reader is closed.
type ReleaseReadCloser struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func NewReleaseReadCloser(r io.ReadCloser, release func()) *ReleaseReadCloser {
	return &ReleaseReadCloser{ReadCloser: r, release: release}
}

// Close is safe to call more than once.
func (l *ReleaseReadCloser) Close() error {
	err := l.ReadCloser.Close()
	l.once.Do(l.release)
	return err
}
