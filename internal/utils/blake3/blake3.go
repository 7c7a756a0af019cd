package blake3

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// Reader hashes everything read through it.
type Reader struct {
	r    io.Reader
	hash *blake3.Hasher
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, hash: blake3.New()}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.hash.Write(p[:n])
	return n, err
}

// Sum returns the hex digest of the bytes read so far.
func (r *Reader) Sum() string {
	return hex.EncodeToString(r.hash.Sum(nil))
}

func Compute(data io.Reader) (string, error) {
	r := NewReader(data)
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return r.Sum(), nil
}
