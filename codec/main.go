// Package codec reads and writes the ordered binary save format.
//
// Integers are little-endian int32, floats float64, and booleans a single byte.
// Errors are sticky: after the first failure every call is a no-op and Err returns it.
package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

type Writer struct {
	w   *bufio.Writer
	err error
	buf [8]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) write(b []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(b)
}

func (w *Writer) Int(v int) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		if w.err == nil {
			w.err = fmt.Errorf("int %d out of range", v)
		}
		return
	}
	binary.LittleEndian.PutUint32(w.buf[:], uint32(int32(v)))
	w.write(w.buf[:4])
}

func (w *Writer) Float64(v float64) {
	binary.LittleEndian.PutUint64(w.buf[:], math.Float64bits(v))
	w.write(w.buf[:8])
}

func (w *Writer) Bool(v bool) {
	if v {
		w.buf[0] = 1
	} else {
		w.buf[0] = 0
	}
	w.write(w.buf[:1])
}

// Ints writes a count followed by each value.
func (w *Writer) Ints(vs []int) {
	w.Int(len(vs))
	for _, v := range vs {
		w.Int(v)
	}
}

func (w *Writer) String(s string) {
	w.Int(len(s))
	w.write([]byte(s))
}

// Flush flushes buffered data and returns the first error encountered.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

func (w *Writer) Err() error { return w.err }

type Reader struct {
	r   io.Reader
	err error
	buf [8]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func (r *Reader) read(n int) []byte {
	if r.err != nil {
		return nil
	}
	_, r.err = io.ReadFull(r.r, r.buf[:n])
	if r.err != nil {
		return nil
	}
	return r.buf[:n]
}

func (r *Reader) Int() int {
	b := r.read(4)
	if b == nil {
		return 0
	}
	return int(int32(binary.LittleEndian.Uint32(b)))
}

func (r *Reader) Float64() float64 {
	b := r.read(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (r *Reader) Bool() bool {
	b := r.read(1)
	if b == nil {
		return false
	}
	return b[0] != 0
}

// Count reads a collection count and rejects negative values.
func (r *Reader) Count() int {
	n := r.Int()
	if n < 0 && r.err == nil {
		r.err = fmt.Errorf("negative count %d", n)
		return 0
	}
	return n
}

// maxPrealloc caps allocations sized by a count read from the input.
const maxPrealloc = 1024

func (r *Reader) Ints() []int {
	n := r.Count()
	vs := make([]int, 0, min(n, maxPrealloc))
	for i := 0; i < n && r.err == nil; i++ {
		v := r.Int()
		if r.err != nil {
			break
		}
		vs = append(vs, v)
	}
	return vs
}

// String reads a length-prefixed string. Memory grows with the bytes actually read, not the length.
func (r *Reader) String() string {
	n := r.Count()
	if r.err != nil {
		return ""
	}
	var b strings.Builder
	b.Grow(min(n, maxPrealloc))
	_, r.err = io.CopyN(&b, r.r, int64(n))
	if r.err != nil {
		return ""
	}
	return b.String()
}

func (r *Reader) Err() error { return r.err }
