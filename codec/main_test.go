package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOrdered(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Int(-1)
	w.Ints([]int{3, 1, 2})
	w.Bool(true)
	w.Float64(12.5)
	w.String("PASS01")
	if err := w.Flush(); err != nil {
		t.Fatalf("error: %s", err)
	}
	if buf.Len() != 4+4+12+1+8+4+6 {
		t.Fatalf("unexpected length %d", buf.Len())
	}
	r := NewReader(&buf)
	if got := r.Int(); got != -1 {
		t.Fatalf("got %d", got)
	}
	if got := r.Ints(); !cmp.Equal(got, []int{3, 1, 2}) {
		t.Fatalf("diff: %s", cmp.Diff(got, []int{3, 1, 2}))
	}
	if !r.Bool() {
		t.Fatal("expected true")
	}
	if got := r.Float64(); got != 12.5 {
		t.Fatalf("got %f", got)
	}
	if got := r.String(); got != "PASS01" {
		t.Fatalf("got %q", got)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("error: %s", err)
	}
	r.Int()
	if !errors.Is(r.Err(), io.EOF) {
		t.Fatalf("expected EOF, got %v", r.Err())
	}
}

func TestNegativeCount(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Int(-4)
	w.Flush()
	r := NewReader(&buf)
	if vs := r.Ints(); len(vs) != 0 {
		t.Fatalf("got %v", vs)
	}
	if r.Err() == nil {
		t.Fatal("expected error")
	}
}

func TestHugeCount(t *testing.T) {
	huge := []byte{0xff, 0xff, 0xff, 0x7f}
	type setup struct {
		name string
		read func(r *Reader) int
	}
	for _, s := range []setup{
		{"ints", func(r *Reader) int { return len(r.Ints()) }},
		{"string", func(r *Reader) int { return len(r.String()) }},
	} {
		t.Run(s.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(huge))
			if got := s.read(r); got != 0 {
				t.Fatalf("got %d elements", got)
			}
			if !errors.Is(r.Err(), io.EOF) && !errors.Is(r.Err(), io.ErrUnexpectedEOF) {
				t.Fatalf("expected EOF, got %v", r.Err())
			}
		})
	}
}

func TestFloat64(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Float64(150.1)
	if err := w.Flush(); err != nil {
		t.Fatalf("error: %s", err)
	}
	r := NewReader(&buf)
	if got := r.Float64(); got != 150.1 {
		t.Fatalf("got %v", got)
	}
}
