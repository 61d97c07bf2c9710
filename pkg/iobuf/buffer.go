package iobuf

import (
	"io"
	"sync"
)

// DefaultBlockSize is the size of each block allocated when a Buffer grows.
// Chosen to match the common ATS-style IOBuffer default of 4KB blocks.
const DefaultBlockSize = 4096

// Buffer is a reference-counted, append-only chain of byte blocks. It stands
// in for the host proxy's native I/O buffer handle: callers never see a flat
// byte slice, only blocks, because the real primitive never gives one up
// either.
type Buffer struct {
	mu        sync.Mutex
	blocks    [][]byte
	blockSize int
	refs      int32
}

// NewBuffer allocates an empty buffer with the default block size.
func NewBuffer() *Buffer {
	return NewBufferSize(DefaultBlockSize)
}

// NewBufferSize allocates an empty buffer with a caller-chosen block size.
func NewBufferSize(blockSize int) *Buffer {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Buffer{blockSize: blockSize, refs: 1}
}

// Retain increments the reference count. Every Retain must be matched by a
// Release; the buffer's storage is only reusable (via Reset) once the count
// reaches zero.
func (b *Buffer) Retain() {
	b.mu.Lock()
	b.refs++
	b.mu.Unlock()
}

// Release decrements the reference count and reports whether this was the
// last reference.
func (b *Buffer) Release() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs--
	return b.refs <= 0
}

// Write appends p to the buffer, allocating new blocks on demand ("resize
// on demand" in the IOBuf adapter's terms). It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := len(p)
	for len(p) > 0 {
		if len(b.blocks) == 0 || len(b.blocks[len(b.blocks)-1]) == cap(b.blocks[len(b.blocks)-1]) {
			b.blocks = append(b.blocks, make([]byte, 0, b.blockSize))
		}
		last := &b.blocks[len(b.blocks)-1]
		room := cap(*last) - len(*last)
		n := len(p)
		if n > room {
			n = room
		}
		*last = append(*last, p[:n]...)
		p = p[n:]
	}
	return total, nil
}

// Len returns the total number of bytes currently staged in the buffer.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, blk := range b.blocks {
		total += len(blk)
	}
	return total
}

// Reset discards all staged blocks, keeping the buffer allocation for reuse.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.blocks = b.blocks[:0]
	b.mu.Unlock()
}

// NewReader returns a Reader positioned at the start of the buffer's
// current contents. Multiple independent readers may coexist.
func (b *Buffer) NewReader() *Reader {
	return &Reader{buf: b}
}

// Bytes copies out the full contents of the buffer. Intended for tests and
// for the rare caller (header reparsing) that genuinely needs a contiguous
// view; hot paths should prefer Reader.Block to avoid the copy.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.totalLocked())
	for _, blk := range b.blocks {
		out = append(out, blk...)
	}
	return out
}

func (b *Buffer) totalLocked() int {
	total := 0
	for _, blk := range b.blocks {
		total += len(blk)
	}
	return total
}

// Reader walks a Buffer's blocks without copying until asked to.
type Reader struct {
	buf      *Buffer
	blockIdx int
	offset   int
}

// Avail returns the number of unread bytes remaining in the buffer.
func (r *Reader) Avail() int {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	avail := 0
	for i := r.blockIdx; i < len(r.buf.blocks); i++ {
		if i == r.blockIdx {
			avail += len(r.buf.blocks[i]) - r.offset
			continue
		}
		avail += len(r.buf.blocks[i])
	}
	return avail
}

// Block returns the next unread block (or the unread remainder of the
// current block) without advancing the reader. ok is false once the reader
// has drained every block currently staged.
func (r *Reader) Block() (data []byte, ok bool) {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	for r.blockIdx < len(r.buf.blocks) {
		blk := r.buf.blocks[r.blockIdx]
		if r.offset >= len(blk) {
			r.blockIdx++
			r.offset = 0
			continue
		}
		return blk[r.offset:], true
	}
	return nil, false
}

// Consume advances the reader past n bytes, which must not exceed Avail().
func (r *Reader) Consume(n int) {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	for n > 0 && r.blockIdx < len(r.buf.blocks) {
		blk := r.buf.blocks[r.blockIdx]
		remaining := len(blk) - r.offset
		if n < remaining {
			r.offset += n
			return
		}
		n -= remaining
		r.blockIdx++
		r.offset = 0
	}
}

// CopyTo copies up to n bytes from the reader into dst, advancing the
// reader by the number of bytes actually copied.
func (r *Reader) CopyTo(dst *Buffer, n int) int {
	copied := 0
	for copied < n {
		data, ok := r.Block()
		if !ok {
			break
		}
		take := n - copied
		if take > len(data) {
			take = len(data)
		}
		dst.Write(data[:take])
		r.Consume(take)
		copied += take
	}
	return copied
}

// WriteTo copies up to n bytes from the reader directly into w, advancing
// the reader by the number of bytes actually written. Used by the stream
// filter to forward verbatim ranges to the downstream VIO without staging
// a second copy.
func (r *Reader) WriteTo(w io.Writer, n int) (int, error) {
	written := 0
	for written < n {
		data, ok := r.Block()
		if !ok {
			break
		}
		take := n - written
		if take > len(data) {
			take = len(data)
		}
		if _, err := w.Write(data[:take]); err != nil {
			return written, err
		}
		r.Consume(take)
		written += take
	}
	return written, nil
}
