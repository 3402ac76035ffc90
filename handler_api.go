package weft

import (
	"os"

	"github.com/weftsrv/weft/buffer"
)

// Request is the handle passed to a user handler and error callback. It
// replaces the source's thread-local "current context" (spec.md section
// 9, "Ambient current context via thread-local") with an explicit
// argument: every accessor below is a thin, precondition-checked
// wrapper over the context's schema, value store, and buffers.
type Request struct {
	ctx *Context
}

// Path is the request URL's path without the query string. It is set
// whether or not a route is registered for that path.
func (r *Request) Path() string { return r.ctx.path }

// UserData is the opaque value supplied at route registration.
func (r *Request) UserData() any {
	if r.ctx.route == nil {
		return nil
	}
	return r.ctx.route.UserData
}

// Header returns a request header by (case-insensitive) name.
func (r *Request) Header(name string) (string, bool) {
	v, ok := r.ctx.headers[normalizeHeaderKey(name)]
	return v, ok
}

// --- typed argument accessors (C2 via C8) ---

func (r *Request) Exists(idx int) bool        { return r.ctx.values.Exists(idx) }
func (r *Request) Flag(idx int) int           { return r.ctx.values.Flag(idx) }
func (r *Request) Int(idx int) int64          { return r.ctx.values.Int(idx) }
func (r *Request) Number(idx int) float64     { return r.ctx.values.Number(idx) }
func (r *Request) String(idx int) string      { return r.ctx.values.String(idx) }
func (r *Request) ListLen(idx int) int        { return r.ctx.values.ListLen(idx) }
func (r *Request) ListInt(idx, i int) int64   { return r.ctx.values.ListInt(idx, i) }
func (r *Request) ListNumber(idx, i int) float64 {
	return r.ctx.values.ListNumber(idx, i)
}
func (r *Request) ListString(idx, i int) string { return r.ctx.values.ListString(idx, i) }

// --- response building ---

// SetHeader sets a response header. Content-Length and Connection are
// reserved (computed by the engine at serialization time) and silently
// ignored here.
func (r *Request) SetHeader(key, value string) { r.ctx.setHeader(key, value) }

// WriteString appends s to the response body.
func (r *Request) WriteString(s string) { r.ctx.writeBody([]byte(s)) }

// WriteFormat appends fmt.Sprintf(format, a...) to the response body.
func (r *Request) WriteFormat(format string, a ...any) {
	if r.ctx.respBody == nil {
		r.ctx.respBody = buffer.Get()
	}
	r.ctx.respBody.AppendFormat(format, a...)
}

// WriteFile splices l bytes of f (starting at off) into the response
// body.
func (r *Request) WriteFile(f *os.File, off int64, l int) error {
	if r.ctx.respBody == nil {
		r.ctx.respBody = buffer.Get()
	}
	_, err := r.ctx.respBody.SpliceFrom(f, off, l)
	return err
}

// WriteFilePath opens path and splices its entire contents into the
// response body.
func (r *Request) WriteFilePath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	return r.WriteFile(f, 0, int(fi.Size()))
}

// --- request body ---

// ReadBody reads up to len(dst) bytes into dst, blocking (suspending
// the handler task, not the reactor) until either dst is full, the body
// is exhausted, or the connection dies. Returns the number of bytes
// read, 0 when there is no more body, or -1 if the connection closed
// mid-read (spec.md section 4.7).
func (r *Request) ReadBody(dst []byte) (int, error) {
	return r.ctx.readBody(dst)
}

// ReadBodyToFile drains the entire request body into f via a 1 KiB
// staging buffer.
func (r *Request) ReadBodyToFile(f *os.File) (int64, error) {
	staging := make([]byte, 1024)
	var total int64
	for {
		n, err := r.ReadBody(staging)
		if n < 0 {
			return total, errConnectionClosed
		}
		if n == 0 {
			return total, nil
		}
		if _, werr := f.Write(staging[:n]); werr != nil {
			return total, werr
		}
		total += int64(n)
	}
}

// ReadBodyToFilePath creates (or truncates) path and drains the request
// body into it.
func (r *Request) ReadBodyToFilePath(path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return r.ReadBodyToFile(f)
}
