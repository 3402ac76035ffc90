package weft

import (
	"bytes"
	"strings"
	"sync"

	"github.com/weftsrv/weft/buffer"
	"github.com/weftsrv/weft/cmn/cos"
	"github.com/weftsrv/weft/schema"
	"github.com/weftsrv/weft/sched"
)

// Context is one in-flight request: everything the parser, the pipeline
// queue, and the handler task need to agree on for a single HTTP
// message on a connection. Per spec.md section 3 it is created on
// "message begin" and destroyed once its response is flushed (or the
// connection dies).
type Context struct {
	conn *conn

	urlScratch *buffer.Buffer
	path       string
	rawQuery   []byte

	headers     map[string]string
	pendingName string

	route  *Route
	values *schema.Values

	reqBody  *buffer.Buffer
	respBody *buffer.Buffer
	respHdr  map[string]string

	parseError    error // RouteMissing or ArgError: dispatch to an error callback
	protocolError error // oversized query etc.: close without dispatching

	parsedArguments bool
	shouldKeepAlive bool

	mu               sync.Mutex
	bodyDone         bool
	connectionClosed bool
	waitCh           *sched.Chan

	task *sched.Task
}

func newContext(c *conn) *Context {
	return &Context{
		conn:       c,
		urlScratch: buffer.Get(),
		headers:    make(map[string]string, 8),
		reqBody:    buffer.Get(),
		respHdr:    make(map[string]string, 4),
	}
}

func (ctx *Context) free() {
	ctx.urlScratch.Free()
	ctx.reqBody.Free()
	if ctx.respBody != nil {
		ctx.respBody.Free()
	}
}

// --- parser event/data callbacks, invoked from the connection's read
// loop (httpparse.Callbacks wired up in conn.go) ---

func (ctx *Context) onURL(data []byte) {
	ctx.urlScratch.Append(data)
}

// ensureArgsParsed resolves the route and parses the query string the
// first time it's needed: on the first header-field callback, or at
// headers-complete if the request had no headers at all. Per spec.md
// section 4.6 step 2.
func (ctx *Context) ensureArgsParsed() {
	if ctx.parsedArguments {
		return
	}
	ctx.parsedArguments = true

	url := ctx.urlScratch.DrainAll()
	var path string
	var query []byte
	if i := bytes.IndexByte(url, '?'); i >= 0 {
		path = string(url[:i])
		query = url[i+1:]
	} else {
		path = string(url)
	}
	ctx.path = path

	queryCap := DefaultQuerySizeCap
	if ctx.conn.eng.QuerySizeCap > 0 {
		queryCap = ctx.conn.eng.QuerySizeCap
	}
	if len(query) > queryCap {
		ctx.protocolError = cos.NewProtocolError("query string exceeds %d bytes", queryCap)
		return
	}

	route, ok := ctx.conn.eng.routes.lookup(path)
	if !ok {
		ctx.parseError = cos.NewRouteMissingError(path)
		return
	}
	ctx.route = route

	values, err := route.Schema.Parse(query)
	if err != nil {
		ctx.parseError = err
		return
	}
	ctx.values = values
}

func (ctx *Context) onHeaderField(data []byte) {
	ctx.ensureArgsParsed()
	if ctx.protocolError != nil {
		return
	}
	ctx.pendingName = strings.ToLower(string(data))
}

func (ctx *Context) onHeaderValue(data []byte) {
	if ctx.protocolError != nil {
		return
	}
	if ctx.pendingName == "" {
		ctx.protocolError = cos.NewProtocolError("header value with no preceding field name")
		return
	}
	// Header names are lowercased; duplicate names overwrite (last-wins).
	ctx.headers[ctx.pendingName] = string(data)
	ctx.pendingName = ""
}

func (ctx *Context) onHeadersComplete(keepAlive bool) error {
	ctx.ensureArgsParsed()
	if ctx.protocolError != nil {
		return ctx.protocolError
	}
	ctx.shouldKeepAlive = keepAlive
	return nil
}

func (ctx *Context) onBody(data []byte) {
	ctx.mu.Lock()
	ctx.reqBody.Append(data)
	ch := ctx.waitCh
	ctx.waitCh = nil
	ctx.mu.Unlock()
	if ch != nil {
		ch.Send(nil, nil)
	}
}

func (ctx *Context) onMessageComplete() {
	ctx.mu.Lock()
	ctx.bodyDone = true
	ch := ctx.waitCh
	ctx.waitCh = nil
	ctx.mu.Unlock()
	if ch != nil {
		ch.Send(nil, nil)
	}
}

// abort marks the context as belonging to a dead connection, waking any
// handler task blocked in ReadBody so it can unwind (spec.md section
// 4.4, Cancellation).
func (ctx *Context) abort() {
	ctx.mu.Lock()
	ctx.connectionClosed = true
	ctx.bodyDone = true
	ch := ctx.waitCh
	ctx.waitCh = nil
	ctx.mu.Unlock()
	if ch != nil {
		ch.Send(nil, errConnectionClosed)
	}
}

// readBody implements the blocking-read-with-suspend primitive behind
// Request.ReadBody (spec.md section 4.7).
func (ctx *Context) readBody(dst []byte) (int, error) {
	n := len(dst)
	for {
		ctx.mu.Lock()
		switch {
		case ctx.connectionClosed:
			ctx.mu.Unlock()
			return -1, errConnectionClosed
		case ctx.reqBody.Len() >= n, ctx.bodyDone:
			read := ctx.reqBody.Drain(dst)
			ctx.mu.Unlock()
			return read, nil
		}
		ch := sched.Alloc()
		ctx.waitCh = ch
		ctx.mu.Unlock()

		_, err := ch.Recv()
		sched.Free(ch)
		if err != nil {
			return -1, err
		}
	}
}

func (ctx *Context) writeBody(p []byte) {
	if ctx.respBody == nil {
		ctx.respBody = buffer.Get()
	}
	ctx.respBody.Append(p)
}

func (ctx *Context) setHeader(key, value string) {
	ctx.respHdr[key] = value
}
