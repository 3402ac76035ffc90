package weft

import (
	"net"
	"strconv"
	"sync"

	"github.com/weftsrv/weft/buffer"
	"github.com/weftsrv/weft/cmn/cos"
	"github.com/weftsrv/weft/cmn/nlog"
	"github.com/weftsrv/weft/httpparse"
	"github.com/weftsrv/weft/schema"
	"github.com/weftsrv/weft/sched"
)

// conn is one accepted connection: its incremental parser and its FIFO
// pipeline queue of request contexts (spec.md section 3, C5). The
// parser always targets the back of the queue; at most one handler task
// runs against the front at a time (spec.md section 4.5).
type conn struct {
	eng    *Engine
	nc     net.Conn
	id     string // trace ID correlating this connection's log lines
	parser *httpparse.Parser

	back *Context // current parse target; nil between messages

	qmu   sync.Mutex
	queue []*Context
}

func newConn(eng *Engine, nc net.Conn) *conn {
	c := &conn{eng: eng, nc: nc, id: cos.GenUUID()}
	c.parser = httpparse.New(httpparse.Callbacks{
		OnMessageBegin:    c.onMessageBegin,
		OnURL:             c.onURL,
		OnHeaderField:     c.onHeaderField,
		OnHeaderValue:     c.onHeaderValue,
		OnHeadersComplete: c.onHeadersComplete,
		OnBody:            c.onBody,
		OnMessageComplete: c.onMessageComplete,
	})
	return c
}

func (c *conn) onMessageBegin() {
	ctx := newContext(c)
	c.back = ctx
	c.qmu.Lock()
	c.queue = append(c.queue, ctx)
	c.qmu.Unlock()
}

func (c *conn) onURL(data []byte) { c.back.onURL(data) }

func (c *conn) onHeaderField(data []byte) { c.back.onHeaderField(data) }

func (c *conn) onHeaderValue(data []byte) { c.back.onHeaderValue(data) }

func (c *conn) onHeadersComplete() error {
	ctx := c.back
	if err := ctx.onHeadersComplete(c.parser.KeepAlive); err != nil {
		return err
	}
	c.dispatchFront()
	return nil
}

func (c *conn) onBody(data []byte) { c.back.onBody(data) }

func (c *conn) onMessageComplete() {
	c.back.onMessageComplete()
	c.back = nil
}

func (c *conn) front() *Context {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	return c.queue[0]
}

func (c *conn) popFront(ctx *Context) {
	c.qmu.Lock()
	if len(c.queue) > 0 && c.queue[0] == ctx {
		c.queue = c.queue[1:]
	}
	c.qmu.Unlock()
	ctx.free()
}

// serve is the connection's read loop: it owns reading from the socket
// and feeding the parser. Handler tasks run on their own goroutines
// (spawned by dispatchFront) and write responses directly, since the
// pipeline invariant guarantees only one handler task is ever runnable
// per connection at a time.
func (c *conn) serve() {
	c.eng.stats.connsActive.Inc()
	defer c.eng.stats.connsActive.Dec()
	defer c.teardown()

	buf := make([]byte, buffer.DefaultSize)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.eng.stats.bytesInTotal.Add(float64(n))
			if perr := c.feed(buf[:n]); perr != nil {
				nlog.Infof("connection %s [%s]: %v", c.nc.RemoteAddr(), c.id, perr)
				c.eng.stats.protocolErrors.Inc()
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *conn) feed(data []byte) error {
	for len(data) > 0 {
		n, err := c.parser.Execute(data)
		if err != nil {
			return err
		}
		if n == 0 {
			// The parser consumes nothing once a message has completed;
			// reset it so the next pipelined request gets parsed.
			c.parser.Reset()
			continue
		}
		data = data[n:]
	}
	return nil
}

func (c *conn) teardown() {
	c.qmu.Lock()
	pending := c.queue
	c.queue = nil
	c.qmu.Unlock()
	for _, ctx := range pending {
		ctx.abort()
	}
	c.nc.Close()
}

// dispatchFront spawns the front context's handler task, unless one is
// already running or the queue is empty (spec.md section 4.5). Checking
// and setting ctx.task happens under qmu, the same lock that guards
// popping the queue, so a finishing handler task and an arriving
// headers-complete event can never both spawn a task for the same
// context.
func (c *conn) dispatchFront() {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.queue) == 0 {
		return
	}
	ctx := c.queue[0]
	if ctx.task != nil {
		return
	}
	ctx.task = sched.Spawn(func() { c.runHandler(ctx) })
}

// runHandler is a handler task's entry point (spec.md section 4.6).
func (c *conn) runHandler(ctx *Context) {
	req := &Request{ctx: ctx}

	var status int
	switch {
	case ctx.parseError != nil:
		status = c.runErrorHandler(req, ctx.parseError)
	default:
		status = ctx.route.Handler(req)
	}

	ctx.mu.Lock()
	closed := ctx.connectionClosed
	ctx.mu.Unlock()

	if status <= 0 || closed {
		c.popFront(ctx)
		c.closeConn()
		return
	}
	c.eng.stats.requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()

	if err := c.writeResponse(ctx, status); err != nil {
		nlog.Infof("connection %s [%s]: write response: %v", c.nc.RemoteAddr(), c.id, err)
		c.popFront(ctx)
		c.closeConn()
		return
	}

	// A response written by an error callback ends the connection.
	keep := ctx.shouldKeepAlive && ctx.parseError == nil
	c.popFront(ctx)
	if !keep {
		c.closeConn()
		return
	}
	c.dispatchFront()
}

func (c *conn) runErrorHandler(req *Request, err error) int {
	ctx := req.ctx
	var h ErrorHandlerFunc
	if _, ok := err.(*schema.ArgError); ok && ctx.route != nil {
		if pathHandler, found := c.eng.errorHandlerFor(ctx.route.Path); found {
			h = pathHandler
		}
	}
	if h == nil {
		h = c.eng.generalErrorHandler()
	}
	return h(req, err)
}

func (c *conn) closeConn() { c.nc.Close() }

var statusText = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	400: "Bad Request",
	404: "Not Found",
	500: "Internal Server Error",
}

func reasonPhrase(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return "Status"
}

// writeResponse serializes status, headers, and the buffered body
// (spec.md section 4.6, "Response serialization") and writes it to the
// socket. Connection is always advertised as keep-alive regardless of
// ctx.shouldKeepAlive, per the Open Question decision recorded in
// SPEC_FULL.md section 5.
func (c *conn) writeResponse(ctx *Context, status int) error {
	hdr := buffer.Get()
	defer hdr.Free()

	bodyLen := 0
	if ctx.respBody != nil {
		bodyLen = ctx.respBody.Len()
	}

	hdr.AppendFormat("HTTP/1.1 %d %s\r\n", status, reasonPhrase(status))
	hdr.AppendFormat("Content-Length: %d\r\n", bodyLen)
	hdr.AppendString("Connection: keep-alive\r\n")
	for k, v := range ctx.respHdr {
		if isReservedResponseHeader(k) {
			continue
		}
		hdr.AppendFormat("%s: %s\r\n", k, v)
	}
	hdr.AppendString("\r\n")

	n, err := hdr.Flush(c.nc)
	if err != nil {
		return err
	}
	written := n
	if bodyLen > 0 {
		n, err = ctx.respBody.Flush(c.nc)
		if err != nil {
			return err
		}
		written += n
	}
	c.eng.stats.bytesOutTotal.Add(float64(written))
	return nil
}

func isReservedResponseHeader(k string) bool {
	switch normalizeHeaderKey(k) {
	case "content-length", "connection":
		return true
	}
	return false
}

func normalizeHeaderKey(k string) string {
	b := make([]byte, len(k))
	for i := 0; i < len(k); i++ {
		c := k[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}
