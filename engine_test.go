package weft

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/weftsrv/weft/schema"
)

// startTestEngine boots an Engine on loopback with an OS-assigned port and
// returns it once bound, along with a teardown func.
func startTestEngine(t *testing.T, register func(*Engine)) (*Engine, func()) {
	t.Helper()
	eng := NewEngine(1)
	register(eng)

	done := make(chan error, 1)
	go func() { done <- eng.Listen("127.0.0.1", 0, 16) }()

	deadline := time.Now().Add(2 * time.Second)
	for eng.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("engine did not bind within deadline")
		}
		time.Sleep(time.Millisecond)
	}

	teardown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		eng.Shutdown(ctx)
		<-done
		eng.Free()
	}
	return eng, teardown
}

// TestSimpleGet covers spec.md section 8 scenario 1: a resolved route with
// a defaulted string argument.
func TestSimpleGet(t *testing.T) {
	eng, teardown := startTestEngine(t, func(e *Engine) {
		descs := []schema.Desc{{Index: 0, Name: "name", Kind: schema.KindString, Default: "world"}}
		if err := e.AddRoute("/hello", descs, func(r *Request) int {
			r.WriteString("Hello, " + r.String(0) + "!")
			return 200
		}, nil); err != nil {
			t.Fatalf("AddRoute: %v", err)
		}
	})
	defer teardown()

	conn, err := net.Dial("tcp", eng.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if _, err := conn.Write([]byte("GET /hello?name=ada HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := bufio.NewReader(conn)
	resp := mustReadResponse(t, r)
	if resp.status != 200 || resp.body != "Hello, ada!" {
		t.Fatalf("got status=%d body=%q", resp.status, resp.body)
	}
}

// TestMissingRoute covers scenario 2: an unregistered path falls through
// to the general error handler.
func TestMissingRoute(t *testing.T) {
	eng, teardown := startTestEngine(t, func(e *Engine) {})
	defer teardown()

	conn, err := net.Dial("tcp", eng.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	conn.Write([]byte("GET /nope HTTP/1.1\r\nHost: x\r\n\r\n"))
	r := bufio.NewReader(conn)
	resp := mustReadResponse(t, r)
	if resp.status != 500 || resp.body != "" {
		t.Fatalf("got status=%d body=%q", resp.status, resp.body)
	}
}

// TestBodyRead covers scenario 4: a handler that suspends on ReadBody and
// echoes the request body once it arrives.
func TestBodyRead(t *testing.T) {
	eng, teardown := startTestEngine(t, func(e *Engine) {
		if err := e.AddRoute("/upload", nil, func(r *Request) int {
			buf := make([]byte, 5)
			n, err := r.ReadBody(buf)
			if n < 0 || err != nil {
				return 0
			}
			r.WriteString(string(buf[:n]))
			return 200
		}, nil); err != nil {
			t.Fatalf("AddRoute: %v", err)
		}
	})
	defer teardown()

	conn, err := net.Dial("tcp", eng.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	conn.Write([]byte("POST /upload HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"))
	r := bufio.NewReader(conn)
	resp := mustReadResponse(t, r)
	if resp.status != 200 || resp.body != "hello" {
		t.Fatalf("got status=%d body=%q", resp.status, resp.body)
	}
}

// TestConnectionDropMidBodyRead covers scenario 5: the client sends a
// Content-Length header promising more body than it delivers, then closes
// the connection. The handler's ReadBody must observe the close (-1,
// errConnectionClosed) rather than hang, and no response is written.
func TestConnectionDropMidBodyRead(t *testing.T) {
	handlerReturned := make(chan struct{})
	eng, teardown := startTestEngine(t, func(e *Engine) {
		if err := e.AddRoute("/upload", nil, func(r *Request) int {
			defer close(handlerReturned)
			buf := make([]byte, 100)
			n, err := r.ReadBody(buf)
			if n < 0 && err != nil {
				return 0
			}
			return 200
		}, nil); err != nil {
			t.Fatalf("AddRoute: %v", err)
		}
	})
	defer teardown()

	conn, err := net.Dial("tcp", eng.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Write([]byte("POST /upload HTTP/1.1\r\nHost: x\r\nContent-Length: 100\r\n\r\nhelo"))
	conn.Close()

	select {
	case <-handlerReturned:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never unblocked after connection close")
	}
}

// TestOversizeQuery covers scenario 6: a query string over the cap closes
// the connection without a response, and the engine keeps serving other
// connections.
func TestOversizeQuery(t *testing.T) {
	eng, teardown := startTestEngine(t, func(e *Engine) {
		e.QuerySizeCap = 64
		descs := []schema.Desc{{Index: 0, Name: "v", Kind: schema.KindString, Default: ""}}
		e.AddRoute("/echo", descs, func(r *Request) int {
			r.WriteString(r.String(0))
			return 200
		}, nil)
	})
	defer teardown()

	bad, err := net.Dial("tcp", eng.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer bad.Close()
	bad.SetDeadline(time.Now().Add(2 * time.Second))

	oversized := make([]byte, 200)
	for i := range oversized {
		oversized[i] = 'a'
	}
	bad.Write([]byte("GET /echo?v="))
	bad.Write(oversized)
	bad.Write([]byte(" HTTP/1.1\r\nHost: x\r\n\r\n"))

	buf := make([]byte, 16)
	n, err := bad.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("expected connection close without a response, got n=%d err=%v", n, err)
	}

	good, err := net.Dial("tcp", eng.Addr().String())
	if err != nil {
		t.Fatalf("dial after oversize query: %v", err)
	}
	defer good.Close()
	good.SetDeadline(time.Now().Add(2 * time.Second))
	good.Write([]byte("GET /echo?v=ok HTTP/1.1\r\nHost: x\r\n\r\n"))
	r := bufio.NewReader(good)
	resp := mustReadResponse(t, r)
	if resp.status != 200 || resp.body != "ok" {
		t.Fatalf("engine stopped serving after oversize query: status=%d body=%q", resp.status, resp.body)
	}
}

type testResponse struct {
	status int
	body   string
}

func mustReadResponse(t *testing.T, r *bufio.Reader) testResponse {
	t.Helper()
	statusLine, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	fields := strings.Fields(statusLine)
	if len(fields) < 2 {
		t.Fatalf("malformed status line %q", statusLine)
	}
	status, err := strconv.Atoi(fields[1])
	if err != nil {
		t.Fatalf("parse status code %q: %v", fields[1], err)
	}

	contentLength := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read header line: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if k, v, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(k), "content-length") {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				contentLength = n
			}
		}
	}
	body := make([]byte, contentLength)
	total := 0
	for total < contentLength {
		n, err := r.Read(body[total:])
		total += n
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
	}
	return testResponse{status: status, body: string(body)}
}
