package weft

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/weftsrv/weft/cmn/cos"
	"github.com/weftsrv/weft/cmn/nlog"
)

// reactor is one of N independent (address, port)-sharing listeners.
// Each reactor owns its own net.Listener and accepts into its own
// connection goroutines; there is no cross-reactor handoff. SO_REUSEPORT
// lets the kernel load-balance accepted connections across reactors
// instead of the engine doing it in user space.
//
// The teacher and the original spec describe a hand-rolled readiness
// poller (epoll) driving a stackful-coroutine scheduler per thread. Per
// the redesign note in spec.md section 9 ("the only essential contract
// is the handler may suspend exactly on body-read"), that machinery is
// replaced end to end by the Go runtime's own netpoller: a connection's
// goroutine blocking in net.Conn.Read or Write already parks without
// consuming an OS thread, which is exactly what a reactor's readiness
// dispatch exists to provide. Reimplementing epoll by hand over
// golang.org/x/sys/unix on top of that would duplicate the runtime's
// own mechanism rather than use it; so reactor.go keeps the concepts the
// spec actually cares about (N independent reactors, kernel-level
// SO_REUSEPORT balancing, per-connection pipeline ordering, cooperative
// suspension on body-read) and leaves per-byte readiness multiplexing to
// net.Conn.
type reactor struct {
	id  int
	eng *Engine
	ln  net.Listener
}

func newReactor(id int, eng *Engine, addr string, port, backlog int) (*reactor, error) {
	ln, err := listenReusePort(addr, port, backlog)
	if err != nil {
		return nil, cos.NewConfigError("reactor %d: listen %s:%d: %v", id, addr, port, err)
	}
	if eng.tlsConfig != nil {
		// crypto/tls stands in for the opaque TLS session spec.md section 1
		// names as an out-of-scope external collaborator; no pack example
		// exposes that exact incremental-handshake surface, so the standard
		// library is the only reasonable source for it (see DESIGN.md).
		// tls.NewListener hands every accepted connection back as a
		// *tls.Conn, whose blocking Read/Write already perform renegotiation
		// against the underlying socket without the reactor's involvement.
		ln = tls.NewListener(ln, eng.tlsConfig)
	}
	return &reactor{id: id, eng: eng, ln: ln}, nil
}

func (r *reactor) run(ctx context.Context) error {
	nlog.Infof("reactor %d: listening on %s", r.id, r.ln.Addr())
	go func() {
		<-ctx.Done()
		r.ln.Close()
	}()
	for {
		nc, err := r.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if cos.IsRetriableConnErr(err) {
				continue
			}
			return cos.Wrapf(err, "reactor %d: accept", r.id)
		}
		c := newConn(r.eng, nc)
		nlog.Infof("reactor %d: accepted %s [%s]", r.id, nc.RemoteAddr(), c.id)
		go c.serve()
	}
}

func (r *reactor) closeListener() { r.ln.Close() }

// listenReusePort builds a raw IPv4 TCP listening socket with
// SO_REUSEPORT set before bind, so every reactor can bind the identical
// address:port and let the kernel distribute accepted connections, and
// with an explicit backlog (net.Listen alone gives no portable way to
// choose one).
func listenReusePort(addr string, port, backlog int) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("SO_REUSEPORT: %w", err)
	}

	var ip [4]byte
	if addr != "" && addr != "0.0.0.0" {
		parsed := net.ParseIP(addr)
		if parsed == nil {
			unix.Close(fd)
			return nil, fmt.Errorf("invalid listen address %q (IPv4 only)", addr)
		}
		v4 := parsed.To4()
		if v4 == nil {
			unix.Close(fd)
			return nil, fmt.Errorf("listen address %q is not IPv4", addr)
		}
		copy(ip[:], v4)
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("reuseport-%d", port))
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("FileListener: %w", err)
	}
	return ln, nil
}
