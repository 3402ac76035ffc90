package weft

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/weftsrv/weft/cmn/cos"
	"github.com/weftsrv/weft/cmn/nlog"
	"github.com/weftsrv/weft/schema"
	"github.com/weftsrv/weft/sys"
)

// Engine is a process-wide value created once. It owns the route table,
// the module list, the error-handler table, and (once Listen starts) the
// reactors, per spec.md section 3.
type Engine struct {
	NumReactors int
	QuerySizeCap int

	routes  *routeTable
	modules []*Module

	errMu         sync.Mutex
	errorHandlers map[string]ErrorHandlerFunc
	generalError  ErrorHandlerFunc

	tlsConfig *tls.Config

	listening  atomic.Bool
	reactorsMu sync.Mutex
	reactors   []*reactor
	cancel     context.CancelFunc
	group      *errgroup.Group

	stats *Stats
}

// NewEngine allocates an Engine with the given worker-thread count. A
// count <= 0 defaults to the container-aware CPU count (sys.NumCPU).
func NewEngine(numReactors int) *Engine {
	if numReactors <= 0 {
		numReactors = sys.NumCPU()
		if numReactors < 1 {
			numReactors = 1
		}
	}
	return &Engine{
		NumReactors:   numReactors,
		QuerySizeCap:  DefaultQuerySizeCap,
		routes:        newRouteTable(),
		errorHandlers: make(map[string]ErrorHandlerFunc),
		generalError:  defaultGeneralErrorHandler,
		stats:         newStats(),
	}
}

// NewEngineFromConfig builds an Engine from a loaded Config, applying
// its worker count, query-size cap, and (if present) TLS credentials,
// and mirrors the hot fields into cmn.Rom.
func NewEngineFromConfig(cfg *Config) (*Engine, error) {
	e := NewEngine(cfg.NumReactors)
	if cfg.QuerySizeCap > 0 {
		e.QuerySizeCap = cfg.QuerySizeCap
	}
	if cfg.TLSCertFile != "" {
		if err := e.LoadTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != nil {
			return nil, err
		}
	}
	cfg.apply()
	return e, nil
}

// AddRoute registers path with a handler and its argument schema.
// Rejected if path is empty, doesn't start with '/', or h is nil.
func (e *Engine) AddRoute(path string, descs []schema.Desc, h HandlerFunc, userData any) error {
	if e.listening.Load() {
		return cos.NewProtocolError("cannot add route %q after Listen has started", path)
	}
	sc, err := schema.Compile(path, descs)
	if err != nil {
		return err
	}
	return e.routes.add(path, sc, h, userData)
}

// SetErrorHandler registers a path-specific error callback, invoked when
// that path resolves but its query fails to parse (ArgError).
func (e *Engine) SetErrorHandler(path string, h ErrorHandlerFunc) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	e.errorHandlers[path] = h
}

// SetGeneralErrorHandler overrides the default 500-and-close error
// callback invoked for a missing route, or any error without a
// path-specific handler.
func (e *Engine) SetGeneralErrorHandler(h ErrorHandlerFunc) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	e.generalError = h
}

func (e *Engine) errorHandlerFor(path string) (ErrorHandlerFunc, bool) {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	h, ok := e.errorHandlers[path]
	return h, ok
}

func (e *Engine) generalErrorHandler() ErrorHandlerFunc {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.generalError
}

func defaultGeneralErrorHandler(r *Request, err error) int {
	nlog.Warningf("request error: %v", err)
	return 500
}

// LoadTLS loads a PEM certificate chain and private key, enabling TLS
// for subsequent Listen calls.
func (e *Engine) LoadTLS(certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return cos.NewConfigError("load TLS credentials: %v", err)
	}
	e.tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	return nil
}

// Use registers a module, invoked in registration order at each
// lifecycle point.
func (e *Engine) Use(m *Module) {
	e.modules = append(e.modules, m)
}

// Listen binds addr:port with backlog across NumReactors SO_REUSEPORT
// listeners and blocks until every reactor exits (normally only via
// Shutdown or a fatal accept error).
func (e *Engine) Listen(addr string, port, backlog int) error {
	e.listening.Store(true)

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	group, gctx := errgroup.WithContext(runCtx)
	e.group = group

	for i := 0; i < e.NumReactors; i++ {
		r, err := newReactor(i, e, addr, port, backlog)
		if err != nil {
			cancel()
			return err
		}
		e.reactorsMu.Lock()
		e.reactors = append(e.reactors, r)
		e.reactorsMu.Unlock()
	}

	for _, m := range e.modules {
		if m.OnLoopInit == nil {
			continue
		}
		for i := range e.reactors {
			if err := m.OnLoopInit(i); err != nil {
				cancel()
				return cos.Wrapf(err, "module %q: loop %d init", m.Name, i)
			}
		}
	}

	for _, r := range e.reactors {
		r := r
		group.Go(func() error { return r.run(gctx) })
	}
	err := group.Wait()

	for _, m := range e.modules {
		for i := range e.reactors {
			if m.OnLoopTeardown != nil {
				m.OnLoopTeardown(i)
			}
		}
		if m.OnEngineTeardown != nil {
			m.OnEngineTeardown()
		}
	}
	return err
}

// Shutdown closes every reactor's listener and cancels the reactors, then
// waits until they have returned or ctx is done. Connections already
// accepted are neither closed nor waited for: each keeps being served on
// its own goroutine until the client closes it or a read fails.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	for _, r := range e.reactors {
		r.closeListener()
	}
	e.cancel()
	done := make(chan struct{})
	go func() {
		if e.group != nil {
			e.group.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the first reactor's bound address, useful when Listen was
// called with port 0 and the caller needs to learn the chosen port. Nil
// until at least one reactor has bound its listener.
func (e *Engine) Addr() net.Addr {
	e.reactorsMu.Lock()
	defer e.reactorsMu.Unlock()
	if len(e.reactors) == 0 {
		return nil
	}
	return e.reactors[0].ln.Addr()
}

// Registry returns this Engine's private Prometheus registry, for a
// module (such as cmd/weftd's metricsModule) to mount at /metrics.
func (e *Engine) Registry() *prometheus.Registry {
	return e.stats.Registry
}

// Free releases engine-wide resources. Call after Listen returns.
func (e *Engine) Free() {
	e.stats.unregister()
}
