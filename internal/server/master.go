package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/pkg/config"
)

const acceptRetryDelay = 100 * time.Millisecond

var (
	// ErrAlreadyStarted is returned by Start on a running master.
	ErrAlreadyStarted = errors.New("master already started")
	// ErrNotRunning is returned by Reload before Start or after Stop.
	ErrNotRunning = errors.New("master not running")
)

// Recorder receives connection and request events.
type Recorder interface {
	ConnectionAccepted(protocol string)
	ConnectionRejected(listener string)
	RequestHandled(protocol, outcome string, d time.Duration)
	WorkersBusy(n int)
}

type nopRecorder struct{}

func (nopRecorder) ConnectionAccepted(string) {}
func (nopRecorder) ConnectionRejected(string) {}
func (nopRecorder) RequestHandled(string, string, time.Duration) {}
func (nopRecorder) WorkersBusy(int) {}

// Socket is an accepted connection waiting for or held by a worker.
type Socket struct {
	ID       string
	Proto    Proto
	Listener string

	conn     net.Conn
	accepted time.Time
}

// Conn returns the underlying connection.
func (s *Socket) Conn() net.Conn { return s.conn }

// Accepted returns when the connection was accepted.
func (s *Socket) Accepted() time.Time { return s.accepted }

// Close closes the connection.
func (s *Socket) Close() error { return s.conn.Close() }

// ListenerStatus describes an open listener.
type ListenerStatus struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Network  string `json:"network"`
	Address  string `json:"address"`
	Bound    string `json:"bound"`
	Source   string `json:"source"`
}

// Status is a snapshot of the master.
type Status struct {
	Running   bool             `json:"running"`
	Workers   int              `json:"workers"`
	Busy      int              `json:"busy"`
	Queued    int              `json:"queued"`
	Listeners []ListenerStatus `json:"listeners"`
}

type listenerSpec struct {
	name    string
	proto   Proto
	network string
	address string
	source  string
}

func (s listenerSpec) key() string {
	return s.proto.String() + "+" + s.network + "://" + s.address
}

type listener struct {
	listenerSpec
	ln net.Listener
}

// Option configures a Master.
type Option func(*Master)

// WithRecorder reports connection and request events to r.
func WithRecorder(r Recorder) Option {
	return func(m *Master) { m.recorder = r }
}

// Master accepts connections and hands them to a fixed pool of workers.
type Master struct {
	store    storage.Store
	factory  Factory
	logger   *zap.Logger
	recorder Recorder

	workers     int
	bufSize     int
	errBufSize  int
	readTimeout atomic.Int64

	queue    chan *Socket
	done     chan struct{}
	stopping atomic.Bool
	limiter  *rate.Limiter
	busy     atomic.Int32

	mu         sync.Mutex
	started    bool
	listeners  map[string]*listener
	configured []config.ListenerConfig

	acceptWG sync.WaitGroup
	workerWG sync.WaitGroup
}

// NewMaster creates a master. Listeners recorded in store are opened next to
// the configured ones; store may be nil.
func NewMaster(cfg *config.ServerConfig, factory Factory, store storage.Store, logger *zap.Logger, opts ...Option) *Master {
	m := &Master{
		store:      store,
		factory:    factory,
		logger:     logger.Named("server"),
		recorder:   nopRecorder{},
		workers:    cfg.Workers,
		bufSize:    cfg.RequestBufferSize,
		errBufSize: cfg.ErrorBufferSize,
		queue:      make(chan *Socket, cfg.QueueSize),
		done:       make(chan struct{}),
		limiter:    rate.NewLimiter(acceptLimit(cfg.AcceptRate), max(cfg.AcceptBurst, 1)),
		listeners:  make(map[string]*listener),
		configured: cfg.Listeners,
	}
	m.readTimeout.Store(int64(time.Duration(cfg.ReadTimeout) * time.Second))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func acceptLimit(r float64) rate.Limit {
	if r <= 0 {
		return rate.Inf
	}
	return rate.Limit(r)
}

// Start opens every listener and starts the workers.
func (m *Master) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.stopping.Load() {
		return ErrAlreadyStarted
	}

	for _, spec := range m.desiredListeners(ctx) {
		if err := m.openListener(spec); err != nil {
			m.closeListeners()
			return err
		}
	}
	if len(m.listeners) == 0 {
		m.logger.Warn("No listeners configured")
	}

	for i := 0; i < m.workers; i++ {
		m.workerWG.Add(1)
		go m.worker(ctx, i)
	}
	m.started = true

	m.logger.Info("Server started",
		zap.Int("workers", m.workers),
		zap.Int("listeners", len(m.listeners)))
	return nil
}

// Stop sets the stop flag, closes the listeners and waits for the workers
// until ctx is done. Requests already being served run to completion.
func (m *Master) Stop(ctx context.Context) error {
	if !m.stopping.CompareAndSwap(false, true) {
		return nil
	}
	close(m.done)

	m.mu.Lock()
	m.closeListeners()
	m.mu.Unlock()
	m.acceptWG.Wait()

	finished := make(chan struct{})
	go func() {
		m.workerWG.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for workers: %w", ctx.Err())
	}

	dropped := 0
	for drained := false; !drained; {
		select {
		case s := <-m.queue:
			_ = s.Close()
			dropped++
		default:
			drained = true
		}
	}
	if dropped > 0 {
		m.logger.Info("Closed queued connections", zap.Int("count", dropped))
	}

	m.logger.Info("Server stopped")
	return err
}

// Reload applies the listener and limit settings of cfg, which may be nil,
// and reconciles the open listeners against the configuration and the
// socket table in NVRAM. Workers are not restarted.
func (m *Master) Reload(ctx context.Context, cfg *config.ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || m.stopping.Load() {
		return ErrNotRunning
	}

	if cfg != nil {
		m.configured = cfg.Listeners
		m.limiter.SetLimit(acceptLimit(cfg.AcceptRate))
		m.limiter.SetBurst(max(cfg.AcceptBurst, 1))
		m.readTimeout.Store(int64(time.Duration(cfg.ReadTimeout) * time.Second))
	}

	want := make(map[string]listenerSpec)
	for _, spec := range m.desiredListeners(ctx) {
		want[spec.key()] = spec
	}

	for key, l := range m.listeners {
		if _, ok := want[key]; ok {
			continue
		}
		_ = l.ln.Close()
		delete(m.listeners, key)
		m.logger.Info("Closed listener",
			zap.String("name", l.name),
			zap.String("address", l.address))
	}

	var errs []error
	for key, spec := range want {
		if _, ok := m.listeners[key]; ok {
			continue
		}
		if err := m.openListener(spec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetSocket blocks until an accepted socket is queued. It reports false once
// the master is stopping or ctx is done.
func (m *Master) GetSocket(ctx context.Context) (*Socket, bool) {
	select {
	case s := <-m.queue:
		return s, true
	case <-m.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Status returns a snapshot of the master.
func (m *Master) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Running: m.started && !m.stopping.Load(),
		Workers: m.workers,
		Busy:    int(m.busy.Load()),
		Queued:  len(m.queue),
	}
	for _, l := range m.listeners {
		st.Listeners = append(st.Listeners, ListenerStatus{
			Name:     l.name,
			Protocol: l.proto.String(),
			Network:  l.network,
			Address:  l.address,
			Bound:    l.ln.Addr().String(),
			Source:   l.source,
		})
	}
	sort.Slice(st.Listeners, func(i, j int) bool {
		return st.Listeners[i].Name < st.Listeners[j].Name
	})
	return st
}

// desiredListeners merges the configured listeners with the NVRAM socket
// table. A socket table that cannot be read is logged and skipped.
func (m *Master) desiredListeners(ctx context.Context) []listenerSpec {
	var specs []listenerSpec
	for _, l := range m.configured {
		specs = append(specs, listenerSpec{
			name:    l.Name,
			proto:   ParseProto(l.Protocol),
			network: l.Network,
			address: l.Address,
			source:  "config",
		})
	}

	if m.store == nil {
		return specs
	}
	sockets, err := storage.Sockets(ctx, m.store)
	if err != nil {
		m.logger.Warn("Failed to read socket table", zap.Error(err))
		return specs
	}
	for _, s := range sockets {
		specs = append(specs, listenerSpec{
			name:    "nvram:" + s.Protocol + "@" + s.Address,
			proto:   ParseProto(s.Protocol),
			network: s.Network(),
			address: s.Address,
			source:  "nvram",
		})
	}
	return specs
}

// openListener must be called with m.mu held.
func (m *Master) openListener(spec listenerSpec) error {
	if _, ok := m.listeners[spec.key()]; ok {
		m.logger.Warn("Duplicate listener ignored",
			zap.String("name", spec.name),
			zap.String("address", spec.address))
		return nil
	}
	if spec.network == "unix" {
		_ = os.Remove(spec.address)
	}

	ln, err := net.Listen(spec.network, spec.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s %s: %w", spec.network, spec.address, err)
	}

	l := &listener{listenerSpec: spec, ln: ln}
	m.listeners[spec.key()] = l
	m.acceptWG.Add(1)
	go m.acceptLoop(l)

	m.logger.Info("Listening",
		zap.String("name", spec.name),
		zap.String("protocol", spec.proto.String()),
		zap.String("address", ln.Addr().String()))
	return nil
}

// closeListeners must be called with m.mu held.
func (m *Master) closeListeners() {
	for key, l := range m.listeners {
		_ = l.ln.Close()
		delete(m.listeners, key)
	}
}

func (m *Master) acceptLoop(l *listener) {
	defer m.acceptWG.Done()
	logger := m.logger.With(zap.String("listener", l.name))

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("Accept failed", zap.Error(err))
			select {
			case <-time.After(acceptRetryDelay):
				continue
			case <-m.done:
				return
			}
		}

		if !m.limiter.Allow() {
			m.recorder.ConnectionRejected(l.name)
			logger.Debug("Connection rejected by accept limit",
				zap.String("remote", conn.RemoteAddr().String()))
			_ = conn.Close()
			continue
		}

		s := &Socket{
			ID:       uuid.NewString(),
			Proto:    l.proto,
			Listener: l.name,
			conn:     conn,
			accepted: time.Now(),
		}
		m.recorder.ConnectionAccepted(l.proto.String())

		select {
		case m.queue <- s:
		case <-m.done:
			_ = s.Close()
			return
		}
	}
}
