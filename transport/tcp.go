package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/ramis/protocol"
	"github.com/luma/ramis/storage"
)

var ErrConnClosed = errors.New("connection closed")

// TCP is a small Ramis compatible server. It exists to develop and test
// clients against, not to store anything that matters.
type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr string

	numListeners int
	listeners    []*TCPListener
	reuseport    bool
	maxRequest   int

	store  storage.Store
	pubsub *PubSub

	log   *zap.Logger
	trace bool
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = 1
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	store := options.Store
	if store == nil {
		store = storage.NewInmemoryStore()
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		reuseport:    options.Reuseport,
		maxRequest:   options.MaxRequestSize,
		trace:        options.Trace,
		store:        store,
		pubsub:       NewPubSub(),
		log:          log,
	}
}

// Start binds every listener and returns once they are accepting
// connections.
func (w *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners", zap.Int("count", w.numListeners))

	for i := 0; i < w.numListeners; i++ {
		if err := w.startListener(ctx, w.addr); err != nil {
			cancel()
			return multierr.Append(err, w.closeListeners())
		}
	}

	// Publish key changes to anyone subscribed to their keyspace channel
	updates := w.store.ListenToUpdates()
	w.stopWaiter.Add(1)
	go func() {
		defer w.stopWaiter.Done()

		for {
			select {
			case <-ctx.Done():
				return

			case update, ok := <-updates:
				if !ok {
					return
				}

				event := "set"
				if update.Value == nil {
					event = "del"
				}

				if _, err := w.pubsub.Publish(KeyspaceChannel(update.Key), []byte(event)); err != nil {
					w.log.Warn("Failed to publish keyspace event", zap.Error(err))
				}
			}
		}
	}()

	return nil
}

func (t *TCP) Store() storage.Store {
	return t.store
}

// Addr is the address the first listener is bound to.
func (t *TCP) Addr() string {
	if len(t.listeners) == 0 {
		return t.addr
	}
	return t.listeners[0].Addr()
}

func (w *TCP) startListener(ctx context.Context, addr string) error {
	listener := NewTCPListener(
		ctx,
		w,
		w.log.Named("listener").With(zap.Int("listener", len(w.listeners))),
	)

	if err := listener.Bind(addr, w.reuseport); err != nil {
		return err
	}

	w.listeners = append(w.listeners, listener)

	w.stopWaiter.Add(1)
	go func() {
		defer w.stopWaiter.Done()

		if err := listener.Listen(); err != nil {
			w.log.Error("Failed to listen", zap.Error(err))
		}
	}()

	return nil
}

// Close immediately closes all active listeners and connections.
func (w *TCP) Close() error {
	w.log.Info("Stopping TCP server")
	if w.cancel != nil {
		w.cancel()
	}

	err := w.closeListeners()

	w.stopWaiter.Wait()
	w.log.Info("TCP server stopped")

	return err
}

func (w *TCP) closeListeners() (err error) {
	for _, listener := range w.listeners {
		err = multierr.Append(err, listener.Close())
	}
	return err
}

type TCPListener struct {
	ctx context.Context
	srv *TCP

	listener net.Listener
	log      *zap.Logger

	mu          sync.Mutex
	activeConns map[*TCPConn]struct{}
	connWaiter  sync.WaitGroup
}

func NewTCPListener(ctx context.Context, srv *TCP, log *zap.Logger) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		srv:         srv,
		activeConns: make(map[*TCPConn]struct{}),
		log:         log,
	}
}

func (t *TCPListener) Bind(addr string, reuse bool) (err error) {
	if reuse {
		t.listener, err = reuseport.Listen("tcp", addr)
	} else {
		t.listener, err = net.Listen("tcp", addr)
	}

	return err
}

func (t *TCPListener) Addr() string {
	return t.listener.Addr().String()
}

// Close stops accepting and closes every connection.
func (t *TCPListener) Close() error {
	err := t.listener.Close()
	if isClosedErr(err) {
		err = nil
	}

	t.mu.Lock()
	conns := make([]*TCPConn, 0, len(t.activeConns))
	for conn := range t.activeConns {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}

	return err
}

func (t *TCPListener) Listen() error {
	defer t.connWaiter.Wait()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if isClosedErr(err) {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				t.log.Info("Stopped accepting new connections")
				return nil
			}

			return err
		}

		tcpConn := NewTCPConn(t.ctx, conn, t.srv, t.log.Named("conn"))
		t.addConn(tcpConn)

		t.connWaiter.Add(1)
		go func() {
			defer t.connWaiter.Done()
			defer t.removeConn(tcpConn)

			tcpConn.Start()
		}()
	}
}

func (t *TCPListener) addConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeConns[conn] = struct{}{}
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}

func isClosedErr(err error) bool {
	return err != nil && (errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection"))
}

type TCPConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup
	closeOnce  sync.Once

	conn net.Conn
	srv  *TCP

	writeQueue chan []byte

	subMu         sync.Mutex
	subscriptions map[string]struct{}

	log *zap.Logger
}

func NewTCPConn(parentCtx context.Context, conn net.Conn, srv *TCP, log *zap.Logger) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &TCPConn{
		ctx:           ctx,
		cancel:        cancel,
		conn:          conn,
		srv:           srv,
		writeQueue:    make(chan []byte, 127),
		subscriptions: make(map[string]struct{}),
		log:           log.With(zap.String("remote", conn.RemoteAddr().String())),
	}
}

// Close stops both loops and closes the connection.
func (t *TCPConn) Close() (err error) {
	t.closeOnce.Do(func() {
		t.cancel()

		// unblocks a read loop waiting on the socket
		err = t.conn.Close()
		if isClosedErr(err) {
			err = nil
		}

		t.srv.pubsub.UnsubscribeAll(t)
	})

	return err
}

// Start runs the read and write loops until the client quits, the
// connection drops, or the server stops.
func (t *TCPConn) Start() {
	t.log.Debug("Client connected")

	t.loopWaiter.Add(2)

	go func() {
		defer t.loopWaiter.Done()
		t.ReadLoop()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	t.loopWaiter.Wait()
	t.Close()

	t.log.Debug("Client disconnected")
}

func (t *TCPConn) ReadLoop() {
	log := t.log.Named("readLoop")

	// Tell the write loop to flush what's queued and stop
	defer t.enqueue(nil)

	in := protocol.NewBuffer(protocol.DefaultBufferSize, 0, t.srv.maxRequest)
	dec := protocol.NewDecoder(true)
	first := true

	for {
		for in.Len() > 0 {
			status, err := dec.Parse(in.Bytes(), first)
			first = false

			if status == protocol.Incomplete {
				break
			}

			if status == protocol.Failed {
				log.Warn("Failed to parse client request", zap.Error(err))
				t.writeError("ERR " + err.Error())
				return
			}

			in.Discard(dec.Consumed())
			first = true

			if quit := t.handle(dec.Reply()); quit {
				log.Debug("Client QUIT, exiting...")
				return
			}
		}

		if in.Available() == 0 {
			if err := in.Grow(); err != nil {
				log.Warn("Client request too large", zap.Error(err))
				t.writeError("ERR " + err.Error())
				return
			}
		}

		n, err := t.conn.Read(in.Free())
		in.Advance(n)

		if err != nil {
			if !errors.Is(err, io.EOF) && !isClosedErr(err) {
				log.Warn("Failed to read client request", zap.Error(err))
			}
			return
		}
	}
}

func (t *TCPConn) WriteLoop() {
	log := t.log.Named("writeLoop")

	for {
		select {
		case <-t.ctx.Done():
			// the server is stopping, unblock the read loop too
			t.Close()
			return

		// These are replies from the read loop and published messages
		case data := <-t.writeQueue:
			if data == nil {
				// Our read loop has terminated, we should too
				return
			}

			if _, err := t.conn.Write(data); err != nil {
				log.Warn("Failed to write from write queue", zap.Error(err))
				t.Close()
				return
			}
		}
	}
}

// Write queues data to be written as one unit, it is never interleaved with
// other writes.
func (t *TCPConn) Write(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	if !t.enqueue(append([]byte(nil), data...)) {
		return 0, ErrConnClosed
	}

	return len(data), nil
}

func (t *TCPConn) enqueue(data []byte) bool {
	select {
	case t.writeQueue <- data:
		return true
	case <-t.ctx.Done():
		return false
	}
}

func (t *TCPConn) writeError(msg string) {
	if err := protocol.WriteError(t, sanitize(msg)); err != nil {
		t.log.Debug("Failed to write error reply", zap.Error(err))
	}
}

// isRunning returns true if Close has not been called
func (t *TCPConn) isRunning() bool {
	select {
	case <-t.ctx.Done():
		// if we can read on this channel then it's been closed
		return false

	default:
		return true
	}
}

// sanitize keeps a message on one line.
func sanitize(msg string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(msg)
}
