package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/ramis/protocol"
)

// Session is one connection to a server together with the buffers and the
// decoder used to talk to it.
//
// A Session has a single owner: commands and replies strictly alternate and
// nothing is safe for concurrent use. Open one Session per goroutine, or use
// a Pool.
type Session struct {
	// kept so we can reconnect
	host string
	port int

	opts Options

	conn net.Conn
	out  *protocol.Buffer
	in   *protocol.Buffer
	enc  *protocol.Encoder
	dec  *protocol.Decoder

	waitForever bool

	reply   *protocol.Reply
	lastErr error

	// broken is set once the stream offset can no longer be trusted
	broken bool
	closed bool

	log *zap.Logger
}

// Connect resolves host, dials it and returns a ready Session.
func Connect(ctx context.Context, host string, port int, options Options) (*Session, error) {
	options = options.withDefaults()

	s := &Session{
		host: host,
		port: port,
		opts: options,
		out:  protocol.NewBuffer(options.BufferSize, options.BufferIncrement, options.MaxBufferSize),
		in:   protocol.NewBuffer(options.BufferSize, options.BufferIncrement, options.MaxBufferSize),
		enc:  protocol.NewEncoder(options.BufferSize, options.MaxBufferSize),
		dec:  protocol.NewDecoder(false),
		log: options.Log.Named("session").With(
			zap.String("addr", net.JoinHostPort(host, strconv.Itoa(port)))),
	}

	if err := s.dial(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.log.Debug("Connected", zap.Stringer("local", s.conn.LocalAddr()))

	return s, nil
}

// Reconnect closes the current connection and dials the same host and port
// again. Buffers and the decoder are kept, anything received but not yet
// consumed is discarded.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}

	s.closeConn()
	s.resetReadState()
	s.reply = nil
	s.lastErr = nil

	if err := s.dial(ctx); err != nil {
		s.broken = true
		s.lastErr = err
		return err
	}

	s.broken = false
	s.log.Info("Reconnected", zap.Stringer("local", s.conn.LocalAddr()))

	return nil
}

// Close releases the connection, the buffers and the decoder. It is safe to
// call more than once and on a Session whose Connect failed.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}

	s.closed = true
	err := s.closeConn()

	s.out = nil
	s.in = nil
	s.enc = nil
	if s.dec != nil {
		s.dec.Reset()
		s.dec = nil
	}

	return err
}

// SetWaitForever switches between bounded waits (the default) and waiting
// for reply data without a timeout, as needed while subscribed.
func (s *Session) SetWaitForever(enabled bool) {
	s.waitForever = enabled
}

// WaitForever reports whether reply waits are unbounded.
func (s *Session) WaitForever() bool {
	return s.waitForever
}

// SendCommand encodes template and args (see protocol.Encoder.Format), sends
// the command and waits for its reply.
//
// A nil reply comes with a non-nil error, which LastError also reports. A
// reply carrying a server error is returned with a nil error, LastError
// reports it as a *ServerError.
func (s *Session) SendCommand(template string, args ...interface{}) (*protocol.Reply, error) {
	return s.exchange(func(out *protocol.Buffer) error {
		return s.enc.Format(out, template, args...)
	})
}

// Send sends a command made of args and waits for its reply.
func (s *Session) Send(args ...protocol.Arg) (*protocol.Reply, error) {
	return s.exchange(func(out *protocol.Buffer) error {
		return s.enc.Encode(out, args...)
	})
}

// Write sends p as is, for hand written wire input such as inline commands.
// Read the reply with GetReply.
func (s *Session) Write(p []byte) error {
	s.begin()

	if err := s.usable(); err != nil {
		return s.fail(err)
	}

	return s.write(p)
}

// GetReply waits for and decodes one reply without sending anything.
func (s *Session) GetReply() (*protocol.Reply, error) {
	s.begin()

	if err := s.usable(); err != nil {
		return nil, s.fail(err)
	}

	return s.readReply()
}

// LastError reports what went wrong in the most recent exchange: a transport
// or decoding error if there was one, else the server's error message if the
// reply started with one, else nil.
func (s *Session) LastError() error {
	if s.lastErr != nil {
		return s.lastErr
	}

	if msg, ok := s.reply.ErrorMessage(); ok {
		return &ServerError{Message: msg}
	}

	return nil
}

// Healthy reports whether the next command can be sent right away.
func (s *Session) Healthy() bool {
	return !s.closed && !s.broken && s.conn != nil && s.in.Len() == 0
}

// Conn returns the current connection, nil while disconnected.
func (s *Session) Conn() net.Conn {
	return s.conn
}

// Addr is the host:port the session dials.
func (s *Session) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

func (s *Session) exchange(encode func(out *protocol.Buffer) error) (*protocol.Reply, error) {
	s.begin()

	if err := s.usable(); err != nil {
		return nil, s.fail(err)
	}

	if s.in.Len() > 0 {
		return nil, s.fail(ErrUnconsumedReply)
	}

	s.out.Reset()
	if err := encode(s.out); err != nil {
		// nothing was sent, the session is still in sync
		return nil, s.fail(err)
	}

	if err := s.write(s.out.Bytes()); err != nil {
		return nil, err
	}

	return s.readReply()
}

func (s *Session) write(p []byte) error {
	var deadline time.Time
	if !s.waitForever {
		deadline = time.Now().Add(s.opts.Timeout)
	}

	err := s.conn.SetWriteDeadline(deadline)
	if err == nil {
		_, err = s.conn.Write(p)
	}

	if err != nil {
		return s.breakWith(fmt.Errorf("%w: %v", ErrWriteFailed, err))
	}

	return nil
}

// begin clears the outcome of the previous exchange.
func (s *Session) begin() {
	s.lastErr = nil
	s.reply = nil
}

func (s *Session) usable() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.broken || s.conn == nil:
		return ErrReconnectRequired
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.lastErr = err
	return err
}

// breakWith records err and marks the session as out of sync with the
// server. Only Reconnect brings it back.
func (s *Session) breakWith(err error) error {
	s.broken = true
	s.log.Debug("Exchange failed, session needs a reconnect", zap.Error(err))
	return s.fail(err)
}

func (s *Session) dial(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	addrs, err := s.opts.Resolver.LookupIPAddr(ctx, s.host)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnknownHost, s.host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownHost, s.host)
	}

	var dialErr error
	for _, addr := range addrs {
		conn, err := s.opts.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr.String(), strconv.Itoa(s.port)))
		if err == nil {
			s.conn = conn
			return nil
		}

		dialErr = multierr.Append(dialErr, err)
	}

	var sysErr *os.SyscallError
	if errors.As(dialErr, &sysErr) && sysErr.Syscall == "socket" {
		return fmt.Errorf("%w: %v", ErrSocketCreate, dialErr)
	}

	return fmt.Errorf("%w: %s: %v", ErrConnect, s.Addr(), dialErr)
}

func (s *Session) closeConn() error {
	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil

	return err
}

func (s *Session) resetReadState() {
	if s.in != nil {
		s.in.Reset()
	}
	if s.dec != nil {
		s.dec.Reset()
	}
}
