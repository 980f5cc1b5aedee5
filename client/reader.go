package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/luma/ramis/protocol"
)

// readReply reads until the decoder has one whole reply. Bytes left over
// from an earlier read are decoded first.
func (s *Session) readReply() (*protocol.Reply, error) {
	first := true

	if s.in.Len() > 0 {
		if reply, done, err := s.decode(first); done {
			return reply, err
		}
		first = false
	}

	for {
		if err := s.waitForData(); err != nil {
			return nil, err
		}

		if s.in.Available() == 0 {
			if err := s.in.Grow(); err != nil {
				return nil, s.breakWith(fmt.Errorf("Could not expand receive buffer: %w", err))
			}
		}

		n, err := s.conn.Read(s.in.Free())
		if n > 0 {
			s.in.Advance(n)

			if reply, done, derr := s.decode(first); done {
				return reply, derr
			}
			first = false
		}

		if err != nil {
			return nil, s.readFailed(err)
		}
		if n == 0 {
			return nil, s.breakWith(fmt.Errorf("%w: empty read", ErrReadFailed))
		}
	}
}

// decode feeds everything received so far to the decoder. done is false
// while the reply is still incomplete.
func (s *Session) decode(first bool) (reply *protocol.Reply, done bool, err error) {
	status, err := s.dec.Parse(s.in.Bytes(), first)

	switch status {
	case protocol.Complete:
		s.in.Discard(s.dec.Consumed())
		s.reply = s.dec.Reply()
		return s.reply, true, nil

	case protocol.Failed:
		return nil, true, s.breakWith(err)
	}

	return nil, false, nil
}

// waitForData arms the read deadline for the next read. Bounded waits last
// Options.Timeout, unbounded waits never expire.
func (s *Session) waitForData() error {
	var deadline time.Time
	if !s.waitForever {
		deadline = time.Now().Add(s.opts.Timeout)
	}

	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return s.timedOut(fmt.Errorf("%w: cannot wait for data: %v", ErrReadFailed, err))
	}

	return nil
}

func (s *Session) readFailed(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return s.timedOut(ErrReadTimeout)
	}

	if errors.Is(err, io.EOF) {
		return s.breakWith(fmt.Errorf("%w: server closed the connection", ErrReadFailed))
	}

	return s.breakWith(fmt.Errorf("%w: %v", ErrReadFailed, err))
}

// timedOut fails the current exchange. Whatever the server sends late would
// land in the middle of the next reply, so the connection is replaced. The
// outcome of the redial only shows on the next call.
func (s *Session) timedOut(cause error) error {
	s.log.Warn("Timed out waiting for the server, reconnecting",
		zap.Duration("timeout", s.opts.Timeout),
		zap.Int("discarded", s.in.Len()))

	s.closeConn()
	s.resetReadState()

	if err := s.dial(context.Background()); err != nil {
		s.log.Warn("Reconnect after timeout failed", zap.Error(err))
		s.broken = true
	} else {
		s.broken = false
	}

	return s.fail(cause)
}
