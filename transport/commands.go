package transport

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/luma/ramis/protocol"
)

// arity is the least and the most arguments a command takes, not counting
// the command name. A max of -1 means any number.
var arity = map[protocol.Command][2]int{
	protocol.QUIT:        {0, 0},
	protocol.PING:        {0, 1},
	protocol.ECHO:        {1, 1},
	protocol.SET:         {2, 2},
	protocol.GET:         {1, 1},
	protocol.DEL:         {1, -1},
	protocol.EXISTS:      {1, -1},
	protocol.KEYS:        {1, 1},
	protocol.INCR:        {1, 1},
	protocol.INCRBYFLOAT: {2, 2},
	protocol.FLUSHALL:    {0, 0},
	protocol.MULTI:       {0, 0},
	protocol.EXEC:        {0, 0},
	protocol.SUBSCRIBE:   {1, -1},
	protocol.UNSUBSCRIBE: {0, -1},
	protocol.PUBLISH:     {2, 2},
}

// handle runs one request and queues its reply. The reply is built in full
// before it is queued so it can't interleave with published messages.
func (t *TCPConn) handle(reply *protocol.Reply) (quit bool) {
	req, err := protocol.RequestFromReply(reply)
	if errors.Is(err, protocol.ErrRequestEmpty) {
		return false
	}
	if err != nil {
		t.writeError("ERR " + err.Error())
		return false
	}

	if t.srv.trace {
		t.log.Debug("Request",
			zap.String("command", string(req.Command)),
			zap.Int("args", len(req.Args)))
	}

	bounds, known := arity[req.Command]
	if !known {
		t.writeError(fmt.Sprintf("ERR unknown command '%s'", req.Command))
		return false
	}
	if n := len(req.Args); n < bounds[0] || bounds[1] >= 0 && n > bounds[1] {
		t.writeError("ERR " + errWrongArgs(req.Command).Error())
		return false
	}

	var out bytes.Buffer
	quit, err = t.run(&out, req)
	if err != nil {
		out.Reset()
		protocol.WriteError(&out, sanitize("ERR "+err.Error()))
	}

	if _, err := t.Write(out.Bytes()); err != nil {
		t.log.Debug("Failed to queue reply", zap.Error(err))
		return true
	}

	return quit
}

func (t *TCPConn) run(out *bytes.Buffer, req *protocol.Request) (quit bool, err error) {
	ctx := t.ctx
	store := t.srv.store

	switch req.Command {
	case protocol.QUIT:
		return true, protocol.WriteOk(out)

	case protocol.PING:
		if len(req.Args) == 0 {
			return false, protocol.WriteSimpleString(out, "PONG")
		}
		return false, protocol.WriteBulk(out, req.Arg(0))

	case protocol.ECHO:
		return false, protocol.WriteBulk(out, req.Arg(0))

	case protocol.SET:
		if err := store.Set(ctx, req.Arg(0), req.Arg(1)); err != nil {
			return false, err
		}
		return false, protocol.WriteOk(out)

	case protocol.GET:
		value, found, err := store.Get(ctx, req.Arg(0))
		if err != nil {
			return false, err
		}
		if !found {
			return false, protocol.WriteNull(out)
		}
		return false, protocol.WriteBulk(out, value)

	case protocol.DEL:
		n, err := store.Delete(ctx, req.Args...)
		if err != nil {
			return false, err
		}
		return false, protocol.WriteInteger(out, int64(n))

	case protocol.EXISTS:
		var n int64
		for _, key := range req.Args {
			_, found, err := store.Get(ctx, key)
			if err != nil {
				return false, err
			}
			if found {
				n++
			}
		}
		return false, protocol.WriteInteger(out, n)

	case protocol.KEYS:
		keys, err := store.Keys(ctx, string(req.Arg(0)))
		if err != nil {
			return false, err
		}
		return false, protocol.WriteBulks(out, keys...)

	case protocol.INCR:
		n, err := store.Incr(ctx, req.Arg(0), 1)
		if err != nil {
			return false, err
		}
		return false, protocol.WriteInteger(out, n)

	case protocol.INCRBYFLOAT:
		delta, err := strconv.ParseFloat(string(req.Arg(1)), 64)
		if err != nil {
			return false, errNotFloat
		}
		f, err := store.IncrFloat(ctx, req.Arg(0), delta)
		if err != nil {
			return false, err
		}
		return false, protocol.WriteFloat(out, f)

	case protocol.FLUSHALL:
		if err := store.Flush(ctx); err != nil {
			return false, err
		}
		return false, protocol.WriteOk(out)

	case protocol.MULTI:
		return false, protocol.WriteOk(out)

	case protocol.EXEC:
		// commands are never queued, there is nothing to run
		return false, protocol.WriteArrayHeader(out, 0)

	case protocol.SUBSCRIBE:
		for _, channel := range req.Args {
			count := t.subscribe(string(channel))
			if err := writeSubscription(out, "subscribe", channel, count); err != nil {
				return false, err
			}
		}
		return false, nil

	case protocol.UNSUBSCRIBE:
		channels := req.Args
		if len(channels) == 0 {
			channels = t.subscribedChannels()
		}
		if len(channels) == 0 {
			return false, writeSubscription(out, "unsubscribe", nil, 0)
		}
		for _, channel := range channels {
			count := t.unsubscribe(string(channel))
			if err := writeSubscription(out, "unsubscribe", channel, count); err != nil {
				return false, err
			}
		}
		return false, nil

	case protocol.PUBLISH:
		n, err := t.srv.pubsub.Publish(string(req.Arg(0)), req.Arg(1))
		if err != nil {
			t.log.Debug("Some subscribers missed a message", zap.Error(err))
		}
		return false, protocol.WriteInteger(out, int64(n))
	}

	return false, fmt.Errorf("unknown command '%s'", req.Command)
}

var errNotFloat = errors.New("value is not a valid float")

type wrongArgsError struct {
	command protocol.Command
}

func (e *wrongArgsError) Error() string {
	return fmt.Sprintf("wrong number of arguments for '%s' command", strings.ToLower(string(e.command)))
}

func errWrongArgs(command protocol.Command) error {
	return &wrongArgsError{command: command}
}

// writeSubscription writes a subscribe or unsubscribe confirmation. A nil
// channel is written as a null bulk.
func writeSubscription(out *bytes.Buffer, kind string, channel []byte, count int) error {
	if err := protocol.WriteArrayHeader(out, 3); err != nil {
		return err
	}
	if err := protocol.WriteBulk(out, []byte(kind)); err != nil {
		return err
	}

	var err error
	if channel == nil {
		err = protocol.WriteNull(out)
	} else {
		err = protocol.WriteBulk(out, channel)
	}
	if err != nil {
		return err
	}

	return protocol.WriteInteger(out, int64(count))
}
