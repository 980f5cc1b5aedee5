package client

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/luma/ramis/protocol"
)

const (
	// DefaultTimeout is how long a bounded wait for reply data lasts.
	DefaultTimeout = 3 * time.Second

	// DefaultConnectTimeout bounds host resolution plus dialing.
	DefaultConnectTimeout = 10 * time.Second
)

type Options struct {
	// Timeout bounds each wait for reply data while the session is not set
	// to wait forever
	Timeout time.Duration

	// ConnectTimeout bounds resolving the host and dialing it
	ConnectTimeout time.Duration

	// BufferSize is the initial size of the read and write buffers
	BufferSize int

	// BufferIncrement is how much a full buffer grows by, defaults to
	// BufferSize
	BufferIncrement int

	// MaxBufferSize caps buffer growth. Replies or commands that need more
	// fail with protocol.ErrBufferLimit.
	MaxBufferSize int

	Resolver *net.Resolver
	Dialer   *net.Dialer

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.BufferSize <= 0 {
		o.BufferSize = protocol.DefaultBufferSize
	}
	if o.BufferIncrement <= 0 {
		o.BufferIncrement = o.BufferSize
	}
	if o.MaxBufferSize <= 0 {
		o.MaxBufferSize = protocol.DefaultMaxBufferSize
	}
	if o.Resolver == nil {
		o.Resolver = net.DefaultResolver
	}
	if o.Dialer == nil {
		o.Dialer = &net.Dialer{}
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}
