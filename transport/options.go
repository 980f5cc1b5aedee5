package transport

import (
	"github.com/luma/ramis/storage"
	"go.uber.org/zap"
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on, 0 picks a free port (see TCP.Addr)
	Port int

	// Reuseport controls setting SO_REUSEPORT so several listeners can share
	// the port
	Reuseport bool

	// Trace logs every request at debug level. This is only useful in local
	// debugging
	Trace bool

	// NumListeners defaults to 1. More than one requires Reuseport and a
	// fixed Port.
	NumListeners int

	// MaxRequestSize bounds how large a single request may grow
	MaxRequestSize int

	Store storage.Store

	Log *zap.Logger
}
