package client

import (
	"errors"

	"github.com/luma/ramis/protocol"
)

var (
	ErrClosed            = errors.New("Session is closed")
	ErrUnknownHost       = errors.New("Unknown host")
	ErrSocketCreate      = errors.New("Cannot create socket")
	ErrConnect           = errors.New("Cannot connect to host")
	ErrWriteFailed       = errors.New("Could not send data to server")
	ErrReadTimeout       = errors.New("Timeout reading from server")
	ErrReadFailed        = errors.New("Error reading from server")
	ErrReconnectRequired = errors.New("Session failed an earlier exchange and must be reconnected")
	ErrUnconsumedReply   = errors.New("Unread reply data is pending, call GetReply or Reconnect first")

	// These come from the protocol package and are repeated here so callers
	// only need to import client.
	ErrProtocol           = protocol.ErrProtocol
	ErrBufferLimit        = protocol.ErrBufferLimit
	ErrUnknownPlaceholder = protocol.ErrUnknownPlaceholder
)

// ServerError is a well formed reply whose payload is an error message.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}
