package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrRequestEmpty      = errors.New("Request is empty")
	ErrRequestNotStrings = errors.New("Request elements must be strings")
)

// Request is a command sent by a client, either as an array of bulk strings
// or as an inline line of text.
type Request struct {
	Command Command
	Args    [][]byte
}

// Arg returns argument i, or nil when it is missing.
func (r *Request) Arg(i int) []byte {
	if i < 0 || i >= len(r.Args) {
		return nil
	}
	return r.Args[i]
}

// RequestFromReply interprets a reply decoded in server mode as a request.
func RequestFromReply(reply *Reply) (*Request, error) {
	if reply.Len() == 0 {
		return nil, ErrRequestEmpty
	}

	parts := make([][]byte, 0, len(reply.Items))
	for _, item := range reply.Items {
		switch item.Kind {
		case KindBulkString, KindSimpleString, KindPlainText:
			parts = append(parts, item.Data)
		case KindInteger:
			parts = append(parts, []byte(fmt.Sprint(item.Int)))
		default:
			return nil, fmt.Errorf("%w: got %s", ErrRequestNotStrings, item.Kind)
		}
	}

	return &Request{
		Command: CommandFrom(parts[0]),
		Args:    parts[1:],
	}, nil
}
