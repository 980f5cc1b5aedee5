package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Status is the outcome of feeding bytes to a Decoder.
type Status int

const (
	// Incomplete means more bytes are needed before a reply is available.
	Incomplete Status = iota

	// Complete means a whole reply was decoded, see Decoder.Reply.
	Complete

	// Failed means the stream is malformed.
	Failed
)

func (s Status) String() string {
	switch s {
	case Incomplete:
		return "incomplete"
	case Complete:
		return "complete"
	default:
		return "failed"
	}
}

const (
	// MaxLineLength bounds header lines and inline commands. Simple string
	// and error replies are only bounded by the size of the read buffer.
	MaxLineLength = 64 * 1024

	// MaxBulkLength bounds the declared length of a single bulk string.
	MaxBulkLength = 512 << 20

	maxElements = 1 << 24
	maxDepth    = 32
)

var errIncomplete = errors.New("incomplete")

// Decoder turns an accumulated byte stream into a Reply.
//
// A Decoder is fed the whole buffer received so far for the current reply,
// starting at the reply's first byte, every time more bytes arrive. Headers
// can span reads, so there is no way to resume from a delta alone.
//
// In server mode the decoder also accepts inline commands: a line that does
// not start with a type marker is split on whitespace into PlainText items.
type Decoder struct {
	serverMode bool

	reply    *Reply
	consumed int

	// need is the buffer length below which another parse cannot succeed
	need int
}

// NewDecoder returns a decoder for replies (serverMode false) or for client
// requests (serverMode true).
func NewDecoder(serverMode bool) *Decoder {
	return &Decoder{serverMode: serverMode}
}

// Reset forgets any partially or fully decoded reply.
func (d *Decoder) Reset() {
	d.reply = nil
	d.consumed = 0
	d.need = 0
}

// Reply returns the last completely decoded reply.
func (d *Decoder) Reply() *Reply {
	return d.reply
}

// Consumed is the number of bytes the last complete reply occupied at the
// start of the buffer. Any bytes after it belong to the next reply.
func (d *Decoder) Consumed() int {
	return d.consumed
}

// Parse decodes buf, which must hold every byte received for the current
// reply. first marks the first feed of a new reply.
func (d *Decoder) Parse(buf []byte, first bool) (Status, error) {
	if first {
		d.Reset()
	}

	if len(buf) == 0 || len(buf) < d.need {
		return Incomplete, nil
	}

	var (
		reply *Reply
		next  int
		err   error
	)

	if d.serverMode && !isMarker(buf[0]) {
		reply, next, err = d.parseInline(buf)
	} else {
		var item Item
		item, next, err = d.parseItem(buf, 0, 0)
		if err == nil {
			reply = toReply(item)
		}
	}

	switch {
	case errors.Is(err, errIncomplete):
		return Incomplete, nil
	case err != nil:
		return Failed, err
	}

	d.reply = reply
	d.consumed = next
	d.need = 0

	return Complete, nil
}

func toReply(item Item) *Reply {
	if item.Kind == KindArray {
		return &Reply{Items: item.Elems, Array: true}
	}

	return &Reply{Items: []Item{item}}
}

func isMarker(b byte) bool {
	switch b {
	case '+', '-', ':', ',', '$', '*':
		return true
	}
	return false
}

func (d *Decoder) parseInline(buf []byte) (*Reply, int, error) {
	line, next, err := readLine(buf, 0, MaxLineLength)
	if err != nil {
		return nil, 0, err
	}

	fields := bytes.Fields(line)
	reply := &Reply{Items: make([]Item, 0, len(fields))}
	for _, field := range fields {
		reply.Items = append(reply.Items, Item{Kind: KindPlainText, Data: copyBytes(field)})
	}

	return reply, next, nil
}

func (d *Decoder) parseItem(buf []byte, pos int, depth int) (Item, int, error) {
	if pos >= len(buf) {
		return Item{}, 0, errIncomplete
	}

	marker := buf[pos]

	limit := MaxLineLength
	if !d.serverMode && (marker == '+' || marker == '-') {
		limit = 0
	}

	line, next, err := readLine(buf, pos+1, limit)
	if err != nil {
		return Item{}, 0, err
	}

	switch marker {
	case '+':
		return Item{Kind: KindSimpleString, Data: copyBytes(line)}, next, nil

	case '-':
		return Item{Kind: KindError, Data: copyBytes(line)}, next, nil

	case ':':
		item, err := parseNumber(line)
		return item, next, err

	case ',':
		f, err := strconv.ParseFloat(string(line), 64)
		if err != nil {
			return Item{}, 0, fmt.Errorf("%w: invalid float %q", ErrProtocol, line)
		}
		return Item{Kind: KindFloat, Float: f}, next, nil

	case '$':
		n, err := parseLength(line, MaxBulkLength)
		if err != nil {
			return Item{}, 0, err
		}
		if n < 0 {
			return Item{Kind: KindNull}, next, nil
		}

		end := next + n
		if len(buf) < end+2 {
			d.need = end + 2
			return Item{}, 0, errIncomplete
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return Item{}, 0, fmt.Errorf("%w: bulk string of %d bytes is not terminated by CRLF", ErrProtocol, n)
		}

		return Item{Kind: KindBulkString, Data: copyBytes(buf[next:end])}, end + 2, nil

	case '*':
		n, err := parseLength(line, maxElements)
		if err != nil {
			return Item{}, 0, err
		}
		if n < 0 {
			return Item{Kind: KindNull}, next, nil
		}
		if depth >= maxDepth {
			return Item{}, 0, fmt.Errorf("%w: arrays nested deeper than %d", ErrProtocol, maxDepth)
		}

		elems := make([]Item, 0, minInt(n, 1024))
		for i := 0; i < n; i++ {
			var elem Item
			elem, next, err = d.parseItem(buf, next, depth+1)
			if err != nil {
				return Item{}, 0, err
			}
			elems = append(elems, elem)
		}

		return Item{Kind: KindArray, Elems: elems}, next, nil

	default:
		return Item{}, 0, fmt.Errorf("%w: unexpected byte %q at offset %d", ErrProtocol, marker, pos)
	}
}

// readLine returns the line starting at pos without its terminator. Lines end
// at '\n' with an optional preceding '\r'. A line longer than limit fails
// whether or not its terminator has arrived, a limit of 0 means no limit.
func readLine(buf []byte, pos int, limit int) ([]byte, int, error) {
	idx := bytes.IndexByte(buf[pos:], '\n')
	if idx < 0 {
		// one extra byte may be the '\r' of a line that is exactly limit long
		if limit > 0 && len(buf)-pos > limit+1 {
			return nil, 0, errLineTooLong(limit)
		}
		return nil, 0, errIncomplete
	}

	line := RemoveTrailingCR(buf[pos : pos+idx])
	if limit > 0 && len(line) > limit {
		return nil, 0, errLineTooLong(limit)
	}

	return line, pos + idx + 1, nil
}

func errLineTooLong(limit int) error {
	return fmt.Errorf("%w: line longer than %d bytes", ErrProtocol, limit)
}

func parseLength(line []byte, max int64) (int, error) {
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil || n < -1 || n > max {
		return 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, line)
	}
	return int(n), nil
}

// parseNumber decodes an integer line. Ramis servers also send floats behind
// the integer marker, those always carry a '.', an exponent, inf, or nan.
func parseNumber(line []byte) (Item, error) {
	if bytes.ContainsAny(line, ".eEnN") {
		f, err := strconv.ParseFloat(string(line), 64)
		if err != nil {
			return Item{}, fmt.Errorf("%w: invalid float %q", ErrProtocol, line)
		}
		return Item{Kind: KindFloat, Float: f}, nil
	}

	i, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return Item{}, fmt.Errorf("%w: invalid integer %q", ErrProtocol, line)
	}

	return Item{Kind: KindInteger, Int: i}, nil
}

// RemoveTrailingCR strips an optional trailing '\r'.
func RemoveTrailingCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[:len(data)-1]
	}

	return data
}

func copyBytes(b []byte) []byte {
	return append(make([]byte, 0, len(b)), b...)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
