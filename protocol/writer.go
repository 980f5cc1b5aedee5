package protocol

import (
	"fmt"
	"io"
	"strconv"
)

var (
	OkTerminal = []byte("+OK\r\n")
	NullBulk   = []byte("$-1\r\n")
	Terminal   = []byte("\r\n")
)

func WriteOk(w io.Writer) error {
	_, err := w.Write(OkTerminal)
	return err
}

func WriteNull(w io.Writer) error {
	_, err := w.Write(NullBulk)
	return err
}

func WriteSimpleString(w io.Writer, s string) error {
	_, err := w.Write(line('+', s))
	return err
}

func WriteError(w io.Writer, errMsg string) error {
	_, err := w.Write(line('-', errMsg))
	return err
}

func WriteInteger(w io.Writer, n int64) error {
	_, err := w.Write(line(':', strconv.FormatInt(n, 10)))
	return err
}

// WriteFloat writes a float behind the integer marker, the way Ramis servers
// send them. Generic RESP peers will not understand it.
func WriteFloat(w io.Writer, f float64) error {
	_, err := w.Write(line(':', strconv.FormatFloat(f, 'e', 16, 64)))
	return err
}

func WriteBulk(w io.Writer, data []byte) error {
	b := make([]byte, 0, len(data)+16)
	b = append(b, '$')
	b = strconv.AppendInt(b, int64(len(data)), 10)
	b = append(b, Terminal...)
	b = append(b, data...)
	b = append(b, Terminal...)

	_, err := w.Write(b)
	return err
}

func WriteArrayHeader(w io.Writer, n int) error {
	_, err := w.Write(line('*', strconv.Itoa(n)))
	return err
}

// WriteBulks writes an array of bulk strings.
func WriteBulks(w io.Writer, values ...[]byte) error {
	if err := WriteArrayHeader(w, len(values)); err != nil {
		return err
	}

	for _, v := range values {
		if err := WriteBulk(w, v); err != nil {
			return err
		}
	}

	return nil
}

// WriteItem writes item in its wire form. PlainText items are written as
// simple strings.
func WriteItem(w io.Writer, item Item) error {
	switch item.Kind {
	case KindNull:
		return WriteNull(w)
	case KindInteger:
		return WriteInteger(w, item.Int)
	case KindFloat:
		return WriteFloat(w, item.Float)
	case KindBulkString:
		return WriteBulk(w, item.Data)
	case KindSimpleString, KindPlainText:
		return WriteSimpleString(w, string(item.Data))
	case KindError:
		return WriteError(w, string(item.Data))
	case KindArray:
		if err := WriteArrayHeader(w, len(item.Elems)); err != nil {
			return err
		}
		for _, elem := range item.Elems {
			if err := WriteItem(w, elem); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("Cannot write item of kind %s", item.Kind)
	}
}

func line(marker byte, s string) []byte {
	b := make([]byte, 0, len(s)+3)
	b = append(b, marker)
	b = append(b, s...)
	return append(b, Terminal...)
}
