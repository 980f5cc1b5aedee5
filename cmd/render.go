package cmd

import (
	"fmt"
	"io"

	"github.com/tidwall/sjson"

	"github.com/luma/ramis/protocol"
)

// asJSON is shared by the commands that print replies
var asJSON bool

func printReply(w io.Writer, reply *protocol.Reply) error {
	if !asJSON {
		_, err := fmt.Fprintln(w, reply.String())
		return err
	}

	doc, err := replyJSON(reply)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(doc))
	return err
}

// replyJSON renders a reply as {"array": bool, "items": [{"kind": ..., "value": ...}]}.
func replyJSON(reply *protocol.Reply) ([]byte, error) {
	doc, err := sjson.SetBytes([]byte(`{"items":[]}`), "array", reply.Array)
	if err != nil {
		return nil, err
	}

	for _, item := range reply.Items {
		raw, err := itemJSON(item)
		if err != nil {
			return nil, err
		}

		if doc, err = sjson.SetRawBytes(doc, "items.-1", raw); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

func itemJSON(item protocol.Item) ([]byte, error) {
	doc, err := sjson.SetBytes([]byte(`{}`), "kind", item.Kind.String())
	if err != nil {
		return nil, err
	}

	switch item.Kind {
	case protocol.KindNull:
		return sjson.SetRawBytes(doc, "value", []byte("null"))

	case protocol.KindInteger:
		return sjson.SetBytes(doc, "value", item.Int)

	case protocol.KindFloat:
		return sjson.SetBytes(doc, "value", item.Float)

	case protocol.KindArray:
		if doc, err = sjson.SetRawBytes(doc, "value", []byte("[]")); err != nil {
			return nil, err
		}

		for _, elem := range item.Elems {
			raw, err := itemJSON(elem)
			if err != nil {
				return nil, err
			}
			if doc, err = sjson.SetRawBytes(doc, "value.-1", raw); err != nil {
				return nil, err
			}
		}

		return doc, nil

	default:
		return sjson.SetBytes(doc, "value", string(item.Data))
	}
}
