package protocol

import (
	"strconv"
	"strings"
)

// Kind identifies the variant held by an Item.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindBulkString
	KindSimpleString
	KindPlainText
	KindError
	KindArray
)

var kindNames = [...]string{
	KindNull:         "null",
	KindInteger:      "integer",
	KindFloat:        "float",
	KindBulkString:   "bulk",
	KindSimpleString: "string",
	KindPlainText:    "text",
	KindError:        "error",
	KindArray:        "array",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Item is one decoded value. Which fields are meaningful depends on Kind:
//
//   - KindInteger: Int
//   - KindFloat: Float
//   - KindBulkString: Data, binary safe, len(Data) is the declared length
//   - KindSimpleString, KindPlainText, KindError: Data holds the text
//   - KindArray: Elems, in wire order
type Item struct {
	Kind  Kind
	Int   int64
	Float float64
	Data  []byte
	Elems []Item
}

// Text returns the textual payload of strings, errors, and bulk strings.
func (i Item) Text() string {
	return string(i.Data)
}

// IsNull reports whether the item is the null value.
func (i Item) IsNull() bool {
	return i.Kind == KindNull
}

func (i Item) String() string {
	switch i.Kind {
	case KindNull:
		return "(nil)"
	case KindInteger:
		return "(integer) " + strconv.FormatInt(i.Int, 10)
	case KindFloat:
		return "(float) " + strconv.FormatFloat(i.Float, 'g', -1, 64)
	case KindBulkString:
		return strconv.Quote(string(i.Data))
	case KindError:
		return "(error) " + string(i.Data)
	case KindArray:
		parts := make([]string, len(i.Elems))
		for n, elem := range i.Elems {
			parts[n] = elem.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return string(i.Data)
	}
}

// Reply is the decoded result of one exchange. When the server answered with
// an array, its elements are the Items and Array is set.
type Reply struct {
	Items []Item
	Array bool
}

// Len is the number of top-level items.
func (r *Reply) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}

// First returns the first item, or a null item for an empty reply.
func (r *Reply) First() Item {
	if r == nil || len(r.Items) == 0 {
		return Item{Kind: KindNull}
	}
	return r.Items[0]
}

// ErrorMessage returns the server's error text when the reply itself is an
// error. Errors inside an array reply, such as EXEC results, don't count.
func (r *Reply) ErrorMessage() (string, bool) {
	if r == nil || r.Array || len(r.Items) == 0 || r.Items[0].Kind != KindError {
		return "", false
	}
	return string(r.Items[0].Data), true
}

func (r *Reply) String() string {
	if r == nil {
		return "(no reply)"
	}

	if r.Array {
		return Item{Kind: KindArray, Elems: r.Items}.String()
	}

	parts := make([]string, len(r.Items))
	for n, item := range r.Items {
		parts[n] = item.String()
	}

	return strings.Join(parts, "\n")
}
