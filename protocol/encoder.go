package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

type argKind int

const (
	argText argKind = iota
	argBytes
	argInt
	argUint
	argFloat
	argDouble
)

// Arg is one element of a command built with Encoder.Encode.
type Arg struct {
	kind argKind
	text string
	raw  []byte
	i    int64
	u    uint64
	f    float64
}

// Text is inserted verbatim.
func Text(s string) Arg { return Arg{kind: argText, text: s} }

// Bytes is inserted verbatim and is binary safe.
func Bytes(b []byte) Arg { return Arg{kind: argBytes, raw: b} }

// Int is rendered in decimal.
func Int(i int64) Arg { return Arg{kind: argInt, i: i} }

// Uint is rendered in decimal.
func Uint(u uint64) Arg { return Arg{kind: argUint, u: u} }

// Float is rendered with enough digits to round trip a float32.
func Float(f float32) Arg { return Arg{kind: argFloat, f: float64(f)} }

// Double is rendered with enough digits to round trip a float64.
func Double(f float64) Arg { return Arg{kind: argDouble, f: f} }

// Args turns plain strings into Text arguments.
func Args(ss ...string) []Arg {
	args := make([]Arg, len(ss))
	for i, s := range ss {
		args[i] = Text(s)
	}
	return args
}

// Encoder writes commands as arrays of bulk strings. Each element is staged
// in a scratch buffer so its length is known before its header is written.
//
// An Encoder is not safe for concurrent use.
type Encoder struct {
	scratch *Buffer
	num     [64]byte
}

// NewEncoder returns an Encoder whose scratch buffer starts at size bytes,
// grows by size bytes, and never exceeds max bytes.
func NewEncoder(size, max int) *Encoder {
	return &Encoder{scratch: NewBuffer(size, size, max)}
}

// Encode appends one command made of args to out. On error out is left as
// it was.
func (e *Encoder) Encode(out *Buffer, args ...Arg) (err error) {
	if len(args) == 0 {
		return ErrEmptyCommand
	}

	mark := out.Len()
	defer func() {
		if err != nil {
			out.Truncate(mark)
		}
	}()

	if err = e.writeHeader(out, '*', len(args)); err != nil {
		return err
	}

	for _, arg := range args {
		e.scratch.Reset()
		if err = e.appendArg(arg); err != nil {
			return err
		}
		if err = e.writeBulk(out, e.scratch.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

// Format appends one command to out. Every whitespace delimited token of
// template becomes one element, with these placeholders substituted from
// args in order:
//
//	%%             a literal '%'
//	%s             string, up to its first NUL byte
//	%b             []byte, binary safe
//	%d %ld %lld    signed integer
//	%u %lu %llu    unsigned integer
//	%f             float32, 9 significant digits
//	%lf            float64, 17 significant digits
//
// On error out is left as it was.
func (e *Encoder) Format(out *Buffer, template string, args ...interface{}) (err error) {
	tokens := SplitTemplate(template)
	if len(tokens) == 0 {
		return ErrEmptyCommand
	}

	mark := out.Len()
	defer func() {
		if err != nil {
			out.Truncate(mark)
		}
	}()

	if err = e.writeHeader(out, '*', len(tokens)); err != nil {
		return err
	}

	next := 0
	for _, token := range tokens {
		e.scratch.Reset()

		if next, err = e.substitute(token, args, next); err != nil {
			return err
		}
		if err = e.writeBulk(out, e.scratch.Bytes()); err != nil {
			return err
		}
	}

	if next < len(args) {
		return fmt.Errorf("%w: %d placeholders, %d arguments", ErrExtraArguments, next, len(args))
	}

	return nil
}

func (e *Encoder) substitute(token string, args []interface{}, next int) (int, error) {
	for i := 0; i < len(token); i++ {
		if token[i] != '%' {
			if err := e.scratch.WriteByte(token[i]); err != nil {
				return next, err
			}
			continue
		}

		verb := placeholderAt(token, i+1)
		if verb == "" {
			return next, fmt.Errorf("%w: %q in %q", ErrUnknownPlaceholder, token[i:], token)
		}
		i += len(verb)

		if verb == "%" {
			if err := e.scratch.WriteByte('%'); err != nil {
				return next, err
			}
			continue
		}

		if next >= len(args) {
			return next, fmt.Errorf("%w: %%%s in %q", ErrMissingArgument, verb, token)
		}

		arg, err := convertArg(verb, args[next])
		if err != nil {
			return next, err
		}
		next++

		if err := e.appendArg(arg); err != nil {
			return next, err
		}
	}

	return next, nil
}

// placeholderAt returns the conversion that follows a '%', or "" when it is
// not one of the supported ones.
func placeholderAt(token string, i int) string {
	j := i
	for j < len(token) && token[j] == 'l' && j-i < 2 {
		j++
	}
	if j >= len(token) {
		return ""
	}

	verb := token[i : j+1]
	switch verb {
	case "%", "s", "b", "d", "ld", "lld", "u", "lu", "llu", "f", "lf":
		return verb
	}

	return ""
}

func convertArg(verb string, v interface{}) (Arg, error) {
	switch verb {
	case "s":
		s, ok := v.(string)
		if !ok {
			break
		}
		if i := strings.IndexByte(s, 0); i >= 0 {
			s = s[:i]
		}
		return Text(s), nil

	case "b":
		b, ok := v.([]byte)
		if !ok {
			break
		}
		return Bytes(b), nil

	case "d", "ld", "lld":
		if i, ok := signed(v); ok {
			return Int(i), nil
		}

	case "u", "lu", "llu":
		if u, ok := unsigned(v); ok {
			return Uint(u), nil
		}
		if i, ok := signed(v); ok && i >= 0 {
			return Uint(uint64(i)), nil
		}

	case "f":
		switch f := v.(type) {
		case float32:
			return Float(f), nil
		case float64:
			return Float(float32(f)), nil
		}

	case "lf":
		switch f := v.(type) {
		case float32:
			return Double(float64(f)), nil
		case float64:
			return Double(f), nil
		}
	}

	return Arg{}, fmt.Errorf("%w: %%%s given %T", ErrArgumentType, verb, v)
}

func signed(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func unsigned(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case uintptr:
		return uint64(n), true
	}
	return 0, false
}

func (e *Encoder) appendArg(arg Arg) error {
	var err error

	switch arg.kind {
	case argText:
		_, err = e.scratch.WriteString(arg.text)
	case argBytes:
		_, err = e.scratch.Write(arg.raw)
	case argInt:
		_, err = e.scratch.Write(strconv.AppendInt(e.num[:0], arg.i, 10))
	case argUint:
		_, err = e.scratch.Write(strconv.AppendUint(e.num[:0], arg.u, 10))
	case argFloat:
		_, err = e.scratch.Write(strconv.AppendFloat(e.num[:0], arg.f, 'e', 8, 32))
	case argDouble:
		_, err = e.scratch.Write(strconv.AppendFloat(e.num[:0], arg.f, 'e', 16, 64))
	}

	return err
}

func (e *Encoder) writeHeader(out *Buffer, marker byte, n int) error {
	if err := out.WriteByte(marker); err != nil {
		return err
	}
	if _, err := out.Write(strconv.AppendInt(e.num[:0], int64(n), 10)); err != nil {
		return err
	}
	_, err := out.Write(Terminal)
	return err
}

func (e *Encoder) writeBulk(out *Buffer, payload []byte) error {
	if err := e.writeHeader(out, '$', len(payload)); err != nil {
		return err
	}
	if _, err := out.Write(payload); err != nil {
		return err
	}
	_, err := out.Write(Terminal)
	return err
}

// SplitTemplate splits a command template into its whitespace delimited
// tokens.
func SplitTemplate(template string) []string {
	var tokens []string

	for i := 0; i < len(template); {
		for i < len(template) && isSpace(template[i]) {
			i++
		}
		start := i
		for i < len(template) && !isSpace(template[i]) {
			i++
		}
		if i > start {
			tokens = append(tokens, template[start:i])
		}
	}

	return tokens
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
