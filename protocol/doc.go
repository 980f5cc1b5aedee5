package protocol

// This package implements encoding and decoding for the wire protocol that
// Ramis (and Redis) servers speak with their clients.
//
// The protocol is RESP: every value starts with a one byte type marker and
// every header line ends in `\r\n`.
//
// - `+` - Simple string, `+OK\r\n`
// - `-` - Error message, `-ERR unknown command\r\n`
// - `:` - Integer, `:42\r\n`
// - `$` - Bulk string, binary safe, `$3\r\nbar\r\n`. `$-1\r\n` is null.
// - `*` - Array, `*2\r\n` followed by two values. `*-1\r\n` is null.
//
// === Commands
//
// Clients send each command as an array of bulk strings, one per word:
//
//   ```
//     SET n 42
//
//     *3\r\n$3\r\nSET\r\n$1\r\nn\r\n$2\r\n42\r\n
//   ```
//
// Servers also accept inline commands, a line of whitespace separated words
// that is not prefixed with a type marker:
//
//   ```
//     SET n 42\r\n
//   ```
//
// A Decoder created in server mode turns those into PlainText items.
//
// === Floats
//
// Ramis knows floating point values natively and sends them behind the
// integer marker in exponent form:
//
//   ```
//     :3.1428571428571428e+00\r\n
//   ```
//
// The `,` marker is accepted for floats as well. Neither will come from a
// generic Redis server.
//
// === Reassembly
//
// Replies arrive over a stream and can be split at any byte. The Decoder is
// always handed the whole of what has been received for the current reply
// and reports Incomplete until a full reply is present. There is no way to
// resynchronise a stream once a malformed reply has been seen.
//
