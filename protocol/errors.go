package protocol

import "errors"

var (
	// ErrProtocol is returned when the byte stream does not follow the wire
	// grammar. The stream offset can no longer be trusted once it is seen.
	ErrProtocol = errors.New("Protocol error")

	// ErrBufferLimit is returned when a buffer would have to grow past its
	// configured maximum.
	ErrBufferLimit = errors.New("Buffer limit exceeded")

	// ErrUnknownPlaceholder is returned for a '%' sequence a command template
	// does not support.
	ErrUnknownPlaceholder = errors.New("Invalid % code in command template")

	// ErrMissingArgument is returned when a template has more placeholders
	// than arguments.
	ErrMissingArgument = errors.New("Command template is missing an argument")

	// ErrExtraArguments is returned when arguments are left over after every
	// placeholder of a template was substituted.
	ErrExtraArguments = errors.New("Command template was given too many arguments")

	// ErrArgumentType is returned when an argument does not match its
	// placeholder.
	ErrArgumentType = errors.New("Command argument does not match its placeholder")

	// ErrEmptyCommand is returned for a command with no tokens.
	ErrEmptyCommand = errors.New("Command is empty")
)
