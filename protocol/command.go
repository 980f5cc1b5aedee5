package protocol

import "strings"

type Command string

const (
	QUIT        Command = "QUIT"
	PING        Command = "PING"
	ECHO        Command = "ECHO"
	SET         Command = "SET"
	GET         Command = "GET"
	DEL         Command = "DEL"
	EXISTS      Command = "EXISTS"
	KEYS        Command = "KEYS"
	INCR        Command = "INCR"
	INCRBYFLOAT Command = "INCRBYFLOAT"
	FLUSHALL    Command = "FLUSHALL"
	MULTI       Command = "MULTI"
	EXEC        Command = "EXEC"
	SUBSCRIBE   Command = "SUBSCRIBE"
	UNSUBSCRIBE Command = "UNSUBSCRIBE"
	PUBLISH     Command = "PUBLISH"
)

// CommandFrom normalises a command name, command names are case insensitive.
func CommandFrom(name []byte) Command {
	return Command(strings.ToUpper(string(name)))
}
