package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/luma/ramis/client"
	"github.com/luma/ramis/protocol"
)

// When set, the first argument is a command template whose %s placeholders
// take the remaining arguments
var template bool

var SendCmd = &cobra.Command{
	Use:   "send COMMAND [ARG...]",
	Short: "Send one command and print the reply",
	Long: `Send one command and print the reply

Usage
	ramis send SET greeting hello
	ramis send --template 'SET %s %s' greeting 'hello world'
	ramis send --json KEYS '*'

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync() // nolint: errcheck

		session, err := connect(ctx, conf, log)
		if err != nil {
			return err
		}
		defer session.Close()

		var reply *protocol.Reply
		if template {
			values := make([]interface{}, len(args)-1)
			for i, arg := range args[1:] {
				values[i] = arg
			}
			reply, err = session.SendCommand(args[0], values...)
		} else {
			reply, err = session.Send(protocol.Args(args...)...)
		}
		if err != nil {
			return err
		}

		if err := printReply(cmd.OutOrStdout(), reply); err != nil {
			return err
		}

		return serverError(session)
	},
}

func init() {
	flags := SendCmd.Flags()

	flags.BoolVarP(&template, "template", "t", false, "Treat the first argument as a command template")
	flags.BoolVar(&asJSON, "json", false, "Print the reply as JSON")
}

// serverError makes the command exit non-zero when the server replied with
// an error.
func serverError(session *client.Session) error {
	var srvErr *client.ServerError
	if errors.As(session.LastError(), &srvErr) {
		return srvErr
	}
	return nil
}
