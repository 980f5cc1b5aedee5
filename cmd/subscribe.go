package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/ramis/protocol"
)

// Stop after this many messages, 0 keeps listening until interrupted
var messageCount int

var SubscribeCmd = &cobra.Command{
	Use:   "subscribe CHANNEL [CHANNEL...]",
	Short: "Subscribe to channels and print messages as they arrive",
	Long: `Subscribe to channels and print messages as they arrive

Replies are waited for without a timeout while subscribed. Use --count to
stop after a number of messages, or interrupt it.

Usage
	ramis subscribe news weather
	ramis subscribe --count 1 '__keyspace__:greeting'

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

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

		session.SetWaitForever(true)

		command := append([]protocol.Arg{protocol.Text("SUBSCRIBE")}, protocol.Args(args...)...)
		reply, err := session.Send(command...)
		if err != nil {
			return err
		}
		if err := serverError(session); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if err := printReply(out, reply); err != nil {
			return err
		}

		// One confirmation per channel, the first came with the reply above
		for i := 1; i < len(args); i++ {
			if reply, err = session.GetReply(); err != nil {
				return err
			}
			if err := printReply(out, reply); err != nil {
				return err
			}
		}

		for received := 0; messageCount == 0 || received < messageCount; received++ {
			reply, err := session.GetReply()
			if err != nil {
				return err
			}

			log.Debug("Message received", zap.Int("items", reply.Len()))

			if err := printReply(out, reply); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	flags := SubscribeCmd.Flags()

	flags.IntVarP(&messageCount, "count", "n", 0, "Stop after this many messages")
	flags.BoolVar(&asJSON, "json", false, "Print messages as JSON")
}
