package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

var RawCmd = &cobra.Command{
	Use:   "raw LINE",
	Short: "Write a line to the server as is and print the reply",
	Long: `Write a line to the server as is and print the reply

This is meant for inline commands, the line is terminated with CRLF.

Usage
	ramis raw 'SET greeting hello'

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

		if err := session.Write([]byte(strings.Join(args, " ") + "\r\n")); err != nil {
			return err
		}

		reply, err := session.GetReply()
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
	RawCmd.Flags().BoolVar(&asJSON, "json", false, "Print the reply as JSON")
}
