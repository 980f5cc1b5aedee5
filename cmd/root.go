package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/ramis/client"
	"github.com/luma/ramis/cmd/gen"
	"github.com/luma/ramis/internal/env"
)

var (
	// The server to connect to, these override RAMIS_HOST and RAMIS_PORT
	host string
	port int

	// How long to wait for reply data, overrides RAMIS_TIMEOUT
	timeout time.Duration

	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ramis",
	Short: "Talk to Ramis and Redis compatible key-value servers",
	Long: `Talk to Ramis and Redis compatible key-value servers

Connection settings come from RAMIS_* environment variables (or a .env.local
file) and can be overridden with flags.
`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&host, "host", "a", "", "The server host (default $RAMIS_HOST or 127.0.0.1)")
	flags.IntVarP(&port, "port", "p", 0, "The server port (default $RAMIS_PORT or 6379)")
	flags.DurationVar(&timeout, "timeout", 0, "How long to wait for reply data (default $RAMIS_TIMEOUT or 3s)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default $RAMIS_LOG_LEVEL or info)")

	rootCmd.AddCommand(SendCmd, RawCmd, SubscribeCmd, BenchCmd, ServeCmd, VersionCmd, gen.RootCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config, applies flag overrides and builds the logger.
func setup(ctx context.Context) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	if host != "" {
		conf.Host = host
	}
	if port != 0 {
		conf.Port = port
	}
	if timeout != 0 {
		conf.Timeout = timeout
	}
	if logLevel != "" {
		conf.LogLevel = logLevel
	}

	log, err := env.MakeLogger(conf.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	return conf, log, nil
}

func sessionOptions(conf *env.Config, log *zap.Logger) client.Options {
	return client.Options{
		Timeout:       conf.Timeout,
		BufferSize:    conf.BufferSize,
		MaxBufferSize: conf.MaxBufferSize,
		Log:           log,
	}
}

func connect(ctx context.Context, conf *env.Config, log *zap.Logger) (*client.Session, error) {
	return client.Connect(ctx, conf.Host, conf.Port, sessionOptions(conf, log))
}
