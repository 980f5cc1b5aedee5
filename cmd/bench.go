package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/ramis/client"
)

var (
	// Concurrent workers, each holds its own session while it runs a round
	workers int

	// SET, GET, DEL rounds per worker
	rounds int

	valueSize int
)

var BenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure SET/GET/DEL round trips from concurrent workers",
	Long: `Measure SET/GET/DEL round trips from concurrent workers

Every worker runs its rounds on its own key, borrowing a session from a pool
for each command.

Usage
	ramis bench --workers 8 --rounds 10000

`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync() // nolint: errcheck

		pool, err := client.NewPool(client.PoolOptions{
			Host:    conf.Host,
			Port:    conf.Port,
			MaxSize: int32(workers),
			Session: sessionOptions(conf, log),
		})
		if err != nil {
			return err
		}
		defer pool.Close()

		value := make([]byte, valueSize)
		for i := range value {
			value[i] = 'a' + byte(i%26)
		}

		var (
			commands int64
			wg       sync.WaitGroup
			mu       sync.Mutex
			errs     error
		)

		start := time.Now()

		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()

				key := fmt.Sprintf("bench:%d", w)
				for r := 0; r < rounds && ctx.Err() == nil; r++ {
					if err := benchRound(ctx, pool, key, value); err != nil {
						mu.Lock()
						errs = multierr.Append(errs, err)
						mu.Unlock()
						return
					}
					atomic.AddInt64(&commands, 3)
				}
			}(w)
		}

		wg.Wait()
		elapsed := time.Since(start)

		stats := pool.Stats()
		log.Info("Benchmark finished",
			zap.Int64("commands", commands),
			zap.Duration("elapsed", elapsed),
			zap.Int32("sessions", stats.Total),
			zap.Int64("acquires", stats.Acquires))

		fmt.Fprintf(cmd.OutOrStdout(), "%d commands in %s, %.0f commands/s\n",
			commands, elapsed, float64(commands)/elapsed.Seconds())

		return errs
	},
}

func init() {
	flags := BenchCmd.Flags()

	flags.IntVarP(&workers, "workers", "w", 4, "Number of concurrent workers")
	flags.IntVarP(&rounds, "rounds", "r", 1000, "SET/GET/DEL rounds per worker")
	flags.IntVar(&valueSize, "value-size", 64, "Size of the values written, in bytes")
}

func benchRound(ctx context.Context, pool *client.Pool, key string, value []byte) error {
	reply, err := pool.Send(ctx, "SET %s %b", key, value)
	if err != nil {
		return err
	}
	if msg, ok := reply.ErrorMessage(); ok {
		return &client.ServerError{Message: msg}
	}

	reply, err = pool.Send(ctx, "GET %s", key)
	if err != nil {
		return err
	}
	if got := reply.First(); got.IsNull() || len(got.Data) != len(value) {
		return fmt.Errorf("GET %s returned %s", key, got)
	}

	_, err = pool.Send(ctx, "DEL %s", key)
	return err
}
