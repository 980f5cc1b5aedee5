package client

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/luma/ramis/protocol"
)

type PoolOptions struct {
	Host string
	Port int

	// MaxSize is the most sessions open at once. Defaults to 4.
	MaxSize int32

	// BreakerTimeout is how long the breaker stays open before letting a
	// trial request through. Defaults to 5s.
	BreakerTimeout time.Duration

	Session Options
}

// PoolStats is a snapshot of a Pool.
type PoolStats struct {
	Total    int32
	Idle     int32
	Acquired int32
	Acquires int64
}

// Pool hands out Sessions to one caller at a time. A Session is never
// shared, concurrency comes from having several of them.
type Pool struct {
	pool    *puddle.Pool[*Session]
	breaker *gobreaker.CircuitBreaker[*protocol.Reply]
	log     *zap.Logger
}

func NewPool(options PoolOptions) (*Pool, error) {
	if options.MaxSize < 1 {
		options.MaxSize = 4
	}
	if options.BreakerTimeout <= 0 {
		options.BreakerTimeout = 5 * time.Second
	}

	sessionOpts := options.Session.withDefaults()
	log := sessionOpts.Log.Named("pool")

	p := &Pool{log: log}

	pool, err := puddle.NewPool(&puddle.Config[*Session]{
		Constructor: func(ctx context.Context) (*Session, error) {
			return Connect(ctx, options.Host, options.Port, sessionOpts)
		},
		Destructor: func(s *Session) {
			_ = s.Close()
		},
		MaxSize: options.MaxSize,
	})
	if err != nil {
		return nil, err
	}
	p.pool = pool

	p.breaker = gobreaker.NewCircuitBreaker[*protocol.Reply](gobreaker.Settings{
		Name:    "ramis",
		Timeout: options.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransportError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return p, nil
}

// Do runs fn with a Session nobody else holds until fn returns. A Session
// that is not healthy afterwards is closed instead of going back to the
// pool.
func (p *Pool) Do(ctx context.Context, fn func(s *Session) error) error {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	// runs on panic too, or Close would wait on the resource forever
	defer func() {
		if res.Value().Healthy() {
			res.Release()
		} else {
			res.Destroy()
		}
	}()

	return fn(res.Value())
}

// Send runs SendCommand on a pooled Session behind a circuit breaker.
// Server error replies do not count as failures.
func (p *Pool) Send(ctx context.Context, template string, args ...interface{}) (*protocol.Reply, error) {
	return p.breaker.Execute(func() (*protocol.Reply, error) {
		var reply *protocol.Reply

		err := p.Do(ctx, func(s *Session) (err error) {
			reply, err = s.SendCommand(template, args...)
			return err
		})

		return reply, err
	})
}

func (p *Pool) Stats() PoolStats {
	s := p.pool.Stat()

	return PoolStats{
		Total:    s.TotalResources(),
		Idle:     s.IdleResources(),
		Acquired: s.AcquiredResources(),
		Acquires: s.AcquireCount(),
	}
}

// Close closes every Session. It waits for acquired ones to be returned.
func (p *Pool) Close() {
	p.pool.Close()
}

// isTransportError tells connection trouble apart from mistakes in the
// command itself, which say nothing about the server's health.
func isTransportError(err error) bool {
	switch {
	case errors.Is(err, protocol.ErrUnknownPlaceholder),
		errors.Is(err, protocol.ErrMissingArgument),
		errors.Is(err, protocol.ErrExtraArguments),
		errors.Is(err, protocol.ErrArgumentType),
		errors.Is(err, protocol.ErrEmptyCommand),
		errors.Is(err, ErrUnconsumedReply):
		return false
	}
	return true
}
