package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/ramis/storage"
	"github.com/luma/ramis/transport"
)

var (
	// The host to listen on
	listenHost string

	// The port to listen for http requests on, empty disables the debug
	// HTTP server
	httpPort string

	// The port to listen for tcp clients on
	listenPort int

	// Number of listeners sharing the port with SO_REUSEPORT
	numListeners int

	// Log every request at debug level
	trace bool
)

func init() {
	flags := ServeCmd.Flags()

	flags.IntVar(&listenPort, "listen-port", 6379, "The port to listen client connections on")
	flags.StringVar(&httpPort, "http-port", "", "The port to listen to debug HTTP requests on")
	flags.StringVar(&listenHost, "listen-host", "127.0.0.1", "The host to listen on")
	flags.IntVar(&numListeners, "listeners", 1, "The number of listeners sharing the port")
	flags.BoolVar(&trace, "trace", false, "Log every request at debug level")
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a local in-memory server to develop against",
	Long: `Start a local in-memory server to develop against

It understands PING, ECHO, SET, GET, DEL, EXISTS, KEYS, INCR, INCRBYFLOAT,
FLUSHALL, MULTI, EXEC, SUBSCRIBE, UNSUBSCRIBE, PUBLISH and QUIT. Every write
is published on the key's __keyspace__ channel.

Usage
	ramis serve --listen-port 6379 --http-port 6380

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync() // nolint: errcheck

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		store := storage.NewInmemoryStore()
		defer store.Close()

		tcp := transport.NewTCP(transport.Options{
			Host:           listenHost,
			Port:           listenPort,
			Reuseport:      numListeners > 1,
			NumListeners:   numListeners,
			Trace:          trace,
			MaxRequestSize: conf.MaxBufferSize,
			Store:          store,
			Log:            log.Named("transport"),
		})

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		var s *http.Server
		if httpPort != "" {
			s = &http.Server{
				Addr:    net.JoinHostPort(listenHost, httpPort),
				Handler: setupRouter(conf.DebugHTTP, store, log),
			}

			// Initializing the server in a goroutine so that
			// it won't block the graceful shutdown handling below
			go func() {
				if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Http server errored", zap.Error(err))
				}
			}()
		}

		log.Info("Listening",
			zap.String("addr", tcp.Addr()),
			zap.String("httpPort", httpPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		if s != nil {
			// The context is used to inform the server it has 5 seconds to finish
			// the request it is currently handling
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			s.SetKeepAlivesEnabled(false)

			if err := s.Shutdown(ctx); err != nil {
				log.Error("Http server forced to shutdown", zap.Error(err))
			}
		}

		if err := tcp.Close(); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func setupRouter(debugHTTP bool, store storage.Store, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs all requests except health checks, RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	// The whole keyspace as the store's JSON document, values base64 encoded
	r.GET("/keys", func(c *gin.Context) {
		doc, err := store.Backup()
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.Data(http.StatusOK, "application/json", doc)
	})

	// Replaces the keyspace with a document fetched from /keys
	r.PUT("/keys", func(c *gin.Context) {
		doc, err := c.GetRawData()
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}

		if err := store.Restore(doc); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.GET("/keys/count", func(c *gin.Context) {
		keys, err := store.Keys(c.Request.Context(), "*")
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.String(http.StatusOK, strconv.Itoa(len(keys)))
	})

	return r
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
