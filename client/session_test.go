package client_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ramis/client"
	"github.com/luma/ramis/protocol"
	"github.com/luma/ramis/transport"
)

var _ = Describe("Session", func() {
	ctx := context.Background()

	Describe("against canned replies", func() {
		var (
			srv     *fakeServer
			session *client.Session
		)

		connect := func(handle func(conn net.Conn), options client.Options) {
			srv = newFakeServer(handle)

			host, port := srv.hostPort()

			var err error
			session, err = client.Connect(ctx, host, port, options)
			Expect(err).To(Succeed())
		}

		AfterEach(func() {
			Expect(session.Close()).To(Succeed())
			srv.Close()
		})

		It("decodes a simple string reply", func() {
			connect(replyWith("+OK\r\n"), client.Options{})

			reply, err := session.SendCommand("SET foo bar")
			Expect(err).To(Succeed())
			Expect(reply.Items).To(Equal([]protocol.Item{
				{Kind: protocol.KindSimpleString, Data: []byte("OK")},
			}))
			Expect(session.LastError()).To(BeNil())
		})

		It("decodes a null reply", func() {
			connect(replyWith("$-1\r\n"), client.Options{})

			reply, err := session.SendCommand("GET missingkey")
			Expect(err).To(Succeed())
			Expect(reply.Items).To(Equal([]protocol.Item{{Kind: protocol.KindNull}}))
		})

		It("sends exactly the encoded command", func() {
			const expected = "*3\r\n$3\r\nSET\r\n$1\r\nn\r\n$2\r\n42\r\n"
			received := make(chan string, 1)

			connect(func(conn net.Conn) {
				buf := make([]byte, len(expected))
				if _, err := io.ReadFull(conn, buf); err != nil {
					return
				}
				received <- string(buf)
				conn.Write([]byte("+OK\r\n"))
			}, client.Options{})

			_, err := session.SendCommand("SET %s %d", "n", 42)
			Expect(err).To(Succeed())
			Expect(received).To(Receive(Equal(expected)))
		})

		It("reassembles replies that arrive in pieces", func() {
			connect(func(conn net.Conn) {
				buf := make([]byte, 512)
				if _, err := conn.Read(buf); err != nil {
					return
				}
				for _, part := range []string{"*2\r\n$11\r\nhel", "lo world\r", "\n:7", "\r\n"} {
					if _, err := conn.Write([]byte(part)); err != nil {
						return
					}
					time.Sleep(20 * time.Millisecond)
				}
			}, client.Options{})

			reply, err := session.SendCommand("MGET a b")
			Expect(err).To(Succeed())
			Expect(reply.Array).To(BeTrue())
			Expect(reply.Items[0].Text()).To(Equal("hello world"))
			Expect(reply.Items[1].Int).To(Equal(int64(7)))
		})

		It("grows its read buffer for large replies", func() {
			value := strings.Repeat("x", 10000)
			connect(replyWith("$10000\r\n"+value+"\r\n"), client.Options{BufferSize: 64})

			reply, err := session.SendCommand("GET big")
			Expect(err).To(Succeed())
			Expect(reply.First().Text()).To(Equal(value))
		})

		It("fails replies larger than the buffer limit", func() {
			value := strings.Repeat("x", 1000)
			connect(replyWith("$1000\r\n"+value+"\r\n"), client.Options{BufferSize: 64, MaxBufferSize: 256})

			reply, err := session.SendCommand("GET big")
			Expect(reply).To(BeNil())
			Expect(err).To(MatchError(client.ErrBufferLimit))

			_, err = session.SendCommand("PING")
			Expect(err).To(MatchError(client.ErrReconnectRequired))
		})

		It("reports the server's error message", func() {
			connect(replyWith("-ERR wrong kind of value\r\n"), client.Options{})

			reply, err := session.SendCommand("INCR s")
			Expect(err).To(Succeed())
			Expect(reply).NotTo(BeNil())

			var srvErr *client.ServerError
			Expect(errors.As(session.LastError(), &srvErr)).To(BeTrue())
			Expect(srvErr.Message).To(Equal("ERR wrong kind of value"))
		})

		It("reports no server error for an array reply holding one", func() {
			connect(replyWith("*2\r\n-ERR x\r\n+OK\r\n"), client.Options{})

			reply, err := session.SendCommand("EXEC")
			Expect(err).To(Succeed())
			Expect(reply.Len()).To(Equal(2))
			Expect(reply.First().Kind).To(Equal(protocol.KindError))
			Expect(session.LastError()).To(BeNil())
			Expect(session.Healthy()).To(BeTrue())
		})

		It("reads a long error message over many reads", func() {
			msg := "ERR " + strings.Repeat("e", protocol.MaxLineLength+4096)
			connect(replyWith("-"+msg+"\r\n"), client.Options{BufferSize: 1024})

			reply, err := session.SendCommand("PING")
			Expect(err).To(Succeed())
			Expect(reply.First().Text()).To(Equal(msg))

			var srvErr *client.ServerError
			Expect(errors.As(session.LastError(), &srvErr)).To(BeTrue())
			Expect(srvErr.Message).To(Equal(msg))
			Expect(session.Healthy()).To(BeTrue())
		})

		It("refuses to send while reply bytes are still pending", func() {
			connect(replyWith("+OK\r\n+EXTRA\r\n"), client.Options{})

			reply, err := session.SendCommand("PING")
			Expect(err).To(Succeed())
			Expect(reply.First().Text()).To(Equal("OK"))
			Expect(session.Healthy()).To(BeFalse())

			reply, err = session.SendCommand("PING")
			Expect(reply).To(BeNil())
			Expect(err).To(MatchError(client.ErrUnconsumedReply))
			Expect(session.LastError()).To(MatchError(client.ErrUnconsumedReply))

			reply, err = session.GetReply()
			Expect(err).To(Succeed())
			Expect(reply.First().Text()).To(Equal("EXTRA"))
			Expect(session.Healthy()).To(BeTrue())
		})

		It("times out, reconnects, and fails the call", func() {
			connect(func(conn net.Conn) {
				// never answer
				io.Copy(io.Discard, conn)
			}, client.Options{Timeout: 100 * time.Millisecond})

			before := session.Conn()

			start := time.Now()
			reply, err := session.SendCommand("GET slow")
			Expect(time.Since(start)).To(BeNumerically(">=", 100*time.Millisecond))

			Expect(reply).To(BeNil())
			Expect(err).To(MatchError(client.ErrReadTimeout))
			Expect(session.LastError()).To(MatchError(client.ErrReadTimeout))

			Expect(session.Conn()).NotTo(BeNil())
			Expect(session.Conn()).NotTo(BeIdenticalTo(before))
			Expect(session.Healthy()).To(BeTrue())
			Eventually(srv.accepted).Should(Equal(2))
		})

		It("leaves the session usable after an encoding error", func() {
			connect(replyWith("+PONG\r\n"), client.Options{})

			reply, err := session.SendCommand("GET %x", 1)
			Expect(reply).To(BeNil())
			Expect(err).To(MatchError(client.ErrUnknownPlaceholder))
			Expect(session.LastError()).To(MatchError(client.ErrUnknownPlaceholder))
			Expect(session.Healthy()).To(BeTrue())

			reply, err = session.SendCommand("PING")
			Expect(err).To(Succeed())
			Expect(reply.First().Text()).To(Equal("PONG"))
			Expect(session.LastError()).To(BeNil())
		})

		It("breaks on malformed replies", func() {
			connect(replyWith("?garbage\r\n"), client.Options{})

			_, err := session.SendCommand("PING")
			Expect(err).To(MatchError(client.ErrProtocol))

			_, err = session.SendCommand("PING")
			Expect(err).To(MatchError(client.ErrReconnectRequired))
		})
	})

	Describe("against the local server", func() {
		var (
			tcp     *transport.TCP
			session *client.Session
		)

		BeforeEach(func() {
			tcp = startServer()
			session = connectTo(tcp, client.Options{})
		})

		AfterEach(func() {
			Expect(session.Close()).To(Succeed())
			Expect(tcp.Close()).To(Succeed())
		})

		It("stores and reads values", func() {
			reply, err := session.SendCommand("SET %s %b", "greeting", []byte("hello\r\nworld"))
			Expect(err).To(Succeed())
			Expect(reply.First().Text()).To(Equal("OK"))

			reply, err = session.Send(protocol.Args("GET", "greeting")...)
			Expect(err).To(Succeed())
			Expect(reply.First().Data).To(Equal([]byte("hello\r\nworld")))
		})

		It("reads integer and float replies", func() {
			reply, err := session.SendCommand("INCR %s", "n")
			Expect(err).To(Succeed())
			Expect(reply.First().Int).To(Equal(int64(1)))

			reply, err = session.SendCommand("INCRBYFLOAT %s %lf", "f", 2.25)
			Expect(err).To(Succeed())
			Expect(reply.First().Kind).To(Equal(protocol.KindFloat))
			Expect(reply.First().Float).To(Equal(2.25))
		})

		It("returns one item per key of a KEYS reply", func() {
			for i := 0; i < 100; i++ {
				_, err := session.SendCommand("SET mykey%d %d", i, i)
				Expect(err).To(Succeed())
			}

			reply, err := session.SendCommand("KEYS mykey*")
			Expect(err).To(Succeed())
			Expect(reply.Len()).To(Equal(100))
			Expect(reply.Array).To(BeTrue())
		})

		It("sends hand written inline commands with Write", func() {
			Expect(session.Write([]byte("ECHO hi\r\n"))).To(Succeed())

			reply, err := session.GetReply()
			Expect(err).To(Succeed())
			Expect(reply.First().Text()).To(Equal("hi"))
		})

		It("needs a reconnect after the server hangs up", func() {
			_, err := session.SendCommand("QUIT")
			Expect(err).To(Succeed())

			_, err = session.SendCommand("PING")
			Expect(err).To(HaveOccurred())
			Expect(session.Healthy()).To(BeFalse())

			_, err = session.SendCommand("PING")
			Expect(err).To(MatchError(client.ErrReconnectRequired))

			Expect(session.Reconnect(ctx)).To(Succeed())
			Expect(session.LastError()).To(BeNil())
			Expect(session.Healthy()).To(BeTrue())

			reply, err := session.SendCommand("PING")
			Expect(err).To(Succeed())
			Expect(reply.First().Text()).To(Equal("PONG"))
		})

		It("behaves like a new session after Reconnect", func() {
			Expect(session.Write([]byte("PING\r\nPING\r\n"))).To(Succeed())
			_, err := session.GetReply()
			Expect(err).To(Succeed())

			Expect(session.Reconnect(ctx)).To(Succeed())

			fresh := connectTo(tcp, client.Options{})
			defer fresh.Close()

			for _, s := range []*client.Session{session, fresh} {
				Expect(s.Healthy()).To(BeTrue())

				reply, err := s.SendCommand("ECHO %s", "same")
				Expect(err).To(Succeed())
				Expect(reply.String()).To(Equal(`"same"`))
			}
		})

		It("waits for published messages while subscribed", func() {
			publisher := connectTo(tcp, client.Options{})
			defer publisher.Close()

			session.SetWaitForever(true)
			Expect(session.WaitForever()).To(BeTrue())

			reply, err := session.SendCommand("SUBSCRIBE %s", "news")
			Expect(err).To(Succeed())
			Expect(reply.Items[0].Text()).To(Equal("subscribe"))

			go func() {
				defer GinkgoRecover()

				time.Sleep(50 * time.Millisecond)
				_, err := publisher.SendCommand("PUBLISH news %s", "hello")
				Expect(err).To(Succeed())
			}()

			reply, err = session.GetReply()
			Expect(err).To(Succeed())
			Expect(reply.Array).To(BeTrue())
			Expect(reply.Items).To(HaveLen(3))
			Expect(reply.Items[0].Text()).To(Equal("message"))
			Expect(reply.Items[1].Text()).To(Equal("news"))
			Expect(reply.Items[2].Text()).To(Equal("hello"))
		})

		It("rejects commands that do not fit the buffer limit and stays in sync", func() {
			small := connectTo(tcp, client.Options{BufferSize: 16, MaxBufferSize: 64})
			defer small.Close()

			_, err := small.SendCommand("SET k %b", bytes.Repeat([]byte("v"), 100))
			Expect(err).To(MatchError(client.ErrBufferLimit))
			Expect(small.Healthy()).To(BeTrue())

			reply, err := small.SendCommand("PING")
			Expect(err).To(Succeed())
			Expect(reply.First().Text()).To(Equal("PONG"))
		})
	})

	Describe("Connect()", func() {
		It("reports hosts that do not resolve", func() {
			_, err := client.Connect(ctx, "ramis.invalid", 6379, client.Options{ConnectTimeout: 2 * time.Second})
			Expect(err).To(MatchError(client.ErrUnknownHost))
		})

		It("reports refused connections", func() {
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).To(Succeed())
			host, port := splitAddr(listener.Addr().String())
			listener.Close()

			_, err = client.Connect(ctx, host, port, client.Options{})
			Expect(err).To(MatchError(client.ErrConnect))
		})
	})

	Describe("Close()", func() {
		It("can be called twice and fails later calls", func() {
			tcp := startServer()
			defer tcp.Close()

			session := connectTo(tcp, client.Options{})
			Expect(session.Close()).To(Succeed())
			Expect(session.Close()).To(Succeed())

			_, err := session.SendCommand("PING")
			Expect(err).To(MatchError(client.ErrClosed))
			Expect(session.Reconnect(ctx)).To(MatchError(client.ErrClosed))
			Expect(session.Healthy()).To(BeFalse())
		})
	})
})
