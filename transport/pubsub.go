package transport

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/luma/ramis/protocol"
)

const keyspacePrefix = "__keyspace__:"

// KeyspaceChannel is the channel "set" and "del" events for key are
// published on.
func KeyspaceChannel(key []byte) string {
	return keyspacePrefix + string(key)
}

// PubSub routes published messages to the connections subscribed to a
// channel.
type PubSub struct {
	mu       sync.RWMutex
	channels map[string]map[*TCPConn]struct{}
}

func NewPubSub() *PubSub {
	return &PubSub{
		channels: make(map[string]map[*TCPConn]struct{}),
	}
}

func (p *PubSub) Subscribe(channel string, conn *TCPConn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subscribers, ok := p.channels[channel]
	if !ok {
		subscribers = make(map[*TCPConn]struct{})
		p.channels[channel] = subscribers
	}
	subscribers[conn] = struct{}{}
}

func (p *PubSub) Unsubscribe(channel string, conn *TCPConn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.remove(channel, conn)
}

// UnsubscribeAll drops every subscription conn holds.
func (p *PubSub) UnsubscribeAll(conn *TCPConn) {
	conn.subMu.Lock()
	channels := make([]string, 0, len(conn.subscriptions))
	for channel := range conn.subscriptions {
		channels = append(channels, channel)
	}
	conn.subscriptions = make(map[string]struct{})
	conn.subMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, channel := range channels {
		p.remove(channel, conn)
	}
}

func (p *PubSub) remove(channel string, conn *TCPConn) {
	subscribers, ok := p.channels[channel]
	if !ok {
		return
	}

	delete(subscribers, conn)
	if len(subscribers) == 0 {
		delete(p.channels, channel)
	}
}

// Publish sends msg to every subscriber of channel and returns how many got
// it. Subscribers whose connection is closing are skipped and reported in
// the error.
func (p *PubSub) Publish(channel string, msg []byte) (int, error) {
	p.mu.RLock()
	subscribers := make([]*TCPConn, 0, len(p.channels[channel]))
	for conn := range p.channels[channel] {
		subscribers = append(subscribers, conn)
	}
	p.mu.RUnlock()

	if len(subscribers) == 0 {
		return 0, nil
	}

	var out bytes.Buffer
	if err := protocol.WriteBulks(&out, []byte("message"), []byte(channel), msg); err != nil {
		return 0, err
	}

	var (
		sent int
		err  error
	)
	for _, conn := range subscribers {
		if !conn.isRunning() {
			err = multierr.Append(err, fmt.Errorf("%s: %w", conn.conn.RemoteAddr(), ErrConnClosed))
			continue
		}

		if _, werr := conn.Write(out.Bytes()); werr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", conn.conn.RemoteAddr(), werr))
			continue
		}
		sent++
	}

	return sent, err
}

// NumSubscribers is how many connections are subscribed to channel.
func (p *PubSub) NumSubscribers(channel string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.channels[channel])
}

// subscribe adds channel to this connection's subscriptions and returns how
// many it now has.
func (t *TCPConn) subscribe(channel string) int {
	t.subMu.Lock()
	t.subscriptions[channel] = struct{}{}
	count := len(t.subscriptions)
	t.subMu.Unlock()

	t.srv.pubsub.Subscribe(channel, t)
	return count
}

func (t *TCPConn) unsubscribe(channel string) int {
	t.subMu.Lock()
	delete(t.subscriptions, channel)
	count := len(t.subscriptions)
	t.subMu.Unlock()

	t.srv.pubsub.Unsubscribe(channel, t)
	return count
}

func (t *TCPConn) subscribedChannels() [][]byte {
	t.subMu.Lock()
	names := make([]string, 0, len(t.subscriptions))
	for channel := range t.subscriptions {
		names = append(names, channel)
	}
	t.subMu.Unlock()

	sort.Strings(names)

	channels := make([][]byte, len(names))
	for i, name := range names {
		channels[i] = []byte(name)
	}
	return channels
}
