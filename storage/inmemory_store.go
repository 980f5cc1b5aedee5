package storage

import (
	"context"
	"encoding/base64"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// InmemoryStore keeps every key in a single JSON document, so Backup and
// Restore are just the document. Values are binary, they are stored base64
// encoded.
type InmemoryStore struct {
	valuesMu sync.RWMutex
	values   []byte

	mu          sync.Mutex
	updateChans []chan *Update

	// stop willl be closed when Close() is called
	stop chan struct{}
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values:      []byte("{}"),
		stop:        make(chan struct{}),
		updateChans: make([]chan *Update, 0),
	}
}

func (i *InmemoryStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return nil
	}
	close(i.stop)

	for _, updateChan := range i.updateChans {
		close(updateChan)
	}
	i.updateChans = nil

	return nil
}

func (i *InmemoryStore) Set(ctx context.Context, key []byte, value []byte) (err error) {
	i.valuesMu.Lock()
	i.values, err = sjson.SetBytes(i.values, escapeKey(key), base64.StdEncoding.EncodeToString(value))
	i.valuesMu.Unlock()

	if err != nil {
		return err
	}

	i.notify(key, value)
	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	i.valuesMu.RLock()
	result := gjson.GetBytes(i.values, escapeKey(key))
	i.valuesMu.RUnlock()

	if !result.Exists() {
		return nil, false, nil
	}

	value, err := base64.StdEncoding.DecodeString(result.String())
	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

func (i *InmemoryStore) Delete(ctx context.Context, keys ...[]byte) (int, error) {
	i.valuesMu.Lock()

	deleted := make([][]byte, 0, len(keys))
	for _, key := range keys {
		path := escapeKey(key)
		if !gjson.GetBytes(i.values, path).Exists() {
			continue
		}

		values, err := sjson.DeleteBytes(i.values, path)
		if err != nil {
			i.valuesMu.Unlock()
			return len(deleted), err
		}

		i.values = values
		deleted = append(deleted, key)
	}

	i.valuesMu.Unlock()

	for _, key := range deleted {
		i.notify(key, nil)
	}

	return len(deleted), nil
}

// Keys returns the keys matching a glob pattern, sorted.
func (i *InmemoryStore) Keys(ctx context.Context, pattern string) ([][]byte, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	var keys []string

	i.valuesMu.RLock()
	gjson.ParseBytes(i.values).ForEach(func(key, _ gjson.Result) bool {
		if ok, _ := path.Match(pattern, key.String()); ok {
			keys = append(keys, key.String())
		}
		return true
	})
	i.valuesMu.RUnlock()

	sort.Strings(keys)

	out := make([][]byte, len(keys))
	for n, key := range keys {
		out[n] = []byte(key)
	}

	return out, nil
}

func (i *InmemoryStore) Incr(ctx context.Context, key []byte, delta int64) (int64, error) {
	var n int64

	err := i.update(key, func(old []byte, found bool) ([]byte, error) {
		if found {
			v, err := strconv.ParseInt(string(old), 10, 64)
			if err != nil {
				return nil, ErrNotInteger
			}
			n = v
		}
		n += delta
		return strconv.AppendInt(nil, n, 10), nil
	})

	return n, err
}

func (i *InmemoryStore) IncrFloat(ctx context.Context, key []byte, delta float64) (float64, error) {
	var f float64

	err := i.update(key, func(old []byte, found bool) ([]byte, error) {
		if found {
			v, err := strconv.ParseFloat(string(old), 64)
			if err != nil {
				return nil, ErrNotInteger
			}
			f = v
		}
		f += delta
		return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
	})

	return f, err
}

func (i *InmemoryStore) Flush(ctx context.Context) error {
	i.valuesMu.Lock()
	i.values = []byte("{}")
	i.valuesMu.Unlock()
	return nil
}

func (i *InmemoryStore) ListenToUpdates() <-chan *Update {
	i.mu.Lock()
	defer i.mu.Unlock()

	updateChan := make(chan *Update, 255)
	if !i.isRunning() {
		close(updateChan)
		return updateChan
	}

	i.updateChans = append(i.updateChans, updateChan)

	return updateChan
}

func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) {
		return &InvalidBackupError{}
	}

	i.valuesMu.Lock()
	i.values = append([]byte(nil), values...)
	i.valuesMu.Unlock()
	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.valuesMu.RLock()
	defer i.valuesMu.RUnlock()

	if len(i.values) == 0 {
		return []byte("{}"), nil
	}

	return append([]byte(nil), i.values...), nil
}

// update applies fn to the current value of key under the write lock.
func (i *InmemoryStore) update(key []byte, fn func(old []byte, found bool) ([]byte, error)) error {
	path := escapeKey(key)

	i.valuesMu.Lock()

	var (
		old   []byte
		found bool
	)
	if result := gjson.GetBytes(i.values, path); result.Exists() {
		decoded, err := base64.StdEncoding.DecodeString(result.String())
		if err != nil {
			i.valuesMu.Unlock()
			return err
		}
		old, found = decoded, true
	}

	value, err := fn(old, found)
	if err == nil {
		i.values, err = sjson.SetBytes(i.values, path, base64.StdEncoding.EncodeToString(value))
	}

	i.valuesMu.Unlock()

	if err != nil {
		return err
	}

	i.notify(key, value)
	return nil
}

func (i *InmemoryStore) notify(key, value []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return
	}

	for _, updateChan := range i.updateChans {
		select {
		case updateChan <- &Update{Key: key, Value: value}:
		default:
			// slow listeners miss updates rather than block writers
		}
	}
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

// escapeKey turns a key into a gjson/sjson path matching exactly that key.
func escapeKey(key []byte) string {
	var b strings.Builder
	b.Grow(len(key) + 8)

	for _, c := range key {
		if c < 0x80 && !isPathSafe(c) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}

	return b.String()
}

func isPathSafe(c byte) bool {
	// digits are escaped too, sjson would read an all-digit key as an index
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '-'
}

type InvalidBackupError struct{}

func (e *InvalidBackupError) Error() string {
	return "backup is not a valid JSON document"
}

var _ Store = (*InmemoryStore)(nil)
