package locks

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds how long Acquire waits for a contended key.
const DefaultTimeout = 2 * time.Second

// ErrBusy is returned when a key could not be acquired before the timeout elapsed.
var ErrBusy = errors.New("locks: resource busy")

// Manager serialises mutations per entity key. Keys acquired together are always taken in
// sorted order so that two callers locking overlapping sets cannot deadlock.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Option customises a Manager.
type Option func(*Manager)

// WithTimeout overrides the bounded wait applied to each Acquire call.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// NewManager constructs an empty lock manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{entries: make(map[string]*entry), timeout: DefaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Timeout reports the configured wait bound.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Acquire locks every key or none. The returned release func is idempotent.
func (m *Manager) Acquire(ctx context.Context, keys ...string) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ordered := normaliseKeys(keys)
	if len(ordered) == 0 {
		return func() {}, nil
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	held := make([]string, 0, len(ordered))
	for _, key := range ordered {
		e := m.ref(key)
		select {
		case e.ch <- struct{}{}:
			held = append(held, key)
		case <-timer.C:
			m.unref(key)
			m.releaseAll(held)
			return nil, ErrBusy
		case <-ctx.Done():
			m.unref(key)
			m.releaseAll(held)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.releaseAll(held) })
	}, nil
}

type heldKey struct{}

// Hold acquires keys not already held by ctx and returns a context that records every
// held key. Nested calls with the returned context skip keys their caller holds, which
// lets a checkout that owns product locks invoke ledger operations on the same products.
func (m *Manager) Hold(ctx context.Context, keys ...string) (context.Context, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	missing := make([]string, 0, len(keys))
	for _, key := range normaliseKeys(keys) {
		if !HeldBy(ctx, key) {
			missing = append(missing, key)
		}
	}
	release, err := m.Acquire(ctx, missing...)
	if err != nil {
		return ctx, nil, err
	}
	if len(missing) == 0 {
		return ctx, release, nil
	}
	parent, _ := ctx.Value(heldKey{}).(map[string]struct{})
	held := make(map[string]struct{}, len(parent)+len(missing))
	for key := range parent {
		held[key] = struct{}{}
	}
	for _, key := range missing {
		held[key] = struct{}{}
	}
	return context.WithValue(ctx, heldKey{}, held), release, nil
}

// HeldBy reports whether key was acquired through Hold by ctx or one of its parents.
func HeldBy(ctx context.Context, key string) bool {
	if ctx == nil {
		return false
	}
	held, _ := ctx.Value(heldKey{}).(map[string]struct{})
	_, ok := held[strings.TrimSpace(key)]
	return ok
}

// Held reports the number of keys currently tracked, which includes waiters.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) ref(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Manager) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(m.entries, key)
	}
}

func (m *Manager) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]
		m.mu.Lock()
		e := m.entries[key]
		m.mu.Unlock()
		if e != nil {
			<-e.ch
		}
		m.unref(key)
	}
}

func normaliseKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// ProductKey namespaces an inventory lock key.
func ProductKey(productID string) string { return "product:" + productID }

// CartKey namespaces a cart lock key.
func CartKey(ownerKey string) string { return "cart:" + ownerKey }

// OrderKey namespaces an order lock key.
func OrderKey(orderID string) string { return "order:" + orderID }
