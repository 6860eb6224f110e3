// Package collection mirrors a remote document collection into an ordered
// local cache. Local writes are applied to the cache before they reach the
// store and are tracked as pending, so a live subscription that echoes them
// back does not apply them twice or notify listeners again.
package collection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/primeuro-storefront/internal/docstore"
)

var writeFailures, _ = otel.Meter("collection").Int64Counter("store.write_failures",
	metric.WithDescription("Store writes that failed and were reverted locally"))

var (
	ErrNotFound    = errors.New("item not found")
	ErrReadFailed  = errors.New("store read failed")
	ErrWriteFailed = errors.New("store write failed")
)

// Source is a readable view of the store: a collection ref or an equality
// query on one.
type Source interface {
	Once(ctx context.Context) (docstore.Snapshot, error)
	On(ctx context.Context, cb func(docstore.Snapshot), errCb func(error)) (docstore.Unsubscribe, error)
}

// Schema tells a Collection how to read keys and timestamps from T.
type Schema[T any] struct {
	Key       func(T) string
	SetKey    func(T, string) T
	Timestamp func(T) time.Time
	// Keep optionally hides items from the local view.
	Keep func(T) bool
	// Equal reports whether two versions of an item are the same. When nil,
	// items compare by their JSON encoding, which is how the store sees them.
	Equal func(a, b T) bool
}

type pendingWrite[T any] struct {
	seq     uint64
	item    T
	removed bool
}

type Collection[T any] struct {
	ref    docstore.Ref
	source Source
	schema Schema[T]
	ready  *Ready
	logger *slog.Logger

	mu        sync.RWMutex
	remote    map[string]T
	pending   map[string]pendingWrite[T]
	items     []T
	loaded    bool
	seq       uint64
	listeners map[uint64]func([]T)
}

type Option[T any] func(*Collection[T])

// WithSource reads through src instead of the whole collection, e.g. an
// OrderByChild("approved").EqualTo(true) query.
func WithSource[T any](src Source) Option[T] {
	return func(c *Collection[T]) {
		c.source = src
	}
}

func WithReady[T any](ready *Ready) Option[T] {
	return func(c *Collection[T]) {
		c.ready = ready
	}
}

func New[T any](ref docstore.Ref, schema Schema[T], logger *slog.Logger, opts ...Option[T]) *Collection[T] {
	c := &Collection[T]{
		ref:       ref,
		source:    ref,
		schema:    schema,
		logger:    logger,
		remote:    make(map[string]T),
		pending:   make(map[string]pendingWrite[T]),
		listeners: make(map[uint64]func([]T)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchOnce reads the whole source once and replaces the remote state.
func (c *Collection[T]) FetchOnce(ctx context.Context) ([]T, error) {
	if err := c.ready.Wait(ctx); err != nil {
		return nil, err
	}

	snap, err := c.source.Once(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}

	items, _ := c.reconcile(c.decode(snap))
	return items, nil
}

// Subscribe keeps the cache in sync with the store. onChange receives the
// full ordered list, once at start and then only when the list changed.
func (c *Collection[T]) Subscribe(ctx context.Context, onChange func([]T)) (docstore.Unsubscribe, error) {
	if err := c.ready.Wait(ctx); err != nil {
		return nil, err
	}

	removeListener := c.addListener(onChange)
	first := true

	unsubscribe, err := c.source.On(ctx, func(snap docstore.Snapshot) {
		items, changed := c.reconcile(c.decode(snap))
		if first && !changed && onChange != nil {
			onChange(items)
		}
		first = false
	}, func(err error) {
		c.logger.Error("subscription read failed", "error", err, "path", c.ref.Path())
	})
	if err != nil {
		removeListener()
		return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}

	return func() {
		unsubscribe()
		removeListener()
	}, nil
}

// Loaded reports whether the cache holds at least one read from the store.
func (c *Collection[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Items returns a copy of the ordered local view.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

func (c *Collection[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookup(key)
}

// Insert stores item under a new push key.
func (c *Collection[T]) Insert(ctx context.Context, item T) (T, error) {
	ref := c.ref.Push()
	item = c.schema.SetKey(item, ref.Key())

	seq := c.begin(ref.Key(), pendingWrite[T]{item: item})
	err := ref.Set(ctx, c.schema.SetKey(item, ""))
	if err := c.finish(ctx, ref.Key(), seq, item, false, err); err != nil {
		var zero T
		return zero, err
	}
	return item, nil
}

// Put replaces the whole document stored under the item's key.
func (c *Collection[T]) Put(ctx context.Context, item T) (T, error) {
	key := c.schema.Key(item)
	if key == "" {
		var zero T
		return zero, fmt.Errorf("%w: empty key", ErrNotFound)
	}

	seq := c.begin(key, pendingWrite[T]{item: item})
	err := c.ref.Child(key).Set(ctx, c.schema.SetKey(item, ""))
	if err := c.finish(ctx, key, seq, item, false, err); err != nil {
		var zero T
		return zero, err
	}
	return item, nil
}

// Apply computes the next value of an item from the cached one and writes
// only the returned fields. fn must not block; it runs under the cache lock.
func (c *Collection[T]) Apply(ctx context.Context, key string, fn func(current T) (T, map[string]any, error)) (T, error) {
	var zero T

	c.mu.Lock()
	current, ok := c.lookup(key)
	if !ok {
		c.mu.Unlock()
		return zero, ErrNotFound
	}
	next, fields, err := fn(current)
	if err != nil {
		c.mu.Unlock()
		return zero, err
	}
	next = c.schema.SetKey(next, key)
	seq, items, changed := c.beginLocked(key, pendingWrite[T]{item: next})
	c.mu.Unlock()
	c.notify(items, changed)

	err = c.ref.Child(key).Update(ctx, fields)
	if err := c.finish(ctx, key, seq, next, false, err); err != nil {
		return zero, err
	}
	return next, nil
}

func (c *Collection[T]) Remove(ctx context.Context, key string) error {
	c.mu.RLock()
	current, ok := c.lookup(key)
	c.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	seq := c.begin(key, pendingWrite[T]{item: current, removed: true})
	err := c.ref.Child(key).Remove(ctx)
	return c.finish(ctx, key, seq, current, true, err)
}

// Patch changes the cached copy only. The store is never written and the
// next remote snapshot wins.
func (c *Collection[T]) Patch(key string, fn func(T) T) (T, error) {
	var zero T

	c.mu.Lock()
	current, ok := c.lookup(key)
	if !ok {
		c.mu.Unlock()
		return zero, ErrNotFound
	}
	next := c.schema.SetKey(fn(current), key)
	if p, ok := c.pending[key]; ok {
		p.item = next
		c.pending[key] = p
	} else {
		c.remote[key] = next
	}
	items, changed := c.rebuildLocked()
	c.mu.Unlock()

	c.notify(items, changed)
	return next, nil
}

func (c *Collection[T]) begin(key string, w pendingWrite[T]) uint64 {
	c.mu.Lock()
	seq, items, changed := c.beginLocked(key, w)
	c.mu.Unlock()

	c.notify(items, changed)
	return seq
}

func (c *Collection[T]) beginLocked(key string, w pendingWrite[T]) (uint64, []T, bool) {
	c.seq++
	w.seq = c.seq
	c.pending[key] = w
	items, changed := c.rebuildLocked()
	return w.seq, items, changed
}

// finish settles a pending write. On success the written value becomes the
// remote state; on failure the optimistic change is reverted.
func (c *Collection[T]) finish(ctx context.Context, key string, seq uint64, item T, removed bool, writeErr error) error {
	c.mu.Lock()
	if p, ok := c.pending[key]; ok && p.seq == seq {
		delete(c.pending, key)
	}
	if writeErr == nil {
		if removed {
			delete(c.remote, key)
		} else {
			c.remote[key] = item
		}
	}
	items, changed := c.rebuildLocked()
	c.mu.Unlock()

	c.notify(items, changed)

	if writeErr != nil {
		writeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("collection", c.ref.Path())))
		c.logger.Error("store write failed, local change reverted", "error", writeErr, "path", c.ref.Path(), "key", key)
		return fmt.Errorf("%w: %w", ErrWriteFailed, writeErr)
	}
	return nil
}

func (c *Collection[T]) reconcile(remote map[string]T) ([]T, bool) {
	c.mu.Lock()
	c.remote = remote
	c.loaded = true
	items, changed := c.rebuildLocked()
	c.mu.Unlock()

	c.notify(items, changed)
	return items, changed
}

// rebuildLocked recomputes the ordered view from the remote state with
// pending writes laid over it.
func (c *Collection[T]) rebuildLocked() ([]T, bool) {
	view := make(map[string]T, len(c.remote)+len(c.pending))
	for k, v := range c.remote {
		view[k] = v
	}
	for k, p := range c.pending {
		if p.removed {
			delete(view, k)
			continue
		}
		view[k] = p.item
	}

	keys := make([]string, 0, len(view))
	for k := range view {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]T, 0, len(keys))
	for _, k := range keys {
		if c.schema.Keep != nil && !c.schema.Keep(view[k]) {
			continue
		}
		items = append(items, view[k])
	}
	SortNewestFirst(items, c.schema.Timestamp)

	changed := !c.sameItems(items, c.items)
	c.items = items
	return slices.Clone(items), changed
}

func (c *Collection[T]) sameItems(a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if c.schema.Key(a[i]) != c.schema.Key(b[i]) || !c.same(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (c *Collection[T]) same(a, b T) bool {
	if c.schema.Equal != nil {
		return c.schema.Equal(a, b)
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ja, jb)
}

// lookup must be called with c.mu held.
func (c *Collection[T]) lookup(key string) (T, bool) {
	for _, item := range c.items {
		if c.schema.Key(item) == key {
			return item, true
		}
	}
	var zero T
	return zero, false
}

func (c *Collection[T]) addListener(fn func([]T)) func() {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	c.seq++
	id := c.seq
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Collection[T]) notify(items []T, changed bool) {
	if !changed {
		return
	}

	c.mu.RLock()
	listeners := make([]func([]T), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(slices.Clone(items))
	}
}

// decode skips documents that do not fit T so one malformed record does
// not hide the rest of the collection.
func (c *Collection[T]) decode(snap docstore.Snapshot) map[string]T {
	items := make(map[string]T)

	snap.ForEach(func(child docstore.Snapshot) bool {
		var item T
		if err := json.Unmarshal(child.Raw(), &item); err != nil {
			c.logger.Warn("skipping malformed document", "error", err, "path", c.ref.Path(), "key", child.Key())
			return false
		}
		items[child.Key()] = c.schema.SetKey(item, child.Key())
		return false
	})

	return items
}

// SortNewestFirst orders items by timestamp, newest first. Zero timestamps
// sort last and equal timestamps keep their relative order.
func SortNewestFirst[T any](items []T, timestamp func(T) time.Time) {
	slices.SortStableFunc(items, func(a, b T) int {
		return timestamp(b).Compare(timestamp(a))
	})
}
