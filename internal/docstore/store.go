// Package docstore is a small realtime document store: collections of JSON
// documents addressed by "collection" or "collection/key" paths, with
// one-shot reads, live subscriptions and field-level updates.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrInvalidPath = errors.New("invalid document path")
	ErrNotDocument = errors.New("operation requires a document path")
)

// Backend is the storage engine behind a Store. Documents are raw JSON
// objects keyed by collection and key.
type Backend interface {
	List(ctx context.Context, collection string) (map[string]json.RawMessage, error)
	Get(ctx context.Context, collection, key string) (json.RawMessage, bool, error)
	Query(ctx context.Context, collection, field string, value json.RawMessage) (map[string]json.RawMessage, error)
	Set(ctx context.Context, collection, key string, doc json.RawMessage) error
	// Update merges fields into the top level of a document and drops the
	// deleted keys. A missing document is created.
	Update(ctx context.Context, collection, key string, fields map[string]json.RawMessage, deleted []string) error
	Remove(ctx context.Context, collection, key string) error
	// Watch calls notify after any change to the collection until the
	// returned function is called.
	Watch(ctx context.Context, collection string, notify func()) (func(), error)
	Ping(ctx context.Context) error
	Close() error
}

type Store struct {
	backend Backend
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Ref returns a reference to a collection ("orders") or a document
// ("orders/<key>"). Deeper paths produce a reference whose operations fail
// with ErrInvalidPath.
func (s *Store) Ref(path string) Ref {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return Ref{backend: s.backend, collection: parts[0]}
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return Ref{backend: s.backend, collection: parts[0], key: parts[1]}
	}
	return Ref{backend: s.backend, err: ErrInvalidPath}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

func (s *Store) Close() error {
	return s.backend.Close()
}
