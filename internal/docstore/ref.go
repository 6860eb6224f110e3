package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Unsubscribe stops a live subscription. It is safe to call more than once.
type Unsubscribe func()

// Ref points at a collection or at one document inside it.
type Ref struct {
	backend    Backend
	collection string
	key        string
	err        error
}

func (r Ref) Key() string {
	if r.key != "" {
		return r.key
	}
	return r.collection
}

func (r Ref) Path() string {
	if r.key == "" {
		return r.collection
	}
	return r.collection + "/" + r.key
}

func (r Ref) isDocument() bool {
	return r.key != ""
}

// Child returns the document ref for key inside a collection ref.
func (r Ref) Child(key string) Ref {
	if r.err != nil {
		return r
	}
	if r.isDocument() || key == "" {
		return Ref{backend: r.backend, err: ErrInvalidPath}
	}
	return Ref{backend: r.backend, collection: r.collection, key: key}
}

// Push returns a ref to a new document with a time-ordered key. Nothing is
// written until Set or Update is called on it.
func (r Ref) Push() Ref {
	return r.Child(uuid.Must(uuid.NewV7()).String())
}

func (r Ref) Once(ctx context.Context) (Snapshot, error) {
	if r.err != nil {
		return Snapshot{}, r.err
	}

	if r.isDocument() {
		raw, ok, err := r.backend.Get(ctx, r.collection, r.key)
		if err != nil {
			return Snapshot{}, fmt.Errorf("read %s: %w", r.Path(), err)
		}
		if !ok {
			return Snapshot{key: r.key}, nil
		}
		return documentSnapshot(r.key, raw), nil
	}

	docs, err := r.backend.List(ctx, r.collection)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", r.Path(), err)
	}
	return collectionSnapshot(r.collection, docs), nil
}

// On delivers the current value and then a fresh snapshot after every change
// to the collection. Read errors go to errCb; the subscription stays open.
func (r Ref) On(ctx context.Context, cb func(Snapshot), errCb func(error)) (Unsubscribe, error) {
	if r.err != nil {
		return nil, r.err
	}
	return subscribe(ctx, r.backend, r.collection, r.Once, cb, errCb)
}

func (r Ref) Set(ctx context.Context, value any) error {
	if err := r.writable(); err != nil {
		return err
	}

	doc, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.Path(), err)
	}

	if err := r.backend.Set(ctx, r.collection, r.key, doc); err != nil {
		return fmt.Errorf("set %s: %w", r.Path(), err)
	}
	return nil
}

// Update merges the given top-level fields into the document. A nil value
// deletes the field.
func (r Ref) Update(ctx context.Context, fields map[string]any) error {
	if err := r.writable(); err != nil {
		return err
	}

	encoded := make(map[string]json.RawMessage, len(fields))
	var deleted []string
	for name, value := range fields {
		if value == nil {
			deleted = append(deleted, name)
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", r.Path(), name, err)
		}
		encoded[name] = raw
	}

	if err := r.backend.Update(ctx, r.collection, r.key, encoded, deleted); err != nil {
		return fmt.Errorf("update %s: %w", r.Path(), err)
	}
	return nil
}

func (r Ref) Remove(ctx context.Context) error {
	if err := r.writable(); err != nil {
		return err
	}
	if err := r.backend.Remove(ctx, r.collection, r.key); err != nil {
		return fmt.Errorf("remove %s: %w", r.Path(), err)
	}
	return nil
}

// OrderByChild starts an equality query on a top-level document field.
func (r Ref) OrderByChild(field string) Query {
	q := Query{ref: r, field: field}
	if r.err == nil && r.isDocument() {
		q.ref.err = ErrInvalidPath
	}
	return q
}

func (r Ref) writable() error {
	if r.err != nil {
		return r.err
	}
	if !r.isDocument() {
		return fmt.Errorf("%w: %s", ErrNotDocument, r.Path())
	}
	return nil
}
