package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNoEqualTo = errors.New("query has no equality value")

// Query selects the documents of a collection whose field equals a value.
type Query struct {
	ref   Ref
	field string
	value json.RawMessage
	err   error
}

func (q Query) EqualTo(value any) Query {
	raw, err := json.Marshal(value)
	if err != nil {
		q.err = fmt.Errorf("encode query value: %w", err)
		return q
	}
	q.value = raw
	return q
}

func (q Query) Once(ctx context.Context) (Snapshot, error) {
	if err := q.check(); err != nil {
		return Snapshot{}, err
	}

	docs, err := q.ref.backend.Query(ctx, q.ref.collection, q.field, q.value)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query %s by %s: %w", q.ref.collection, q.field, err)
	}
	return collectionSnapshot(q.ref.collection, docs), nil
}

func (q Query) On(ctx context.Context, cb func(Snapshot), errCb func(error)) (Unsubscribe, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	return subscribe(ctx, q.ref.backend, q.ref.collection, q.Once, cb, errCb)
}

func (q Query) check() error {
	switch {
	case q.ref.err != nil:
		return q.ref.err
	case q.err != nil:
		return q.err
	case q.value == nil:
		return ErrNoEqualTo
	}
	return nil
}
