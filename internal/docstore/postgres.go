package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

const changesChannel = "documents_changed"

// PostgresBackend stores documents as JSONB rows in the documents table.
// Subscriptions are driven by LISTEN/NOTIFY on documents_changed, which a
// trigger fires with the collection name as payload.
type PostgresBackend struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger

	mu       sync.Mutex
	listener *pq.Listener
	watchers map[string]map[int]func()
	nextID   int
	done     chan struct{}
}

func NewPostgresBackend(db *sql.DB, dsn string, logger *slog.Logger) *PostgresBackend {
	return &PostgresBackend{
		db:       db,
		dsn:      dsn,
		logger:   logger,
		watchers: make(map[string]map[int]func()),
	}
}

func (p *PostgresBackend) List(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT key, doc
		FROM documents
		WHERE collection = $1
	`, collection)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

func (p *PostgresBackend) Get(ctx context.Context, collection, key string) (json.RawMessage, bool, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT doc
		FROM documents
		WHERE collection = $1 AND key = $2
	`, collection, key).Scan(&doc)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return doc, true, nil
}

// QueryByFieldSQL selects the documents of a collection whose top-level field
// holds a value. Containment lets the GIN index on doc serve the lookup; for
// the scalar values queries use it matches plain equality.
const QueryByFieldSQL = `
		SELECT key, doc
		FROM documents
		WHERE collection = $1 AND doc @> jsonb_build_object($2::text, $3::jsonb)
	`

func (p *PostgresBackend) Query(ctx context.Context, collection, field string, value json.RawMessage) (map[string]json.RawMessage, error) {
	rows, err := p.db.QueryContext(ctx, QueryByFieldSQL, collection, field, string(value))
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

func (p *PostgresBackend) Set(ctx context.Context, collection, key string, doc json.RawMessage) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, doc, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (collection, key)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
	`, collection, key, string(doc))
	return err
}

func (p *PostgresBackend) Update(ctx context.Context, collection, key string, fields map[string]json.RawMessage, deleted []string) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if deleted == nil {
		deleted = []string{}
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, doc, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (collection, key)
		DO UPDATE SET doc = (documents.doc || EXCLUDED.doc) - $4::text[], updated_at = NOW()
	`, collection, key, string(patch), pq.Array(deleted))
	return err
}

func (p *PostgresBackend) Remove(ctx context.Context, collection, key string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM documents
		WHERE collection = $1 AND key = $2
	`, collection, key)
	return err
}

func (p *PostgresBackend) Watch(_ context.Context, collection string, notify func()) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener == nil {
		if err := p.startListener(); err != nil {
			return nil, err
		}
	}

	id := p.nextID
	p.nextID++
	if p.watchers[collection] == nil {
		p.watchers[collection] = make(map[int]func())
	}
	p.watchers[collection][id] = notify

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.watchers[collection], id)
	}, nil
}

// startListener must be called with p.mu held.
func (p *PostgresBackend) startListener() error {
	listener := pq.NewListener(p.dsn, 100*time.Millisecond, 10*time.Second, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			p.logger.Warn("document listener event", "event", ev, "error", err)
		}
	})
	if err := listener.Listen(changesChannel); err != nil {
		_ = listener.Close()
		return err
	}

	p.listener = listener
	p.done = make(chan struct{})
	go p.dispatch(listener, p.done)
	return nil
}

func (p *PostgresBackend) dispatch(listener *pq.Listener, done chan struct{}) {
	ticker := time.NewTicker(90 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case n, ok := <-listener.Notify:
			if !ok {
				return
			}
			p.notifyWatchers(n)
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				p.logger.Warn("document listener ping failed", "error", err)
			}
		}
	}
}

// notifyWatchers notifies the watchers of the changed collection. A nil notification
// means the connection was re-established and changes may have been missed,
// so every watcher is notified.
func (p *PostgresBackend) notifyWatchers(n *pq.Notification) {
	p.mu.Lock()
	var notify []func()
	for collection, watchers := range p.watchers {
		if n != nil && n.Extra != collection {
			continue
		}
		for _, fn := range watchers {
			notify = append(notify, fn)
		}
	}
	p.mu.Unlock()

	fire(notify)
}

func (p *PostgresBackend) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresBackend) Close() error {
	p.mu.Lock()
	listener := p.listener
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	p.listener = nil
	p.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	return p.db.Close()
}

func scanDocuments(rows *sql.Rows) (map[string]json.RawMessage, error) {
	defer func() { _ = rows.Close() }()

	docs := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var doc []byte
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, err
		}
		docs[key] = doc
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return docs, nil
}
