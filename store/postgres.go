package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"scoresync/pkg/errs"
	"scoresync/pkg/logger"
)

// Postgres is a DocumentStore adapter over a single JSONB table:
//
//	CREATE TABLE <table> (id TEXT PRIMARY KEY, data JSONB NOT NULL)
//
// Update takes a row lock, merges in Go, and writes back in one
// transaction, so the per-document merge is atomic. Change subscription
// rides LISTEN/NOTIFY on the "<table>_changes" channel; the payload is the
// object id, and notified subscribers are handed a fresh read.
type Postgres struct {
	db      *sql.DB
	table   string
	channel string

	mu       sync.Mutex
	subs     map[string]map[int]func(map[string]any)
	nextSub  int
	listener *pq.Listener
}

// NewPostgres builds a store over table. connStr is only needed for the
// notification listener; pass "" to run without change subscription (the
// write paths still NOTIFY for other processes). The table name comes from
// trusted configuration, never from request input.
func NewPostgres(db *sql.DB, connStr, table string) *Postgres {
	p := &Postgres{
		db:      db,
		table:   table,
		channel: table + "_changes",
		subs:    make(map[string]map[int]func(map[string]any)),
	}
	if connStr != "" {
		p.listener = pq.NewListener(connStr, 2*time.Second, time.Minute, func(_ pq.ListenerEventType, err error) {
			if err != nil {
				logger.Sugar.Errorf("Listener event error on %s: %v", p.channel, err)
			}
		})
		if err := p.listener.Listen(p.channel); err != nil {
			logger.Sugar.Errorf("Failed to LISTEN on %s: %v", p.channel, err)
		}
		go p.listenLoop()
	}
	return p
}

// Close stops the notification listener.
func (p *Postgres) Close() error {
	if p.listener != nil {
		return p.listener.Close()
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (map[string]any, error) {
	var raw []byte
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = $1", p.table)
	err := p.db.QueryRowContext(ctx, query, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("object " + id)
	}
	if err != nil {
		return nil, errs.Upstream(err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errs.Upstream(err)
	}
	return obj, nil
}

func (p *Postgres) Set(ctx context.Context, id string, obj map[string]any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return errs.Upstream(err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, p.table)
	if _, err := p.db.ExecContext(ctx, query, id, raw); err != nil {
		return errs.Upstream(err)
	}
	p.notifyRemote(ctx, id)
	return nil
}

func (p *Postgres) Update(ctx context.Context, id string, partial map[string]any) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Upstream(err)
	}
	defer tx.Rollback()

	var raw []byte
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = $1 FOR UPDATE", p.table)
	err = tx.QueryRowContext(ctx, query, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return errs.NotFound("object " + id)
	}
	if err != nil {
		return errs.Upstream(err)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return errs.Upstream(err)
	}
	Merge(obj, partial)

	merged, err := json.Marshal(obj)
	if err != nil {
		return errs.Upstream(err)
	}
	update := fmt.Sprintf("UPDATE %s SET data = $2 WHERE id = $1", p.table)
	if _, err := tx.ExecContext(ctx, update, id, merged); err != nil {
		return errs.Upstream(err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Upstream(err)
	}
	p.notifyRemote(ctx, id)
	return nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", p.table)
	if _, err := p.db.ExecContext(ctx, query, id); err != nil {
		return errs.Upstream(err)
	}
	return nil
}

func (p *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", p.table)
	if err := p.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, errs.Upstream(err)
	}
	return exists, nil
}

func (p *Postgres) Subscribe(id string, fn func(snapshot map[string]any)) Unsubscribe {
	p.mu.Lock()
	if p.subs[id] == nil {
		p.subs[id] = make(map[int]func(map[string]any))
	}
	token := p.nextSub
	p.nextSub++
	p.subs[id][token] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs[id], token)
			p.mu.Unlock()
		})
	}
}

func (p *Postgres) notifyRemote(ctx context.Context, id string) {
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", p.channel, id); err != nil {
		logger.Sugar.Errorf("Failed to notify %s for %s: %v", p.channel, id, err)
	}
}

func (p *Postgres) listenLoop() {
	for n := range p.listener.Notify {
		if n == nil {
			// Reconnect marker; listeners may have missed notifications,
			// which the at-least-once contract allows.
			continue
		}
		p.fanOut(n.Extra)
	}
}

func (p *Postgres) fanOut(id string) {
	p.mu.Lock()
	fns := make([]func(map[string]any), 0, len(p.subs[id]))
	for _, fn := range p.subs[id] {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	obj, err := p.Get(context.Background(), id)
	if err != nil {
		return
	}
	for _, fn := range fns {
		fn(deepCopy(obj))
	}
}
