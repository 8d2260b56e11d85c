package remote

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/dmitrijs2005/shopkeeper/internal/remote/migrations"
)

// Postgres keeps every collection in one JSONB documents table.
type Postgres struct {
	db           *sql.DB
	log          logging.Logger
	pollInterval time.Duration

	// migrate brings the schema up to date; nil when the caller owns it.
	migrate  func(context.Context) error
	schemaMu sync.Mutex
	migrated atomic.Bool
}

var _ Store = (*Postgres)(nil)

// OpenPostgres prepares a pgx pool without connecting. Schema migrations
// run on the first successful contact, so a server that is down at boot
// leaves the node running offline instead of failing to start.
func OpenPostgres(_ context.Context, dsn string, log logging.Logger) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	p := NewPostgres(db, log)
	p.migrate = func(ctx context.Context) error {
		return dbx.Migrate(ctx, db, migrations.FS, "postgres")
	}
	return p, nil
}

func NewPostgres(db *sql.DB, log logging.Logger) *Postgres {
	return &Postgres{db: db, log: log, pollInterval: 2 * time.Second}
}

// SetPollInterval changes how often Watch re-runs its query.
func (p *Postgres) SetPollInterval(d time.Duration) { p.pollInterval = d }

// ensureSchema migrates once per process. A failed attempt reports the
// remote as unavailable and is retried by the next call.
func (p *Postgres) ensureSchema(ctx context.Context) error {
	if p.migrate == nil || p.migrated.Load() {
		return nil
	}
	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()
	if p.migrated.Load() {
		return nil
	}
	if err := p.migrate(ctx); err != nil {
		return unavailable("migrate", err)
	}
	p.migrated.Store(true)
	p.log.Info(ctx, "postgres schema up to date")
	return nil
}

func mapSQLError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", common.ErrNotFound, op)
	}
	return unavailable(op, err)
}

func storeIDOf(doc models.Document) sql.NullString {
	s := doc.StoreID()
	return sql.NullString{String: s, Valid: s != ""}
}

func (p *Postgres) Create(ctx context.Context, coll models.Collection, doc models.Document) (string, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return "", err
	}
	if err := validate(coll, Query{}); err != nil {
		return "", err
	}
	doc = doc.Clone()
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
		doc[models.AttrID] = id
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	query := `INSERT INTO documents (collection, id, store_id, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, store_id = EXCLUDED.store_id, updated_at = now()`
	if _, err := p.db.ExecContext(ctx, query, coll.String(), id, storeIDOf(doc), string(data)); err != nil {
		return "", mapSQLError("create", err)
	}
	return id, nil
}

func (p *Postgres) Get(ctx context.Context, coll models.Collection, id string) (models.Document, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = $1 AND id = $2`, coll.String(), id).Scan(&data)
	if err != nil {
		return nil, mapSQLError("get "+coll.String()+"/"+id, err)
	}
	return decodeRow(data)
}

func (p *Postgres) Merge(ctx context.Context, coll models.Collection, id string, doc models.Document) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	if err := validate(coll, Query{}); err != nil {
		return err
	}
	doc = doc.Clone()
	doc[models.AttrID] = id
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	query := `INSERT INTO documents (collection, id, store_id, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = documents.data || EXCLUDED.data,
		    store_id = COALESCE(EXCLUDED.store_id, documents.store_id),
		    updated_at = now()`
	_, err = p.db.ExecContext(ctx, query, coll.String(), id, storeIDOf(doc), string(data))
	return mapSQLError("merge", err)
}

func (p *Postgres) Delete(ctx context.Context, coll models.Collection, id string) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, coll.String(), id)
	return mapSQLError("delete", err)
}

func (p *Postgres) DeleteBatch(ctx context.Context, coll models.Collection, ids []string) error {
	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, coll.String(), id); err != nil {
				return err
			}
		}
		return nil
	})
	return mapSQLError("delete batch", err)
}

func (p *Postgres) Query(ctx context.Context, coll models.Collection, q Query) ([]models.Document, error) {
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if err := validate(coll, q); err != nil {
		return nil, err
	}
	query, args, err := buildQuery(coll, q)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLError("query", err)
	}
	defer rows.Close()

	result := []models.Document{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, mapSQLError("query", err)
		}
		doc, err := decodeRow(data)
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLError("query", err)
	}
	return result, nil
}

// buildQuery turns q into SQL. Equality filters become a single JSONB
// containment test so the GIN index applies.
func buildQuery(coll models.Collection, q Query) (string, []any, error) {
	args := []any{coll.String()}
	query := `SELECT data FROM documents WHERE collection = $1`

	if len(q.Filters) > 0 {
		match := make(map[string]any, len(q.Filters))
		for _, f := range q.Filters {
			match[f.Attr] = normalizeValue(f.Value)
		}
		b, err := json.Marshal(match)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		args = append(args, string(b))
		query += fmt.Sprintf(` AND data @> $%d::jsonb`, len(args))
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		query += fmt.Sprintf(` ORDER BY data->>'%s' %s, created_at %s`, q.OrderBy, dir, dir)
	} else {
		query += ` ORDER BY created_at, id`
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return query, args, nil
}

// Watch polls q every poll interval and calls fn when the result changes.
func (p *Postgres) Watch(ctx context.Context, coll models.Collection, q Query, fn func([]models.Document)) (func(), error) {
	docs, err := p.Query(ctx, coll, q)
	if err != nil {
		return nil, err
	}
	fn(docs)
	last, _ := json.Marshal(docs)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				docs, err := p.Query(ctx, coll, q)
				if err != nil {
					if ctx.Err() == nil {
						p.log.Debug(ctx, "postgres watch poll failed", "collection", coll, "error", err)
					}
					continue
				}
				cur, _ := json.Marshal(docs)
				if bytes.Equal(cur, last) {
					continue
				}
				last = cur
				fn(docs)
			}
		}
	}()
	return cancel, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return mapSQLError("ping", err)
	}
	return p.ensureSchema(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func decodeRow(data []byte) (models.Document, error) {
	doc, err := models.ParseDocument(data)
	if err != nil {
		return nil, unavailable("decode", err)
	}
	return doc, nil
}
