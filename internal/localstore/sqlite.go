package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
	"github.com/dmitrijs2005/shopkeeper/internal/localstore/migrations"
	"github.com/dmitrijs2005/shopkeeper/internal/models"

	_ "modernc.org/sqlite"
)

const dialect = "sqlite3"

var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
	q  dbx.DBTX
}

// Open opens (creating if needed) the SQLite file at path and brings its
// schema up to date.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrStorage, path, err)
	}
	// a single connection serialises writers and keeps :memory: databases alive
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: configure %s: %v", common.ErrStorage, path, err)
	}

	if err := dbx.Migrate(ctx, db, migrations.FS, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	return &SQLiteStore{db: db, q: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int64, error) {
	return dbx.SchemaVersion(ctx, s.db, dialect)
}

func (s *SQLiteStore) Put(ctx context.Context, coll models.Collection, doc models.Document) (string, error) {
	return put(ctx, s.q, coll, doc)
}

func (s *SQLiteStore) Delete(ctx context.Context, coll models.Collection, id string) error {
	return del(ctx, s.q, coll, id)
}

func (s *SQLiteStore) Get(ctx context.Context, coll models.Collection, id string) (models.Document, error) {
	return get(ctx, s.q, coll, id)
}

func get(ctx context.Context, q dbx.DBTX, coll models.Collection, id string) (models.Document, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, coll)
	var data string
	err := q.QueryRowContext(ctx, query, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", common.ErrNotFound, coll, id)
	}
	if err != nil {
		return nil, storageErr("get", coll, err)
	}

	doc, err := models.ParseDocument([]byte(data))
	if err != nil {
		return nil, storageErr("get", coll, err)
	}
	return doc, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, coll models.Collection) ([]models.Document, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT data FROM %s ORDER BY rowid`, coll)
	return s.scan(ctx, coll, query)
}

func (s *SQLiteStore) QueryBySecondaryEqual(ctx context.Context, coll models.Collection, attr string, value any) ([]models.Document, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}
	if err := checkAttr(attr); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT data FROM %s WHERE json_extract(data, '$.%s') = ? ORDER BY rowid`, coll, attr)
	return s.scan(ctx, coll, query, sqlValue(value))
}

// WithTx runs fn in one SQLite transaction. fn must only use the Writer it
// is given; the store holds a single connection.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(ctx context.Context, w Writer) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, txWriter{q: tx})
	})
}

func (s *SQLiteStore) scan(ctx context.Context, coll models.Collection, query string, args ...any) ([]models.Document, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query", coll, err)
	}
	defer rows.Close()

	result := []models.Document{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, storageErr("scan", coll, err)
		}
		doc, err := models.ParseDocument([]byte(data))
		if err != nil {
			return nil, storageErr("scan", coll, err)
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query", coll, err)
	}
	return result, nil
}

type txWriter struct {
	q dbx.DBTX
}

func (w txWriter) Get(ctx context.Context, coll models.Collection, id string) (models.Document, error) {
	return get(ctx, w.q, coll, id)
}

func (w txWriter) Put(ctx context.Context, coll models.Collection, doc models.Document) (string, error) {
	return put(ctx, w.q, coll, doc)
}

func (w txWriter) Delete(ctx context.Context, coll models.Collection, id string) error {
	return del(ctx, w.q, coll, id)
}

func put(ctx context.Context, q dbx.DBTX, coll models.Collection, doc models.Document) (string, error) {
	if err := checkCollection(coll); err != nil {
		return "", err
	}
	id := doc.ID()
	if id == "" {
		return "", fmt.Errorf("%w: %s record without id", common.ErrValidation, coll)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", storageErr("encode", coll, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`, coll)
	if _, err := q.ExecContext(ctx, query, id, string(data)); err != nil {
		return "", storageErr("put", coll, err)
	}
	return id, nil
}

func del(ctx context.Context, q dbx.DBTX, coll models.Collection, id string) error {
	if err := checkCollection(coll); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, coll)
	if _, err := q.ExecContext(ctx, query, id); err != nil {
		return storageErr("delete", coll, err)
	}
	return nil
}

// sqlValue converts value to what json_extract yields for the same JSON.
func sqlValue(value any) any {
	switch v := value.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case models.SyncStatus:
		return string(v)
	case models.Collection:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}
