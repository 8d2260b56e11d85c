package remote

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db, logging.Nop()), mock
}

func TestPostgres_CreateWithID(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents (collection, id, store_id, data)`)).
		WithArgs("products", "p1", sql.NullString{String: "store_1", Valid: true}, `{"id":"p1","name":"Cola","storeId":"store_1"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := p.Create(context.Background(), models.Products, models.Document{"id": "p1", "name": "Cola", "storeId": "store_1"})
	require.NoError(t, err)
	assert.Equal(t, "p1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateAssignsID(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents`)).
		WithArgs("stores", sqlmock.AnyArg(), sql.NullString{}, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := p.Create(context.Background(), models.Stores, models.Document{"name": "Main"})
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get(t *testing.T) {
	p, mock := newMockPostgres(t)
	q := regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2`)

	mock.ExpectQuery(q).WithArgs("products", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"id":"p1","price":1.5}`)))
	mock.ExpectQuery(q).WithArgs("products", "p2").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs("products", "p3").WillReturnError(errors.New("connection reset"))

	got, err := p.Get(context.Background(), models.Products, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 1.5, got["price"])

	_, err = p.Get(context.Background(), models.Products, "p2")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = p.Get(context.Background(), models.Products, "p3")
	assert.ErrorIs(t, err, common.ErrRemoteUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Merge(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET data = documents.data || EXCLUDED.data`)).
		WithArgs("products", "p1", sql.NullString{}, `{"id":"p1","stock":4}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.Merge(context.Background(), models.Products, "p1", models.Document{"stock": 4}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteBatch(t *testing.T) {
	p, mock := newMockPostgres(t)
	del := regexp.QuoteMeta(`DELETE FROM documents WHERE collection = $1 AND id = $2`)

	mock.ExpectBegin()
	mock.ExpectExec(del).WithArgs("notifications", "n1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(del).WithArgs("notifications", "n2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.DeleteBatch(context.Background(), models.Notifications, []string{"n1", "n2"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteBatchRollsBack(t *testing.T) {
	p, mock := newMockPostgres(t)
	del := regexp.QuoteMeta(`DELETE FROM documents WHERE collection = $1 AND id = $2`)

	mock.ExpectBegin()
	mock.ExpectExec(del).WithArgs("notifications", "n1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(del).WithArgs("notifications", "n2").WillReturnError(errors.New("conn lost"))
	mock.ExpectRollback()

	err := p.DeleteBatch(context.Background(), models.Notifications, []string{"n1", "n2"})
	assert.ErrorIs(t, err, common.ErrRemoteUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Query(t *testing.T) {
	p, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT data FROM documents WHERE collection = $1 AND data @> $2::jsonb ORDER BY data->>'_createdAt' DESC, created_at DESC LIMIT $3`)).
		WithArgs("notifications", `{"storeId":"store_1"}`, 5).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"id":"n2"}`)).
			AddRow([]byte(`{"id":"n1"}`)))

	got, err := p.Query(context.Background(), models.Notifications,
		Query{}.Where("storeId", "store_1").Order("_createdAt", true).Take(5))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n2", got[0].ID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildQuery_NoFilters(t *testing.T) {
	q, args, err := buildQuery(models.Products, Query{})
	require.NoError(t, err)
	assert.Equal(t, `SELECT data FROM documents WHERE collection = $1 ORDER BY created_at, id`, q)
	assert.Equal(t, []any{"products"}, args)
}

func TestPostgres_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db, logging.Nop())

	mock.ExpectPing().WillReturnError(errors.New("refused"))
	assert.ErrorIs(t, p.Ping(context.Background()), common.ErrRemoteUnavailable)
}

func TestPostgres_SchemaMigratesOnFirstContact(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgres(db, logging.Nop())

	calls := 0
	var failWith error
	p.migrate = func(context.Context) error {
		calls++
		return failWith
	}
	ctx := context.Background()

	mock.ExpectPing().WillReturnError(errors.New("refused"))
	assert.ErrorIs(t, p.Ping(ctx), common.ErrRemoteUnavailable)
	assert.Equal(t, 0, calls, "no migration while the server is down")

	failWith = errors.New("lock timeout")
	mock.ExpectPing()
	assert.ErrorIs(t, p.Ping(ctx), common.ErrRemoteUnavailable)
	assert.Equal(t, 1, calls)

	failWith = nil
	mock.ExpectPing()
	require.NoError(t, p.Ping(ctx))
	mock.ExpectPing()
	require.NoError(t, p.Ping(ctx))
	assert.Equal(t, 2, calls, "migrated once, then left alone")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_OperationsMigrateFirst(t *testing.T) {
	p, mock := newMockPostgres(t)
	var order []string
	p.migrate = func(context.Context) error {
		order = append(order, "migrate")
		return nil
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2`)).
		WithArgs("products", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"id":"p1"}`)))

	_, err := p.Get(context.Background(), models.Products, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"migrate"}, order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenPostgres_UnreachableServerDoesNotFail(t *testing.T) {
	p, err := OpenPostgres(context.Background(), "postgres://nobody@127.0.0.1:1/none?connect_timeout=1", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	assert.ErrorIs(t, p.Ping(context.Background()), common.ErrRemoteUnavailable)
	assert.False(t, p.migrated.Load())
}
