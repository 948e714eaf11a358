package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDriver serves a fixed result set for any query.
type stubDriver struct {
	rows     [][]driver.Value
	queryErr error
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return stubConn{d}, nil
}

type stubConn struct {
	d *stubDriver
}

func (stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("not supported")
}

func (stubConn) Close() error { return nil }

func (stubConn) Begin() (driver.Tx, error) {
	return nil, errors.New("not supported")
}

func (c stubConn) QueryContext(
	ctx context.Context, query string, args []driver.NamedValue,
) (driver.Rows, error) {
	if c.d.queryErr != nil {
		return nil, c.d.queryErr
	}
	return &stubRows{rows: c.d.rows}, nil
}

type stubRows struct {
	rows [][]driver.Value
	pos  int
}

func (*stubRows) Columns() []string {
	return []string{"name", "category", "price", "rating", "description"}
}

func (*stubRows) Close() error { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos == len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

var registerOnce sync.Once

var activeStub = new(stubDriver)

func openStubDB(t *testing.T, d stubDriver) *sql.DB {
	t.Helper()
	registerOnce.Do(func() {
		sql.Register("catalogstub", activeStub)
	})
	*activeStub = d

	db, err := sql.Open("catalogstub", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestProductsRepositoryReadProducts(t *testing.T) {
	t.Run("Rows", func(t *testing.T) {
		db := openStubDB(t, stubDriver{rows: [][]driver.Value{
			{"Mug", "Kitchen", 12.5, 4.1, "ceramic"},
			{"Pen", "Office", 2.0, 0.0, "blue ink"},
		}})

		got, err := NewProductsRepository(db).ReadProducts(t.Context())
		require.NoError(t, err)
		assert.Equal(t, []domain.Product{
			{Name: "Mug", Category: "Kitchen", Price: 12.5, Rating: 4.1, Description: "ceramic"},
			{Name: "Pen", Category: "Office", Price: 2, Description: "blue ink"},
		}, got)
	})

	t.Run("QueryFailed", func(t *testing.T) {
		db := openStubDB(t, stubDriver{queryErr: errors.New("relation does not exist")})

		_, err := NewProductsRepository(db).ReadProducts(t.Context())
		assert.ErrorContains(t, err, "relation does not exist")
	})

	t.Run("ScanFailed", func(t *testing.T) {
		db := openStubDB(t, stubDriver{rows: [][]driver.Value{
			{"Mug", "Kitchen", "not a price", 4.1, "ceramic"},
		}})

		_, err := NewProductsRepository(db).ReadProducts(t.Context())
		assert.ErrorContains(t, err, "failed to scan")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		db := openStubDB(t, stubDriver{})
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := NewProductsRepository(db).ReadProducts(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewSQLDBInvalidDSN(t *testing.T) {
	_, err := NewSQLDB(t.Context(), "postgres://user@host:notaport/db")
	assert.ErrorContains(t, err, "invalid dsn")
}
