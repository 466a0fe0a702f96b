package db

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

// mockRow scans values into dest in order, or returns scanErr.
type mockRow struct {
	values  []any
	scanErr error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return assign(dest, r.values)
}

// --- Mock Rows ---

// mockRows implements pgx.Rows for testing Query results.
type mockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return assign(dest, r.data[r.idx])
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// assign copies values into scan destinations. A nil value zeroes the
// destination, which matches a NULL scanned into a pointer.
func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		if !v.Type().AssignableTo(target.Type()) {
			if !v.Type().ConvertibleTo(target.Type()) {
				return fmt.Errorf("scan: column %d: cannot assign %s to %s", i, v.Type(), target.Type())
			}
			v = v.Convert(target.Type())
		}
		target.Set(v)
	}
	return nil
}

// --- Mock batch ---

type mockBatchSender struct {
	queued  int
	results *mockBatchResults
}

func (m *mockBatchSender) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	m.queued = b.Len()
	return m.results
}

type mockBatchResults struct {
	tags   []pgconn.CommandTag
	errAt  int
	err    error
	idx    int
	closed bool
}

func (r *mockBatchResults) Exec() (pgconn.CommandTag, error) {
	i := r.idx
	r.idx++
	if r.err != nil && i == r.errAt {
		return pgconn.CommandTag{}, r.err
	}
	return r.tags[i], nil
}

func (r *mockBatchResults) Query() (pgx.Rows, error) { return nil, nil }
func (r *mockBatchResults) QueryRow() pgx.Row        { return &mockRow{} }
func (r *mockBatchResults) Close() error {
	r.closed = true
	return nil
}
