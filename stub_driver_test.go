package gosm

import (
	"database/sql"
	"database/sql/driver"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

/*
In-memory driver for tests. Each DSN names a `stubDb` holding canned results
keyed by the exact query text the driver receives. Every query is recorded
together with its arguments, which lets tests check placeholder rendering and
parameter binding without a real database.

DSNs starting with "unreachable" fail on connect.
*/
const stubDriverName = `gosm_stub`

func init() {
	sql.Register(stubDriverName, stubDriver{})
}

var stubDbs sync.Map

type stubDb struct {
	sync.Mutex
	results map[string]stubResult
	calls   []stubCall
	fetched int
	opened  int
	closed  int
}

type stubResult struct {
	cols []string
	rows [][]driver.Value
	err  error
}

type stubCall struct {
	Query string
	Args  []driver.Value
}

// Registers a fresh stub database under a DSN unique to the test.
func newStubDb(t testing.TB) (*stubDb, string) {
	dsn := `stub:` + t.Name()
	db := &stubDb{results: map[string]stubResult{}}
	stubDbs.Store(dsn, db)
	t.Cleanup(func() { stubDbs.Delete(dsn) })
	return db, dsn
}

// Opens the stub database through "database/sql", like a caller would.
func openStubDb(t testing.TB) (*sql.DB, *stubDb) {
	stub, dsn := newStubDb(t)
	db, err := sql.Open(stubDriverName, dsn)
	try(t, err)
	t.Cleanup(func() { db.Close() })
	return db, stub
}

func (self *stubDb) on(query string, cols []string, rows ...[]driver.Value) {
	self.Lock()
	defer self.Unlock()
	self.results[query] = stubResult{cols: cols, rows: rows}
}

func (self *stubDb) fail(query string, err error) {
	self.Lock()
	defer self.Unlock()
	self.results[query] = stubResult{err: err}
}

func (self *stubDb) lastCall(t testing.TB) stubCall {
	t.Helper()
	self.Lock()
	defer self.Unlock()
	if len(self.calls) == 0 {
		t.Fatalf(`expected at least one query`)
	}
	return self.calls[len(self.calls)-1]
}

type stubDriver struct{}

func (stubDriver) Open(dsn string) (driver.Conn, error) {
	if strings.HasPrefix(dsn, `unreachable`) {
		return nil, errors.New(`connection refused`)
	}
	val, ok := stubDbs.Load(dsn)
	if !ok {
		return nil, errors.Errorf(`unknown stub database %q`, dsn)
	}
	db := val.(*stubDb)
	db.Lock()
	db.opened++
	db.Unlock()
	return &stubConn{db: db}, nil
}

type stubConn struct{ db *stubDb }

func (self *stubConn) Prepare(query string) (driver.Stmt, error) {
	return &stubStmt{db: self.db, query: query}, nil
}

func (self *stubConn) Close() error {
	self.db.Lock()
	self.db.closed++
	self.db.Unlock()
	return nil
}

func (self *stubConn) Begin() (driver.Tx, error) {
	return nil, errors.New(`transactions are not supported by the stub driver`)
}

type stubStmt struct {
	db    *stubDb
	query string
}

func (self *stubStmt) Close() error  { return nil }
func (self *stubStmt) NumInput() int { return -1 }

func (self *stubStmt) Exec([]driver.Value) (driver.Result, error) {
	return nil, errors.New(`exec is not supported by the stub driver`)
}

func (self *stubStmt) Query(args []driver.Value) (driver.Rows, error) {
	db := self.db
	db.Lock()
	defer db.Unlock()

	db.calls = append(db.calls, stubCall{Query: self.query, Args: append([]driver.Value(nil), args...)})

	res, ok := db.results[self.query]
	if !ok {
		return nil, errors.Errorf(`no stub result for query %q`, self.query)
	}
	if res.err != nil {
		return nil, res.err
	}
	return &stubRows{db: db, cols: res.cols, rows: res.rows}, nil
}

type stubRows struct {
	db   *stubDb
	cols []string
	rows [][]driver.Value
	pos  int
}

func (self *stubRows) Columns() []string { return self.cols }
func (self *stubRows) Close() error      { return nil }

func (self *stubRows) Next(dest []driver.Value) error {
	if self.pos >= len(self.rows) {
		return io.EOF
	}
	copy(dest, self.rows[self.pos])
	self.pos++

	self.db.Lock()
	self.db.fetched++
	self.db.Unlock()
	return nil
}
