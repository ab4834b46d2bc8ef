package gosm

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

type User struct {
	Id        int64
	UserName  string
	CreatedAt time.Time
	Tags      []string
	Score     float64
	Address   *Address
}

type Address struct {
	City    string
	ZipCode string
}

const testMapper = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE mapper PUBLIC "-//mybatis.org//DTD Mapper 3.0//EN" "http://mybatis.org/dtd/mybatis-3-mapper.dtd">
<mapper namespace="ns">
	<select id="queryById" parameterType="java.lang.Long" resultType="User">
		SELECT id, user_name FROM user WHERE id = #{id}
	</select>
	<select id="queryAll" resultType="com.example.User">
		SELECT * FROM user
	</select>
	<select id="queryByName" parameterType="User" resultType="User">
		SELECT * FROM user WHERE user_name = #{userName} OR id = #{id}
	</select>
</mapper>`

func testConfig(dsn string, extra string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<configuration>
	<environments default="development">
		<environment id="development">
			<transactionManager type="JDBC"/>
			<dataSource type="POOLED">
				<property name="driver" value="%v"/>
				<property name="url" value="%v"/>
				%v
			</dataSource>
		</environment>
	</environments>
	<mappers>
		<mapper resource="mapper/user.xml"/>
	</mappers>
</configuration>`, stubDriverName, dsn, extra)
}

func testFS() fstest.MapFS {
	return fstest.MapFS{
		`mapper/user.xml`: {Data: []byte(testMapper)},
	}
}

func testTypes() *Types {
	return NewTypes(StructType[User]("User"))
}

func testFactory(t *testing.T, opts ...Option) (*Factory, *stubDb) {
	stub, dsn := newStubDb(t)
	opts = append([]Option{WithResolver(FSResolver{testFS()}), WithTypes(testTypes()), WithLogger(testLogger(t))}, opts...)

	factory, err := Build(context.Background(), strings.NewReader(testConfig(dsn, ``)), opts...)
	try(t, err)
	t.Cleanup(func() { factory.Close() })
	return factory, stub
}

func testSession(t *testing.T, opts ...Option) (context.Context, *Session, *stubDb) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	factory, stub := testFactory(t, opts...)
	sess, err := factory.OpenSession(ctx)
	try(t, err)
	t.Cleanup(func() { sess.Close() })
	return ctx, sess, stub
}

const (
	queryById   = `SELECT id, user_name FROM user WHERE id = ?`
	queryAll    = `SELECT * FROM user`
	queryByName = `SELECT * FROM user WHERE user_name = ? OR id = ?`
)

func TestSelectOne_end_to_end(t *testing.T) {
	ctx, sess, stub := testSession(t)
	stub.on(queryById, []string{`id`, `user_name`}, []driver.Value{int64(3), `Ann`})

	rec, err := sess.SelectOne(ctx, `ns.queryById`, int64(3))
	try(t, err)

	eq(t, &User{Id: 3, UserName: `Ann`}, rec)
	eq(t, stubCall{Query: queryById, Args: []driver.Value{int64(3)}}, stub.lastCall(t))
}

func TestSelectOne_generic(t *testing.T) {
	ctx, sess, stub := testSession(t)
	stub.on(queryById, []string{`id`, `user_name`}, []driver.Value{int64(3), []byte(`Ann`)})

	user, err := SelectOne[User](ctx, sess, `ns.queryById`, 3)
	try(t, err)
	eq(t, User{Id: 3, UserName: `Ann`}, user)
}

func TestSelectOne_generic_type_mismatch(t *testing.T) {
	ctx, sess, stub := testSession(t)
	stub.on(queryById, []string{`id`}, []driver.Value{int64(3)})

	_, err := SelectOne[Address](ctx, sess, `ns.queryById`, 3)
	errIs(t, err, ErrInstantiation)
}

func TestSelectOne_no_rows(t *testing.T) {
	ctx, sess, stub := testSession(t)
	stub.on(queryById, []string{`id`, `user_name`})

	_, err := sess.SelectOne(ctx, `ns.queryById`, 3)
	errIs(t, err, ErrNotFound)
	errIs(t, err, sql.ErrNoRows)
}

func TestSelectOne_first_of_many(t *testing.T) {
	ctx, sess, stub := testSession(t)
	stub.on(queryAll, []string{`id`, `user_name`},
		[]driver.Value{int64(1), `one`},
		[]driver.Value{int64(2), `two`},
		[]driver.Value{int64(3), `three`},
	)

	rec, err := sess.SelectOne(ctx, `ns.queryAll`, nil)
	try(t, err)
	eq(t, &User{Id: 1, UserName: `one`}, rec)

	if stub.fetched != 1 {
		t.Fatalf(`expected exactly one row to be fetched, got %v`, stub.fetched)
	}
}

func TestSelectList(t *testing.T) {
	ctx, sess, stub := testSession(t)
	stub.on(queryAll, []string{`id`, `user_name`},
		[]driver.Value{int64(2), `two`},
		[]driver.Value{int64(1), `one`},
	)

	users, err := SelectList[User](ctx, sess, `ns.queryAll`, nil)
	try(t, err)
	eq(t, []User{{Id: 2, UserName: `two`}, {Id: 1, UserName: `one`}}, users)
}

func TestSelectList_empty(t *testing.T) {
	ctx, sess, stub := testSession(t)
	stub.on(queryAll, []string{`id`, `user_name`})

	recs, err := sess.SelectList(ctx, `ns.queryAll`, nil)
	try(t, err)
	if recs == nil || len(recs) != 0 {
		t.Fatalf(`expected an empty non-nil slice, got %#v`, recs)
	}
}

func TestSelect_struct_param(t *testing.T) {
	ctx, sess, stub := testSession(t)
	stub.on(queryByName, []string{`id`}, []driver.Value{int64(9)})

	_, err := sess.SelectList(ctx, `ns.queryByName`, User{Id: 9, UserName: `Bob`})
	try(t, err)

	eq(t, stubCall{Query: queryByName, Args: []driver.Value{`Bob`, int64(9)}}, stub.lastCall(t))
}

func TestSelect_scalar_for_distinct_params(t *testing.T) {
	ctx, sess, _ := testSession(t)
	_, err := sess.SelectList(ctx, `ns.queryByName`, `Bob`)
	errIs(t, err, ErrInvalidParameter)
}

func TestSelect_no_such_statement(t *testing.T) {
	ctx, sess, _ := testSession(t)

	for _, key := range []string{`queryById`, `other.queryById`, `ns.missing`, ``} {
		_, err := sess.SelectOne(ctx, key, 3)
		errIs(t, err, ErrNoSuchStatement)

		_, err = sess.SelectList(ctx, key, 3)
		errIs(t, err, ErrNoSuchStatement)
	}
}

func TestSelect_unregistered_result_type(t *testing.T) {
	ctx, sess, stub := testSession(t, WithTypes(NewTypes()))
	stub.on(queryAll, []string{`id`}, []driver.Value{int64(1)})

	_, err := sess.SelectList(ctx, `ns.queryAll`, nil)
	errIs(t, err, ErrInstantiation)
}

func TestSelect_driver_error(t *testing.T) {
	ctx, sess, stub := testSession(t)
	stub.fail(queryAll, errors.New(`relation "user" does not exist`))

	_, err := sess.SelectList(ctx, `ns.queryAll`, nil)
	errIs(t, err, ErrExecution)
	if !strings.Contains(err.Error(), `relation "user" does not exist`) {
		t.Fatalf(`expected the driver error to be preserved, got %v`, err)
	}
}

func TestSession_close(t *testing.T) {
	ctx, sess, stub := testSession(t)
	stub.on(queryById, []string{`id`}, []driver.Value{int64(3)})

	try(t, sess.Close())
	try(t, sess.Close())

	_, err := sess.SelectOne(ctx, `ns.queryById`, 3)
	errIs(t, err, ErrSessionClosed)

	_, err = sess.SelectList(ctx, `ns.queryById`, 3)
	errIs(t, err, ErrSessionClosed)

	if len(stub.calls) != 0 {
		t.Fatalf(`expected no queries after close, got %v`, stub.calls)
	}
}

func TestSession_own_connection(t *testing.T) {
	ctx := context.Background()
	factory, stub := testFactory(t)
	stub.on(queryById, []string{`id`}, []driver.Value{int64(3)})

	one, err := factory.OpenSession(ctx)
	try(t, err)
	two, err := factory.OpenSession(ctx)
	try(t, err)

	try(t, one.Close())

	_, err = two.SelectOne(ctx, `ns.queryById`, 3)
	try(t, err)
	try(t, two.Close())
}

func TestSession_on_caller_connection(t *testing.T) {
	ctx := context.Background()
	db, stub := openStubDb(t)
	stub.on(queryById, []string{`id`, `user_name`}, []driver.Value{int64(5), `Eve`})

	reg, err := BuildMapperRegistry([]*Node{mustParse(t, testMapper)})
	try(t, err)

	factory := NewFactory(reg, db, WithTypes(testTypes()))
	conn, err := db.Conn(ctx)
	try(t, err)
	defer conn.Close()

	sess := factory.SessionOn(conn)
	user, err := SelectOne[User](ctx, sess, `ns.queryById`, 5)
	try(t, err)
	eq(t, User{Id: 5, UserName: `Eve`}, user)

	try(t, sess.Close())
	try(t, factory.Close())

	// Neither the session nor the factory own the connection.
	try(t, conn.PingContext(ctx))
}

func TestBuild_placeholder_setting(t *testing.T) {
	stub, dsn := newStubDb(t)
	config := testConfig(dsn, `<property name="placeholder" value="dollar"/>`)

	factory, err := Build(context.Background(), strings.NewReader(config),
		WithResolver(FSResolver{testFS()}), WithTypes(testTypes()))
	try(t, err)
	defer factory.Close()

	const dollarQuery = `SELECT * FROM user WHERE user_name = $1 OR id = $2`
	stub.on(dollarQuery, []string{`id`}, []driver.Value{int64(1)})

	sess, err := factory.OpenSession(context.Background())
	try(t, err)
	defer sess.Close()

	_, err = sess.SelectList(context.Background(), `ns.queryByName`, map[string]interface{}{`userName`: `A`, `id`: 1})
	try(t, err)
	eq(t, stubCall{Query: dollarQuery, Args: []driver.Value{`A`, int64(1)}}, stub.lastCall(t))
}

func TestBuild_unknown_placeholder_setting(t *testing.T) {
	_, dsn := newStubDb(t)
	config := testConfig(dsn, `<property name="placeholder" value="colon"/>`)

	_, err := Build(context.Background(), strings.NewReader(config), WithResolver(FSResolver{testFS()}))
	errIs(t, err, ErrConfiguration)
}

func TestBuild_unreachable(t *testing.T) {
	_, err := Build(context.Background(), strings.NewReader(testConfig(`unreachable`, ``)),
		WithResolver(FSResolver{testFS()}))
	errIs(t, err, ErrConnection)
}

func TestBuild_unknown_driver(t *testing.T) {
	config := strings.Replace(testConfig(`whatever`, ``), stubDriverName, `com.mysql.jdbc.Driver`, 1)
	_, err := Build(context.Background(), strings.NewReader(config), WithResolver(FSResolver{testFS()}))
	errIs(t, err, ErrConnection)
}

func TestBuild_missing_url(t *testing.T) {
	config := `<configuration><dataSource><property name="driver" value="postgres"/></dataSource></configuration>`
	_, err := Build(context.Background(), strings.NewReader(config))
	errIs(t, err, ErrConfiguration)
}

func TestBuild_missing_data_source(t *testing.T) {
	config := `<configuration><mappers/></configuration>`
	_, err := Build(context.Background(), strings.NewReader(config))
	errIs(t, err, ErrConfiguration)
}

func TestBuild_malformed_document(t *testing.T) {
	_, err := Build(context.Background(), strings.NewReader(`<configuration><dataSource>`))
	errIs(t, err, ErrConfiguration)
}

func TestFactory_close_owned(t *testing.T) {
	factory, stub := testFactory(t)

	sess, err := factory.OpenSession(context.Background())
	try(t, err)
	try(t, sess.Close())

	try(t, factory.Close())
	try(t, factory.Close())

	if stub.opened == 0 || stub.opened != stub.closed {
		t.Fatalf(`expected every driver connection to be closed, opened %v, closed %v`, stub.opened, stub.closed)
	}

	_, err = factory.OpenSession(context.Background())
	errIs(t, err, ErrConnection)
}

func TestBuildWithDB(t *testing.T) {
	db, stub := openStubDb(t)
	fsys := fstest.MapFS{
		`mapper/user.xml`:       {Data: []byte(testMapper)},
		`mapper/admin/role.xml`: {Data: []byte(`<mapper namespace="roles"><select id="all" resultType="User">select 1</select></mapper>`)},
		`mapper/readme.txt`:     {Data: []byte(`not a mapper`)},
	}

	factory, err := BuildWithDB(db, `mapper/**/*.xml`, WithResolver(FSResolver{fsys}), WithTypes(testTypes()))
	try(t, err)
	eq(t, []string{`ns.queryAll`, `ns.queryById`, `ns.queryByName`, `roles.all`}, factory.Registry().Keys())
	eq(t, map[string]string(nil), factory.Registry().DataSource())

	stub.on(`select 1`, []string{`id`}, []driver.Value{int64(1)})
	sess, err := factory.OpenSession(context.Background())
	try(t, err)
	defer sess.Close()

	user, err := SelectOne[User](context.Background(), sess, `roles.all`, nil)
	try(t, err)
	eq(t, User{Id: 1}, user)
}

func TestBuildWithDB_bad_mapper(t *testing.T) {
	db, _ := openStubDb(t)
	fsys := fstest.MapFS{`mapper/broken.xml`: {Data: []byte(`<mapper namespace="x"><select id="a">`)}}

	_, err := BuildWithDB(db, `mapper/*.xml`, WithResolver(FSResolver{fsys}))
	errIs(t, err, ErrConfiguration)
}

func TestNewFactory_placeholder(t *testing.T) {
	ctx := context.Background()
	db, stub := openStubDb(t)
	reg, err := BuildMapperRegistry([]*Node{mustParse(t, testMapper)})
	try(t, err)

	eq(t, PlaceholderQuestion, NewFactory(reg, db).placeholder)

	factory := NewFactory(reg, db, WithTypes(testTypes()), WithPlaceholder(PlaceholderDollar))
	const dollarQuery = `SELECT id, user_name FROM user WHERE id = $1`
	stub.on(dollarQuery, []string{`id`}, []driver.Value{int64(4)})

	sess, err := factory.OpenSession(ctx)
	try(t, err)
	defer sess.Close()

	user, err := SelectOne[User](ctx, sess, `ns.queryById`, 4)
	try(t, err)
	eq(t, User{Id: 4}, user)
	eq(t, dollarQuery, stub.lastCall(t).Query)
}

func TestDbPlaceholder_postgres(t *testing.T) {
	db, err := sql.Open(`postgres`, `postgres://localhost/gosm_test?sslmode=disable`)
	try(t, err)
	defer db.Close()

	eq(t, PlaceholderDollar, dbPlaceholder(db))
	eq(t, PlaceholderQuestion, dbPlaceholder(nil))
}

func TestSelect_unbound_param_logged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	ctx, sess, stub := testSession(t, WithLogger(log))
	stub.on(queryByName, []string{`id`}, []driver.Value{int64(1)})

	_, err := sess.SelectList(ctx, `ns.queryByName`, map[string]interface{}{`id`: 1})
	try(t, err)

	eq(t, []driver.Value{nil, int64(1)}, stub.lastCall(t).Args)
	if !strings.Contains(buf.String(), `parameter left unbound`) || !strings.Contains(buf.String(), `name=userName`) {
		t.Fatalf(`expected a warning about the unbound parameter, got %q`, buf.String())
	}
}

func TestSelect_strict_params(t *testing.T) {
	ctx, sess, _ := testSession(t, WithStrictParams())

	_, err := sess.SelectList(ctx, `ns.queryByName`, map[string]interface{}{`id`: 1})
	errIs(t, err, ErrUnsupportedParameter)
}

func mustParse(t testing.TB, src string) *Node {
	t.Helper()
	node, err := ParseDocument(strings.NewReader(src))
	try(t, err)
	return node
}

type testLogWriter struct{ t testing.TB }

func (self testLogWriter) Write(chunk []byte) (int, error) {
	self.t.Log(strings.TrimSpace(string(chunk)))
	return len(chunk), nil
}

func testLogger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(testLogWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func tFieldEq(t *testing.T, fieldName string, left interface{}, right interface{}) {
	t.Helper()
	if !reflect.DeepEqual(left, right) {
		t.Fatalf(`mismatch in field %q: %#v vs. %#v`, fieldName, left, right)
	}
}

func try(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%+v", err)
	}
}

func eq(t testing.TB, exp, act interface{}, opts ...cmp.Option) {
	t.Helper()
	if diff := cmp.Diff(exp, act, opts...); diff != "" {
		t.Fatalf("expected:\n%v\nactual:\n%v\ndiff (-expected +actual):\n%v", spew.Sdump(exp), spew.Sdump(act), diff)
	}
}

func errIs(t testing.TB, err error, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected error %v, got %+v", target, err)
	}
}
