/*
Go SQL Mapper: loads SQL statements declared in XML mapper documents, binds
parameters into them, executes them over "database/sql", and decodes rows into
Go structs. You write PLAIN SQL in the mapper; Gosm only rewrites the
placeholders.

Key Features

• Statements are declared once, in mapper documents, and addressed by
`namespace.id`. See `BuildRegistry()`.

• Named placeholders `#{name}` become positional parameters. See
`ParseStatementSql()`.

• Parameters come from a scalar, a struct, or a map. See `Session.SelectOne()`.

• Rows are decoded into records by column name, with lenient type
reconciliation. See `ResultType`.

• Every failure is a typed error; "no rows" and "failed" are never confused.
See `Err`.

Configuration

A configuration document names a data source and the mapper documents:

	<configuration>
		<dataSource>
			<property name="driver" value="postgres"/>
			<property name="url" value="postgres://localhost/app?sslmode=disable"/>
		</dataSource>
		<mappers>
			<mapper resource="mapper/users.xml"/>
		</mappers>
	</configuration>

A mapper document declares statements under a namespace:

	<mapper namespace="users">
		<select id="byId" parameterType="long" resultType="User">
			select id, user_name, created_at from users where id = #{id}
		</select>
	</mapper>

Usage:

	types := gosm.NewTypes(gosm.StructType[User]("User"))

	factory, err := gosm.Build(ctx, configReader, gosm.WithTypes(types))
	if err != nil {
		return err
	}
	defer factory.Close()

	sess, err := factory.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	user, err := gosm.SelectOne[User](ctx, sess, `users.byId`, 3)

Record Decoding Rules

When decoding a row into a record, Gosm observes the following rules.

1. Columns whose name is empty or starts with `_` are ignored.

2. A column name is converted to a field key by turning lower snake case into
lower camel case: `user_name` → `userName`. A name without underscores that
already starts with an uppercase letter is kept as-is: `Name` → `Name`. See
`ColumnFieldName()`.

3. Columns without a matching field are ignored.

4. Null values leave the field untouched.

5. Values are reconciled with the field before assignment. Numeric fields
accept numeric text. Sequence fields accept a single value as a one-element
sequence. Any other mismatch leaves the field untouched without an error. This
tolerates loosely typed result stores.

6. Columns aliased with dots, like `"address.city"`, address fields of nested
structs.

Connections

Every session opened by `Factory.OpenSession()` holds its own connection from
the factory's pool and returns it on `Session.Close()`. The factory built by
`Build()` owns the pool; `Factory.Close()` closes it. A factory built over a
caller's `*sql.DB` never closes it.

Gosm doesn't manage transactions, cache results, or translate SQL. To run
statements inside a transaction, use `Factory.SessionOn(tx)`.
*/
package gosm
