package gosm

import (
	"regexp"
	"strconv"
	"strings"
)

/*
Parsed representation of one mapped SQL operation, such as:

	<mapper namespace="users">
		<select id="byId" parameterType="long" resultType="User">
			select id, user_name from users where id = #{id}
		</select>
	</mapper>

`Sql` holds the statement text with every `#{name}` placeholder replaced by the
positional marker `?`. `Params[i]` is the parameter name for the i-th marker,
left to right. The same name may appear at several positions.

Statements are built by `BuildRegistry()` or `ParseStatementSql()` and must be
treated as immutable.
*/
type Statement struct {
	Namespace     string
	Id            string
	ParameterType string
	ResultType    string
	Sql           string
	Params        []string

	// Text between markers. Always has `len(Params) + 1` elements.
	chunks []string
}

// Registry key of the statement: `namespace + "." + id`.
func (self Statement) Key() string {
	return StatementKey(self.Namespace, self.Id)
}

// Shortcut for building a registry key.
func StatementKey(namespace, id string) string {
	return namespace + "." + id
}

/*
Returns the statement text with positional markers in the given style. For
`PlaceholderQuestion` this is the same as `.Sql`. For `PlaceholderDollar`, the
markers are numbered `$1`, `$2`, and so on, in textual order.

Rendering uses the chunks recorded during parsing, so `?` characters that were
part of the original text (e.g. inside string literals) are never touched.
*/
func (self Statement) Render(style Placeholder) string {
	if style == PlaceholderQuestion || len(self.chunks) == 0 {
		return self.Sql
	}

	var buf strings.Builder
	for i, chunk := range self.chunks {
		if i > 0 {
			buf.WriteString(style.marker(i))
		}
		buf.WriteString(chunk)
	}
	return buf.String()
}

/*
Replaces every `#{name}` placeholder in the text with the positional marker `?`
and returns the rewritten text together with the parameter name of each marker
in textual order. The name is everything between `#{` and the next `}`.

Each occurrence is replaced independently. For example, this:

	select * from t where a = #{id} or b = #{name} or c = #{id}

Becomes this:

	Sql:    `select * from t where a = ? or b = ? or c = ?`
	Params: []string{"id", "name", "id"}
*/
func ParseStatementSql(text string) (string, []string) {
	stmt := parseStatementSql(text)
	return stmt.Sql, stmt.Params
}

func parseStatementSql(text string) Statement {
	matches := hashParamRegexp.FindAllStringSubmatchIndex(text, -1)

	chunks := make([]string, 0, len(matches)+1)
	params := make([]string, 0, len(matches))
	prev := 0

	for _, match := range matches {
		chunks = append(chunks, text[prev:match[0]])
		params = append(params, text[match[2]:match[3]])
		prev = match[1]
	}
	chunks = append(chunks, text[prev:])

	return Statement{
		Sql:    strings.Join(chunks, "?"),
		Params: params,
		chunks: chunks,
	}
}

var hashParamRegexp = regexp.MustCompile(`#\{([^}]*)\}`)

/*
Positional parameter style expected by the driver. Gosm always stores `?` in
`Statement.Sql`, and renders other styles right before execution.
*/
type Placeholder int

const (
	// `?` (MySQL, SQLite, and most JDBC-style drivers).
	PlaceholderQuestion Placeholder = iota
	// `$1, $2, ...` (PostgreSQL).
	PlaceholderDollar
)

func (self Placeholder) marker(ordinal int) string {
	switch self {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(ordinal)
	default:
		return "?"
	}
}

/*
Picks a `Placeholder` based on a `database/sql` driver name. Anything that
isn't a known PostgreSQL driver gets `PlaceholderQuestion`.
*/
func PlaceholderFor(driverName string) Placeholder {
	switch strings.ToLower(driverName) {
	case "postgres", "postgresql", "pgx", "pq", "lib/pq", "pg":
		return PlaceholderDollar
	default:
		return PlaceholderQuestion
	}
}

func parsePlaceholder(name string) (Placeholder, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "question", "?":
		return PlaceholderQuestion, true
	case "dollar", "$":
		return PlaceholderDollar, true
	default:
		return 0, false
	}
}
