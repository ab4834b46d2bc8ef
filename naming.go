package gosm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

/*
Converts a column name to the field key used for lookup in a `ResultType`.
Lower snake case becomes lower camel case: `user_name` → `userName`, `id` →
`id`. A name without underscores that already starts with an uppercase letter
is returned unchanged (`Name` → `Name`), to tolerate columns that are already
camel-cased.

Columns aliased with dots address nested fields; each segment is converted on
its own: `home_address.zip_code` → `homeAddress.zipCode`.
*/
func ColumnFieldName(col string) string {
	if !strings.Contains(col, ".") {
		return columnSegmentFieldName(col)
	}
	segments := strings.Split(col, ".")
	for i := range segments {
		segments[i] = columnSegmentFieldName(segments[i])
	}
	return strings.Join(segments, ".")
}

func columnSegmentFieldName(col string) string {
	if !strings.Contains(col, "_") {
		first, _ := utf8.DecodeRuneInString(col)
		if unicode.IsUpper(first) {
			return col
		}
		return lowerFirst(col)
	}

	var buf strings.Builder
	for _, word := range strings.Split(col, "_") {
		buf.WriteString(upperFirst(word))
	}
	return lowerFirst(buf.String())
}

/*
Lower-camel key of a Go field name that treats initialisms as single words:
`ID` → `id`, `UserID` → `userId`, `HTTPServer` → `httpServer`. This is the
key `ColumnFieldName()` produces for the matching snake-case column.
*/
func goFieldKey(name string) string {
	runes := []rune(name)
	var buf strings.Builder

	for i, char := range runes {
		if i > 0 && unicode.IsUpper(char) && isWordStart(runes, i) {
			buf.WriteRune(char)
			continue
		}
		buf.WriteRune(unicode.ToLower(char))
	}
	return buf.String()
}

// An uppercase rune starts a word after a non-uppercase rune, or when it's the
// last capital of an initialism followed by a lowercase rune: `HTTPServer`.
func isWordStart(runes []rune, i int) bool {
	if !unicode.IsUpper(runes[i-1]) {
		return true
	}
	return i+1 < len(runes) && unicode.IsLower(runes[i+1])
}

/*
Columns that are never mapped: empty names and names starting with `_`, which
by convention are internal to the query.
*/
func isReservedColumn(col string) bool {
	return col == "" || col[0] == '_'
}

func upperFirst(str string) string {
	first, size := utf8.DecodeRuneInString(str)
	if size == 0 || unicode.IsUpper(first) {
		return str
	}
	return string(unicode.ToUpper(first)) + str[size:]
}

func lowerFirst(str string) string {
	first, size := utf8.DecodeRuneInString(str)
	if size == 0 || unicode.IsLower(first) {
		return str
	}
	return string(unicode.ToLower(first)) + str[size:]
}
