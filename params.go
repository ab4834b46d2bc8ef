package gosm

import (
	"database/sql/driver"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"time"

	"github.com/mitranim/refut"
)

/*
Produces the positional arguments for a statement, one per entry of
`stmt.Params`. The parameter may be:

	* nil: only valid for statements without placeholders.

	* A scalar (integer, float, bool, string, `time.Time`, `[]byte`, or any
	  `driver.Valuer`): every slot receives the same value. Because of that, the
	  statement must not reference more than one distinct parameter name, or
	  binding fails with `ErrInvalidParameter`.

	* A struct or struct pointer: slot i receives the field named
	  `stmt.Params[i]`; see `structParams()` for how names are matched.

	* A map with string keys: slot i receives the value under key
	  `stmt.Params[i]`.

A slot whose value is missing or of an unsupported type is bound to NULL and
reported via the logger. With `strict`, this fails with
`ErrUnsupportedParameter` instead.
*/
func bindParams(stmt Statement, param interface{}, strict bool, log *slog.Logger) ([]interface{}, error) {
	if len(stmt.Params) == 0 {
		return nil, nil
	}

	if refut.IsNil(param) {
		return nil, ErrInvalidParameter.while(`binding parameters of ` + stmt.Key()).becausef(
			`statement expects %d parameter(s) %q, got none`, len(stmt.Params), stmt.Params)
	}

	if val, ok := scalarParam(param); ok {
		if names := distinctStrings(stmt.Params); len(names) > 1 {
			return nil, ErrInvalidParameter.while(`binding parameters of ` + stmt.Key()).becausef(
				`a single %T value can't satisfy distinct parameters %q; pass a struct or map`, param, names)
		}
		args := make([]interface{}, len(stmt.Params))
		for i := range args {
			args[i] = val
		}
		return args, nil
	}

	lookup, err := namedParams(param)
	if err != nil {
		return nil, ErrInvalidParameter.while(`binding parameters of ` + stmt.Key()).because(err)
	}

	args := make([]interface{}, len(stmt.Params))
	for i, name := range stmt.Params {
		raw, found := lookup(name)
		var val interface{}
		ok := false
		if found {
			val, ok = scalarParam(raw)
		}

		if !ok {
			reason := `missing`
			if found {
				reason = fmt.Sprintf(`unsupported type %T`, raw)
			}
			if strict {
				return nil, ErrUnsupportedParameter.while(`binding parameters of ` + stmt.Key()).becausef(
					`parameter %q at position %d: %v`, name, i+1, reason)
			}
			log.Warn(`parameter left unbound`,
				`key`, stmt.Key(), `position`, i+1, `name`, name, `reason`, reason)
			continue
		}

		args[i] = val
	}
	return args, nil
}

/*
Normalizes a value that can be bound to a single positional slot. Returns
false for values that aren't scalars. A nil pointer binds as NULL.
*/
func scalarParam(input interface{}) (interface{}, bool) {
	switch input := input.(type) {
	case nil:
		return nil, true
	case driver.Valuer:
		return input, true
	case time.Time:
		return input, true
	case []byte:
		return input, true
	}

	rval := reflect.ValueOf(input)
	switch rval.Kind() {
	case reflect.Ptr:
		if rval.IsNil() {
			return nil, true
		}
		return scalarParam(rval.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rval.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		num := rval.Uint()
		if num > math.MaxInt64 {
			return nil, false
		}
		return int64(num), true
	case reflect.Float32, reflect.Float64:
		return rval.Float(), true
	case reflect.Bool:
		return rval.Bool(), true
	case reflect.String:
		return rval.String(), true
	case reflect.Struct:
		if rval.Type().ConvertibleTo(timeRtype) {
			return rval.Convert(timeRtype).Interface(), true
		}
	}
	return nil, false
}

func namedParams(param interface{}) (func(string) (interface{}, bool), error) {
	rval := reflect.ValueOf(param)
	for rval.Kind() == reflect.Ptr {
		rval = rval.Elem()
	}

	switch rval.Kind() {
	case reflect.Map:
		if rval.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf(`map parameter must have string keys, got %v`, rval.Type())
		}
		return func(name string) (interface{}, bool) {
			val := rval.MapIndex(reflect.ValueOf(name).Convert(rval.Type().Key()))
			if !val.IsValid() {
				return nil, false
			}
			return val.Interface(), true
		}, nil

	case reflect.Struct:
		fields := structParams(rval)
		return func(name string) (interface{}, bool) {
			val, ok := fields[name]
			return val, ok
		}, nil

	default:
		return nil, fmt.Errorf(`expected a scalar, struct or map parameter, got %T`, param)
	}
}

/*
Collects the exported fields of a struct, keyed by every name a placeholder may
use for them: the `db` tag if present, otherwise both the Go name and its
lower-camel form. For a field `UserId`, both `#{userId}` and `#{UserId}` work.
Initialisms are lowered as whole words, so `UserID` also answers to `#{userId}`.
Fields of embedded structs are treated as part of the enclosing struct; a nil
embedded pointer contributes nothing.
*/
func structParams(rval reflect.Value) map[string]interface{} {
	out := map[string]interface{}{}
	traverseStructParams(rval, out)
	return out
}

func traverseStructParams(rval reflect.Value, out map[string]interface{}) {
	rtype := rval.Type()

	for i := 0; i < rtype.NumField(); i++ {
		sfield := rtype.Field(i)
		if !refut.IsSfieldExported(sfield) {
			continue
		}

		tag := sfield.Tag.Get("db")
		if tag == "-" {
			continue
		}

		fieldRval := rval.Field(i)

		if sfield.Anonymous && tag == "" && refut.RtypeDeref(sfield.Type).Kind() == reflect.Struct {
			if fieldRval.Kind() == reflect.Ptr {
				if fieldRval.IsNil() {
					continue
				}
				fieldRval = fieldRval.Elem()
			}
			traverseStructParams(fieldRval, out)
			continue
		}

		for _, key := range paramKeys(sfield, tag) {
			if _, ok := out[key]; !ok {
				out[key] = fieldRval.Interface()
			}
		}
	}
}

func paramKeys(sfield reflect.StructField, tag string) []string {
	ident := refut.TagIdent(tag)
	if ident != "" {
		return []string{ident}
	}
	return distinctStrings([]string{sfield.Name, lowerFirst(sfield.Name), goFieldKey(sfield.Name)})
}
