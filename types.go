package gosm

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/mitranim/refut"
)

/*
Describes how to construct a record and how to assign each of its fields. The
`resultType` attribute of a mapped statement names a `ResultType` registered in
`Types`.

There are two ways to build one:

	* `NewType()`, with an explicit typed setter per field. No reflection is
	  involved at any point.

	* `StructType()`, which walks the struct once and derives the setters.

Either way, the set of fields is fixed at construction and reused for every row.
*/
type ResultType struct {
	name   string
	alloc  func() interface{}
	fields map[string]fieldSetter
	err    error
}

type fieldSetter struct {
	kind Kind
	elem Kind
	set  func(rec interface{}, val Value) bool
}

// Registered name of the type.
func (self *ResultType) Name() string { return self.name }

// Returns the field keys known to this type, sorted.
func (self *ResultType) Fields() []string {
	keys := make([]string, 0, len(self.fields))
	for key := range self.fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

/*
Allocates a new zero record. The returned value is always a pointer, such as
`*User`. Returns `ErrInstantiation` if the type can't be constructed.
*/
func (self *ResultType) New() (interface{}, error) {
	if self == nil || self.alloc == nil {
		return nil, ErrInstantiation.while(`allocating record`).becausef(`result type has no constructor`)
	}
	if self.err != nil {
		return nil, ErrInstantiation.while(`allocating record of type ` + self.name).because(self.err)
	}
	return self.alloc(), nil
}

func (self *ResultType) field(key string) (fieldSetter, bool) {
	setter, ok := self.fields[key]
	return setter, ok
}

/*
Typed setter for one field of `T`. Build with `IntField`, `FloatField`,
`BoolField`, `TextField`, `TimeField`, `IntsField` or `TextsField`. The name is
the field key that columns are mapped to, for example `userName` for the
column `user_name`; see `ColumnFieldName()`.
*/
type Field[T any] struct {
	name string
	kind Kind
	elem Kind
	set  func(*T, Value)
}

// Integer field. Accepts integer columns, integral floats and numeric text.
func IntField[T any](name string, set func(*T, int64)) Field[T] {
	return Field[T]{name: name, kind: KindInt, set: func(rec *T, val Value) { set(rec, val.Int) }}
}

// Float field. Accepts float and integer columns, and numeric text.
func FloatField[T any](name string, set func(*T, float64)) Field[T] {
	return Field[T]{name: name, kind: KindFloat, set: func(rec *T, val Value) { set(rec, val.Float) }}
}

// Boolean field.
func BoolField[T any](name string, set func(*T, bool)) Field[T] {
	return Field[T]{name: name, kind: KindBool, set: func(rec *T, val Value) { set(rec, val.Bool) }}
}

// Text field. Accepts string and `[]byte` columns.
func TextField[T any](name string, set func(*T, string)) Field[T] {
	return Field[T]{name: name, kind: KindText, set: func(rec *T, val Value) { set(rec, val.Text) }}
}

// Timestamp field.
func TimeField[T any](name string, set func(*T, time.Time)) Field[T] {
	return Field[T]{name: name, kind: KindTime, set: func(rec *T, val Value) { set(rec, val.Time) }}
}

// Sequence field. A single integer column is assigned as a one-element slice.
func IntsField[T any](name string, set func(*T, []int64)) Field[T] {
	return Field[T]{name: name, kind: KindSeq, elem: KindInt, set: func(rec *T, val Value) {
		out := make([]int64, len(val.Seq))
		for i, item := range val.Seq {
			out[i] = item.Int
		}
		set(rec, out)
	}}
}

// Sequence field. A single text column is assigned as a one-element slice.
func TextsField[T any](name string, set func(*T, []string)) Field[T] {
	return Field[T]{name: name, kind: KindSeq, elem: KindText, set: func(rec *T, val Value) {
		out := make([]string, len(val.Seq))
		for i, item := range val.Seq {
			out[i] = item.Text
		}
		set(rec, out)
	}}
}

/*
Declares a result type with explicit setters. Example:

	gosm.NewType("User",
		gosm.IntField("id", func(rec *User, val int64) { rec.Id = val }),
		gosm.TextField("userName", func(rec *User, val string) { rec.UserName = val }),
	)

Later fields with the same name replace earlier ones.
*/
func NewType[T any](name string, fields ...Field[T]) *ResultType {
	out := &ResultType{
		name:   name,
		alloc:  func() interface{} { return new(T) },
		fields: make(map[string]fieldSetter, len(fields)),
	}
	for _, field := range fields {
		set := field.set
		out.fields[field.name] = fieldSetter{
			kind: field.kind,
			elem: field.elem,
			set: func(rec interface{}, val Value) bool {
				set(rec.(*T), val)
				return true
			},
		}
	}
	return out
}

/*
Derives a result type from the exported fields of struct `T`. The walk happens
once, here; materializing rows only calls the prepared setters. Rules:

	* A field `UserName` is known under the keys `userName` and `UserName`, so
	  both `user_name` and `UserName` columns reach it. Initialisms are lowered
	  as whole words: `UserID` is also known as `userId`, reached by `user_id`.

	* A `db:"..."` tag replaces the Go name: `db:"login"` gives the key `login`.
	  `db:"-"` hides the field.

	* Fields of embedded structs are treated as part of the enclosing struct.

	* A nested non-embedded struct (or struct pointer) contributes its fields
	  under `outer.inner` keys, matching columns aliased `outer.inner`. A nil
	  pointer stays nil unless a non-null column reaches one of its fields.

	* Supported field types: integers, floats, bool, string, `[]byte`,
	  `time.Time`, slices of those, and pointers to any of them. Fields of other
	  types are ignored.

If `T` isn't a struct, every attempt to allocate a record fails with
`ErrInstantiation`.
*/
func StructType[T any](name string) *ResultType {
	rtype := reflect.TypeOf((*T)(nil)).Elem()
	out := &ResultType{name: name, fields: map[string]fieldSetter{}}
	out.alloc = func() interface{} { return reflect.New(rtype).Interface() }

	if rtype.Kind() != reflect.Struct {
		out.err = fmt.Errorf(`expected a struct type, got %q`, rtype)
		return out
	}

	collectStructFields(out.fields, rtype, "", nil, []reflect.Type{rtype})
	return out
}

/*
`parents` holds the struct types being walked, and stops self-referencing types
from recursing forever.
*/
func collectStructFields(
	fields map[string]fieldSetter, rtype reflect.Type, prefix string, basePath []int, parents []reflect.Type,
) {
	for i := 0; i < rtype.NumField(); i++ {
		sfield := rtype.Field(i)
		fieldRtype := refut.RtypeDeref(sfield.Type)
		fieldPath := append(copyIntSlice(basePath), i)

		if !refut.IsSfieldExported(sfield) {
			continue
		}

		tag := sfield.Tag.Get("db")
		if tag == "-" {
			continue
		}

		if sfield.Anonymous && fieldRtype.Kind() == reflect.Struct && tag == "" {
			if !containsRtype(parents, fieldRtype) {
				collectStructFields(fields, fieldRtype, prefix, fieldPath, append(parents, fieldRtype))
			}
			continue
		}

		keys := sfieldKeys(sfield, tag)

		if isRtypeNestedStruct(fieldRtype) {
			if containsRtype(parents, fieldRtype) {
				continue
			}
			for _, key := range keys {
				collectStructFields(fields, fieldRtype, prefix+key+".", fieldPath, append(parents, fieldRtype))
			}
			continue
		}

		kind, elem, ok := rtypeKind(sfield.Type)
		if !ok {
			continue
		}

		setter := fieldSetter{kind: kind, elem: elem, set: pathSetter(fieldPath, sfield.Type)}
		for _, key := range keys {
			key = prefix + key
			if _, ok := fields[key]; !ok {
				fields[key] = setter
			}
		}
	}
}

func sfieldKeys(sfield reflect.StructField, tag string) []string {
	ident := refut.TagIdent(tag)
	if ident != "" {
		return []string{ColumnFieldName(ident)}
	}
	return distinctStrings([]string{lowerFirst(sfield.Name), sfield.Name, goFieldKey(sfield.Name)})
}

/*
The value is converted into a detached field value first, so a mismatch never
allocates the nil pointers along the path.
*/
func pathSetter(path []int, rtype reflect.Type) func(interface{}, Value) bool {
	return func(rec interface{}, val Value) bool {
		tmp := reflect.New(rtype).Elem()
		if !assignRval(tmp, val) {
			return false
		}
		refut.RvalFieldByPathAlloc(reflect.ValueOf(rec), path).Set(tmp)
		return true
	}
}

func isRtypeNestedStruct(rtype reflect.Type) bool {
	return rtype.Kind() == reflect.Struct && rtype != timeRtype
}

/*
Returns the kind a field of this type accepts, and the element kind for slices.
*/
func rtypeKind(rtype reflect.Type) (Kind, Kind, bool) {
	rtype = refut.RtypeDeref(rtype)

	switch rtype.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt, KindUnknown, true
	case reflect.Float32, reflect.Float64:
		return KindFloat, KindUnknown, true
	case reflect.Bool:
		return KindBool, KindUnknown, true
	case reflect.String:
		return KindText, KindUnknown, true
	case reflect.Struct:
		if rtype == timeRtype {
			return KindTime, KindUnknown, true
		}
	case reflect.Slice:
		if rtype.Elem().Kind() == reflect.Uint8 {
			return KindText, KindUnknown, true
		}
		elem, _, ok := rtypeKind(rtype.Elem())
		if ok && elem != KindSeq {
			return KindSeq, elem, true
		}
	}
	return KindUnknown, KindUnknown, false
}

/*
Assigns a reconciled value. Returns false without modifying the target if the
value doesn't fit, for example on integer overflow.
*/
func assignRval(rval reflect.Value, val Value) bool {
	switch rval.Kind() {
	case reflect.Ptr:
		tmp := reflect.New(rval.Type().Elem())
		if !assignRval(tmp.Elem(), val) {
			return false
		}
		rval.Set(tmp)
		return true

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if val.Kind != KindInt || rval.OverflowInt(val.Int) {
			return false
		}
		rval.SetInt(val.Int)
		return true

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if val.Kind != KindInt || val.Int < 0 || rval.OverflowUint(uint64(val.Int)) {
			return false
		}
		rval.SetUint(uint64(val.Int))
		return true

	case reflect.Float32, reflect.Float64:
		if val.Kind != KindFloat {
			return false
		}
		rval.SetFloat(val.Float)
		return true

	case reflect.Bool:
		if val.Kind != KindBool {
			return false
		}
		rval.SetBool(val.Bool)
		return true

	case reflect.String:
		if val.Kind != KindText {
			return false
		}
		rval.SetString(val.Text)
		return true

	case reflect.Struct:
		if rval.Type() != timeRtype || val.Kind != KindTime {
			return false
		}
		rval.Set(reflect.ValueOf(val.Time))
		return true

	case reflect.Slice:
		if rval.Type().Elem().Kind() == reflect.Uint8 {
			if val.Kind != KindText {
				return false
			}
			rval.SetBytes([]byte(val.Text))
			return true
		}

		if val.Kind != KindSeq {
			return false
		}
		out := reflect.MakeSlice(rval.Type(), len(val.Seq), len(val.Seq))
		for i, item := range val.Seq {
			if !assignRval(out.Index(i), item) {
				return false
			}
		}
		rval.Set(out)
		return true
	}

	return false
}

/*
Set of result types available to statements, looked up by the `resultType`
attribute. Build once with `NewTypes()` and pass to the factory via
`WithTypes()`. Read-only after construction.
*/
type Types struct {
	byName map[string]*ResultType
}

func NewTypes(types ...*ResultType) *Types {
	out := &Types{byName: make(map[string]*ResultType, len(types))}
	for _, rtype := range types {
		if rtype != nil {
			out.byName[rtype.name] = rtype
		}
	}
	return out
}

/*
Finds a result type by name. A qualified name such as `com.example.User` is
tried as-is first, then by its last segment `User`. Returns `ErrInstantiation`
if neither is registered.
*/
func (self *Types) Lookup(name string) (*ResultType, error) {
	if self != nil {
		if rtype, ok := self.byName[name]; ok {
			return rtype, nil
		}
		if index := strings.LastIndexByte(name, '.'); index >= 0 {
			if rtype, ok := self.byName[name[index+1:]]; ok {
				return rtype, nil
			}
		}
	}
	return nil, ErrInstantiation.while(`looking up result type`).becausef(`no result type registered as %q`, name)
}
