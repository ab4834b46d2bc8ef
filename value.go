package gosm

import (
	"math"
	"strconv"
	"strings"
	"time"
)

/*
Kind of a `Value`. Also used to declare what a result field accepts.
*/
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindText
	KindTime
	KindSeq
	KindUnknown
)

func (self Kind) String() string {
	switch self {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	case KindTime:
		return "time"
	case KindSeq:
		return "seq"
	default:
		return "unknown"
	}
}

/*
Tagged union of the column values Gosm knows how to assign. Only the member
matching `Kind` is meaningful. `Raw` keeps the original driver value for
`KindUnknown`.
*/
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Bool  bool
	Text  string
	Time  time.Time
	Seq   []Value
	Raw   interface{}
}

// Classifies a value produced by a `database/sql` driver.
func ValueOf(raw interface{}) Value {
	switch raw := raw.(type) {
	case nil:
		return Value{Kind: KindNull}
	case int64:
		return Value{Kind: KindInt, Int: raw}
	case int:
		return Value{Kind: KindInt, Int: int64(raw)}
	case int32:
		return Value{Kind: KindInt, Int: int64(raw)}
	case int16:
		return Value{Kind: KindInt, Int: int64(raw)}
	case int8:
		return Value{Kind: KindInt, Int: int64(raw)}
	case uint64:
		if raw > math.MaxInt64 {
			return Value{Kind: KindUnknown, Raw: raw}
		}
		return Value{Kind: KindInt, Int: int64(raw)}
	case uint:
		if uint64(raw) > math.MaxInt64 {
			return Value{Kind: KindUnknown, Raw: raw}
		}
		return Value{Kind: KindInt, Int: int64(raw)}
	case uint32:
		return Value{Kind: KindInt, Int: int64(raw)}
	case uint16:
		return Value{Kind: KindInt, Int: int64(raw)}
	case uint8:
		return Value{Kind: KindInt, Int: int64(raw)}
	case float64:
		return Value{Kind: KindFloat, Float: raw}
	case float32:
		return Value{Kind: KindFloat, Float: float64(raw)}
	case bool:
		return Value{Kind: KindBool, Bool: raw}
	case string:
		return Value{Kind: KindText, Text: raw}
	case []byte:
		return Value{Kind: KindText, Text: string(raw)}
	case time.Time:
		return Value{Kind: KindTime, Time: raw}
	case []interface{}:
		seq := make([]Value, len(raw))
		for i := range raw {
			seq[i] = ValueOf(raw[i])
		}
		return Value{Kind: KindSeq, Seq: seq}
	default:
		return Value{Kind: KindUnknown, Raw: raw}
	}
}

/*
Converts the value into what a field of kind `want` (with element kind `elem`
for `KindSeq`) accepts. Returns false when the value can't be reconciled, in
which case the field must be left alone. Rules:

	* Null never reconciles.
	* Numeric fields accept numbers and numeric text.
	* Sequence fields accept a sequence, or a single scalar wrapped into a
	  one-element sequence.
	* Everything else requires the exact kind.
*/
func (self Value) reconcile(want, elem Kind) (Value, bool) {
	switch want {
	case KindInt:
		switch self.Kind {
		case KindInt:
			return self, true
		case KindFloat:
			if self.Float == math.Trunc(self.Float) && self.Float >= math.MinInt64 && self.Float < math.MaxInt64 {
				return Value{Kind: KindInt, Int: int64(self.Float)}, true
			}
			return Value{}, false
		case KindText:
			num, err := strconv.ParseInt(strings.TrimSpace(self.Text), 10, 64)
			if err != nil {
				return Value{}, false
			}
			return Value{Kind: KindInt, Int: num}, true
		case KindNull, KindBool, KindTime, KindSeq, KindUnknown:
			return Value{}, false
		}

	case KindFloat:
		switch self.Kind {
		case KindFloat:
			return self, true
		case KindInt:
			return Value{Kind: KindFloat, Float: float64(self.Int)}, true
		case KindText:
			num, err := strconv.ParseFloat(strings.TrimSpace(self.Text), 64)
			if err != nil {
				return Value{}, false
			}
			return Value{Kind: KindFloat, Float: num}, true
		case KindNull, KindBool, KindTime, KindSeq, KindUnknown:
			return Value{}, false
		}

	case KindBool, KindText, KindTime:
		if self.Kind == want {
			return self, true
		}
		return Value{}, false

	case KindSeq:
		switch self.Kind {
		case KindNull, KindUnknown:
			return Value{}, false
		case KindSeq:
			seq := make([]Value, 0, len(self.Seq))
			for _, item := range self.Seq {
				val, ok := item.reconcile(elem, KindUnknown)
				if !ok {
					return Value{}, false
				}
				seq = append(seq, val)
			}
			return Value{Kind: KindSeq, Seq: seq}, true
		case KindInt, KindFloat, KindBool, KindText, KindTime:
			val, ok := self.reconcile(elem, KindUnknown)
			if !ok {
				return Value{}, false
			}
			return Value{Kind: KindSeq, Seq: []Value{val}}, true
		}
	}

	return Value{}, false
}
