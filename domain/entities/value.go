package entities

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a scalar passed across the script/native boundary.
// The zero Value is void.
type Value struct {
	ref  any
	str  string
	bits uint64
	kind TypeKind
}

// Void is the empty value returned by void functions.
var Void = Value{}

func BoolValue(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.bits = 1
	}
	return v
}

func IntValue(i int64) Value { return Value{kind: KindInt, bits: uint64(i)} }

func UintValue(u uint64) Value { return Value{kind: KindUint, bits: u} }

func FloatValue(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }

func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// RefValue wraps an opaque object reference owned by the caller.
func RefValue(r any) Value { return Value{kind: KindRef, ref: r} }

// Kind returns the value's kind.
func (v Value) Kind() TypeKind { return v.kind }

// IsVoid reports whether v carries no value.
func (v Value) IsVoid() bool { return v.kind == KindVoid }

// Bool converts v to a boolean. Numbers are true when non-zero.
func (v Value) Bool() bool {
	switch v.kind {
	case KindString:
		return v.str != ""
	case KindRef:
		return v.ref != nil
	case KindFloat:
		return v.Float() != 0
	default:
		return v.bits != 0
	}
}

// Int converts v to a signed integer, truncating floats.
func (v Value) Int() int64 {
	switch v.kind {
	case KindFloat:
		return int64(v.Float())
	case KindString:
		i, _ := strconv.ParseInt(v.str, 10, 64)
		return i
	default:
		return int64(v.bits)
	}
}

// Uint converts v to an unsigned integer, truncating floats.
func (v Value) Uint() uint64 {
	switch v.kind {
	case KindFloat:
		return uint64(v.Float())
	case KindString:
		u, _ := strconv.ParseUint(v.str, 10, 64)
		return u
	default:
		return v.bits
	}
}

// Float converts v to a float64.
func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(v.bits)
	case KindInt:
		return float64(int64(v.bits))
	case KindString:
		f, _ := strconv.ParseFloat(v.str, 64)
		return f
	default:
		return float64(v.bits)
	}
}

// String converts v to its textual form.
func (v Value) String() string {
	switch v.kind {
	case KindVoid:
		return ""
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case KindUint:
		return strconv.FormatUint(v.bits, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindString:
		return v.str
	default:
		return fmt.Sprint(v.ref)
	}
}

// Ref returns the wrapped reference of a KindRef value.
func (v Value) Ref() any { return v.ref }

// Interface returns v as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindVoid:
		return nil
	case KindBool:
		return v.Bool()
	case KindInt:
		return v.Int()
	case KindUint:
		return v.Uint()
	case KindFloat:
		return v.Float()
	case KindString:
		return v.str
	default:
		return v.ref
	}
}

// Coerce converts v to the kind a declared type expects. Strings only
// convert to strings and references only to references.
func (v Value) Coerce(t TypeRef) (Value, error) {
	want := t.Kind()
	if v.kind == want {
		return v, nil
	}
	numeric := func(k TypeKind) bool { return k == KindBool || k == KindInt || k == KindUint || k == KindFloat }
	if !numeric(v.kind) || !numeric(want) {
		if want == KindRef && v.kind != KindVoid {
			return RefValue(v.Interface()), nil
		}
		return Value{}, fmt.Errorf("cannot use %s value as %s", v.kind, t)
	}
	switch want {
	case KindBool:
		return BoolValue(v.Bool()), nil
	case KindInt:
		return IntValue(v.Int()), nil
	case KindUint:
		return UintValue(v.Uint()), nil
	default:
		return FloatValue(v.Float()), nil
	}
}

// ValueOf converts a plain Go value into a Value.
func ValueOf(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Void, nil
	case Value:
		return x, nil
	case bool:
		return BoolValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case int8:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case uint:
		return UintValue(uint64(x)), nil
	case uint8:
		return UintValue(uint64(x)), nil
	case uint16:
		return UintValue(uint64(x)), nil
	case uint32:
		return UintValue(uint64(x)), nil
	case uint64:
		return UintValue(x), nil
	case float32:
		return FloatValue(float64(x)), nil
	case float64:
		return FloatValue(x), nil
	case string:
		return StringValue(x), nil
	default:
		return RefValue(x), nil
	}
}
