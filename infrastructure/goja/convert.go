package goja

import (
	"github.com/dop251/goja"

	"github.com/reglet-dev/scripthost/domain/entities"
)

// toJS converts a host value into a value of rt.
func toJS(rt *goja.Runtime, v entities.Value) goja.Value {
	switch v.Kind() {
	case entities.KindVoid:
		return goja.Undefined()
	case entities.KindBool:
		return rt.ToValue(v.Bool())
	case entities.KindInt:
		return rt.ToValue(v.Int())
	case entities.KindUint:
		return rt.ToValue(v.Uint())
	case entities.KindFloat:
		return rt.ToValue(v.Float())
	case entities.KindString:
		return rt.ToValue(v.String())
	default:
		if jv, ok := v.Ref().(goja.Value); ok {
			if obj, isObj := jv.(*goja.Object); isObj && !ownedBy(rt, obj) {
				return rt.ToValue(obj.Export())
			}
			return jv
		}
		return rt.ToValue(v.Ref())
	}
}

// ownedBy reports whether obj belongs to rt. Objects cannot cross runtimes.
func ownedBy(rt *goja.Runtime, obj *goja.Object) (owned bool) {
	defer func() {
		if recover() != nil {
			owned = false
		}
	}()
	rt.ToValue(obj)
	return true
}

// fromJS converts a script value into the kind t declares.
func fromJS(v goja.Value, t entities.TypeRef) entities.Value {
	if v == nil || goja.IsUndefined(v) {
		if t.Kind() == entities.KindRef {
			return entities.RefValue(nil)
		}
		v = goja.Null()
	}
	switch t.Kind() {
	case entities.KindVoid:
		return entities.Void
	case entities.KindBool:
		return entities.BoolValue(v.ToBoolean())
	case entities.KindInt:
		return entities.IntValue(v.ToInteger())
	case entities.KindUint:
		return entities.UintValue(uint64(v.ToInteger())) //nolint:gosec // G115: two's complement wrap matches native semantics
	case entities.KindFloat:
		return entities.FloatValue(v.ToFloat())
	case entities.KindString:
		if goja.IsNull(v) {
			return entities.StringValue("")
		}
		return entities.StringValue(v.String())
	default:
		return entities.RefValue(v.Export())
	}
}

// exportValue converts a script value without a declared type.
func exportValue(v goja.Value) entities.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return entities.Void
	}
	switch x := v.Export().(type) {
	case int64:
		return entities.IntValue(x)
	case float64:
		return entities.FloatValue(x)
	case bool:
		return entities.BoolValue(x)
	case string:
		return entities.StringValue(x)
	default:
		return entities.RefValue(x)
	}
}
