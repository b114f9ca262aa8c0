package rol

import (
	"fmt"
	"math"
	"reflect"

	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/value"
)

// Marshaller converts between Go values and Vars allocated on one heap.
type Marshaller struct {
	heap *heap.Heap
}

func NewMarshaller(h *heap.Heap) *Marshaller {
	return &Marshaller{heap: h}
}

// ToValue converts a Go value to a Var. Strings and slices are allocated
// on the marshaller's heap.
func (m *Marshaller) ToValue(val interface{}) (value.Var, error) {
	if val == nil {
		return value.None(), nil
	}
	if v, ok := val.(value.Var); ok {
		return v, nil
	}

	v := reflect.ValueOf(val)
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return value.None(), nil
	}
	return m.toValue(v)
}

func (m *Marshaller) toValue(v reflect.Value) (value.Var, error) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intValue(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt32 {
			return value.None(), fmt.Errorf("integer %d out of range", u)
		}
		return value.Int(int32(u)), nil
	case reflect.Float32, reflect.Float64:
		return value.Float(v.Float()), nil
	case reflect.Bool:
		return value.Bool(v.Bool()), nil
	case reflect.String:
		return m.heap.NewString(v.String()), nil
	case reflect.Slice, reflect.Array:
		return m.sliceToList(v)
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return value.None(), nil
		}
		return m.toValue(v.Elem())
	default:
		return value.None(), fmt.Errorf("cannot convert %s to a value", v.Type())
	}
}

func intValue(i int64) (value.Var, error) {
	if i < math.MinInt32 || i > math.MaxInt32 {
		return value.None(), fmt.Errorf("integer %d out of range", i)
	}
	return value.Int(int32(i)), nil
}

func (m *Marshaller) sliceToList(v reflect.Value) (value.Var, error) {
	elems := make([]value.Var, v.Len())
	for i := range elems {
		e := v.Index(i)
		if e.Kind() == reflect.Interface && e.IsNil() {
			elems[i] = value.None()
			continue
		}
		if x, ok := e.Interface().(value.Var); ok {
			elems[i] = x
			continue
		}
		x, err := m.toValue(e)
		if err != nil {
			return value.None(), fmt.Errorf("element %d: %w", i, err)
		}
		elems[i] = x
	}
	return m.heap.NewList(elems), nil
}

// FromValue converts v to a Go value: nil, bool, int, float64, string or
// []interface{}. Other kinds, and stale heap references, are returned as
// the Var itself.
func (m *Marshaller) FromValue(v value.Var) interface{} {
	switch v.Type() {
	case value.TypeNone:
		return nil
	case value.TypeBool:
		b, _ := v.AsBool()
		return b
	case value.TypeInt:
		i, _ := v.AsInt()
		return int(i)
	case value.TypeFloat:
		d, _ := v.AsDouble()
		return d
	case value.TypeString:
		if s, ok := m.heap.StringOf(v); ok {
			return s
		}
	case value.TypeList:
		if elems, ok := m.heap.ListOf(v); ok {
			out := make([]interface{}, len(elems))
			for i, e := range elems {
				out[i] = m.FromValue(e)
			}
			return out
		}
	}
	return v
}
