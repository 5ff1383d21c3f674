package state

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates the variants a Value can hold.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindInt
	KindFloat
	KindString
	KindList
)

func (k ValueKind) String() string {
	return []string{"bool", "int", "float", "string", "list"}[k]
}

// Value is a loosely-typed field parameter value. Field declarations carry a
// bag of backend-specific attributes (default, unique, max_length, ...) whose
// types vary per attribute, so parameters are stored as a small tagged union
// rather than per-backend structs.
type Value struct {
	Kind  ValueKind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	List  []Value
}

// BoolValue returns a boolean Value.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// IntValue returns an integer Value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// FloatValue returns a float Value.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// StringValue returns a string Value.
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

// ListValue returns a list Value.
func ListValue(vs ...Value) Value { return Value{Kind: KindList, List: vs} }

// Equal reports whether two values hold the same kind and contents.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindString:
		return v.Str == o.Str
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("<unknown value kind %d>", v.Kind)
}

// Interface converts the value to its natural Go representation, suitable for
// serialization.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindList:
		out := make([]interface{}, len(v.List))
		for i, item := range v.List {
			out[i] = item.Interface()
		}
		return out
	}
	return nil
}

// ValueFromInterface converts a deserialized scalar or list back into a Value.
func ValueFromInterface(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case bool:
		return BoolValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case float64:
		return FloatValue(t), nil
	case string:
		return StringValue(t), nil
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := ValueFromInterface(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return ListValue(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported parameter value type %T", raw)
	}
}

// Params is an insertion-ordered map of parameter names to values. Ordering
// matters because emitted migrations must be byte-identical across runs.
type Params struct {
	keys   []string
	values map[string]Value
}

// NewParams creates an empty parameter map.
func NewParams() *Params {
	return &Params{values: make(map[string]Value)}
}

// Set stores a value, preserving the position of an existing key.
func (p *Params) Set(key string, v Value) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = v
}

// Get returns the value for key, if present.
func (p *Params) Get(key string) (Value, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present.
func (p *Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// BoolFlag returns true when key is present and holds boolean true.
func (p *Params) BoolFlag(key string) bool {
	v, ok := p.values[key]
	return ok && v.Kind == KindBool && v.Bool
}

// Keys returns parameter names in insertion order.
func (p *Params) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of parameters.
func (p *Params) Len() int { return len(p.keys) }

// Clone deep-copies the parameter map.
func (p *Params) Clone() *Params {
	out := NewParams()
	for _, k := range p.keys {
		out.Set(k, p.values[k])
	}
	return out
}

// EqualOn compares two parameter maps restricted to the given keys. The
// differ compares only the subset of parameters it cares about so unrelated
// metadata churn does not produce false field modifications.
func (p *Params) EqualOn(o *Params, keys []string) bool {
	for _, k := range keys {
		pv, pok := p.Get(k)
		ov, ook := o.Get(k)
		if pok != ook {
			return false
		}
		if pok && !pv.Equal(ov) {
			return false
		}
	}
	return true
}

// Equal compares every parameter in both maps.
func (p *Params) Equal(o *Params) bool {
	if p.Len() != o.Len() {
		return false
	}
	for _, k := range p.keys {
		ov, ok := o.Get(k)
		if !ok || !ov.Equal(p.values[k]) {
			return false
		}
	}
	return true
}
