package command

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/manav03panchal/cmdstack/internal/errors"
)

// Arguments, results and property values are dynamically typed. They are
// persisted as a type name plus their JSON form, and decoded back into the
// registered Go type.
var (
	typeRegistry   = make(map[string]reflect.Type)
	typeRegistryMu sync.RWMutex
)

func init() {
	RegisterType[string]()
	RegisterType[bool]()
	RegisterType[int]()
	RegisterType[int64]()
	RegisterType[float64]()
	RegisterType[[]any]()
	RegisterType[[]string]()
	RegisterType[map[string]any]()
	RegisterType[ObjectID]()
}

// RegisterType makes T decodable from persisted history and macros.
func RegisterType[T any]() {
	var zero T
	registerType(reflect.TypeOf(&zero).Elem())
}

func registerType(t reflect.Type) string {
	name := t.String()
	typeRegistryMu.Lock()
	typeRegistry[name] = t
	typeRegistryMu.Unlock()
	return name
}

// TypeName returns the registry name for v, registering its type on first use.
func TypeName(v any) string {
	if v == nil {
		return ""
	}
	t := reflect.TypeOf(v)
	typeRegistryMu.RLock()
	_, ok := typeRegistry[t.String()]
	typeRegistryMu.RUnlock()
	if ok {
		return t.String()
	}
	return registerType(t)
}

// Value is the persisted form of a dynamically typed value.
type Value struct {
	Type string          `json:"t,omitempty"`
	Data json.RawMessage `json:"v,omitempty"`
}

// EncodeValue converts v into its persisted form.
func EncodeValue(v any) (Value, error) {
	if v == nil {
		return Value{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, errors.Wrapf(err, "encode %T", v)
	}
	return Value{Type: TypeName(v), Data: data}, nil
}

// Decode converts a persisted value back into its registered Go type.
func (v Value) Decode() (any, error) {
	if v.Type == "" {
		return nil, nil
	}
	typeRegistryMu.RLock()
	t, ok := typeRegistry[v.Type]
	typeRegistryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotSupported, "value type %q is not registered", v.Type)
	}

	if t.Kind() == reflect.Pointer {
		ptr := reflect.New(t.Elem())
		if err := json.Unmarshal(v.Data, ptr.Interface()); err != nil {
			return nil, errors.Wrapf(err, "decode %s", v.Type)
		}
		return ptr.Interface(), nil
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(v.Data, ptr.Interface()); err != nil {
		return nil, errors.Wrapf(err, "decode %s", v.Type)
	}
	return ptr.Elem().Interface(), nil
}
