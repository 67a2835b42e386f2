// Package registry holds the user-extensible type system of a session:
// adapters that turn application values into primitive bind values,
// converters that turn raw column values back into application values, and
// named collations.
//
// A Registry is safe for concurrent use and may be shared by several
// sessions. Nothing here is global: every registry is an explicit value.
package registry

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
)

// Protocol tags the bind form an adapter produces.
type Protocol string

// PrepareProtocol is the protocol used when binding statement parameters.
const PrepareProtocol Protocol = "PrepareProtocol"

// Conformer is implemented by values that can describe their own primitive
// form for a protocol. It is consulted before any registered adapter.
type Conformer interface {
	Conform(p Protocol) (any, bool)
}

// Adapter converts an application value to a primitive bind value.
type Adapter func(v any) (any, error)

// Converter converts the raw bytes of a column value to an application
// value. It is never called for NULL.
type Converter func(raw []byte) (any, error)

// Collation orders two strings, returning a negative, zero or positive int.
type Collation func(a, b string) int

var (
	// ErrUnsupportedType is returned by Adapt when no rule applies.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrInvalidCollationName is returned for names outside [0-9A-Z_].
	ErrInvalidCollationName = errors.New("invalid character in collation name")
	// ErrIntegerOverflow is returned for unsigned values beyond int64.
	ErrIntegerOverflow = errors.New("integer overflow")
)

type adapterKey struct {
	typ      reflect.Type
	protocol Protocol
}

// CollationEntry is a registered collation and the registry generation at
// which it was last set.
type CollationEntry struct {
	Fn      Collation
	Version uint64
}

// Registry is a set of adapters, converters and collations.
type Registry struct {
	mu         sync.RWMutex
	protocol   Protocol
	adapters   map[adapterKey]Adapter
	converters map[string]Converter
	collations map[string]CollationEntry
	generation uint64
}

// NewEmpty returns a registry with no registrations.
func NewEmpty() *Registry {
	return &Registry{
		protocol:   PrepareProtocol,
		adapters:   make(map[adapterKey]Adapter),
		converters: make(map[string]Converter),
		collations: make(map[string]CollationEntry),
	}
}

// New returns a registry with the built-in date and timestamp adapters and
// converters.
func New() *Registry {
	r := NewEmpty()
	registerBuiltins(r)
	return r
}

// Protocol returns the protocol tag used by Adapt.
func (r *Registry) Protocol() Protocol {
	return r.protocol
}

// RegisterAdapter sets the adapter for values whose dynamic type is exactly
// typ. A nil fn removes it.
func (r *Registry) RegisterAdapter(typ reflect.Type, fn Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := adapterKey{typ: typ, protocol: r.protocol}
	if fn == nil {
		delete(r.adapters, key)
		return
	}
	r.adapters[key] = fn
}

// RegisterConverter sets the converter for name, which is matched
// case-insensitively. A nil fn removes it.
func (r *Registry) RegisterConverter(name string, fn Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToUpper(name)
	if fn == nil {
		delete(r.converters, key)
		return
	}
	r.converters[key] = fn
}

// Converter looks up the converter for name.
func (r *Registry) Converter(name string) (Converter, bool) {
	if name == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.converters[strings.ToUpper(name)]
	return fn, ok
}

// CreateCollation sets the collation for name. Names are uppercased and
// must then consist of ASCII digits, letters and underscores. A nil fn
// removes the collation. It returns the new registry generation.
func (r *Registry) CreateCollation(name string, fn Collation) (uint64, error) {
	key, err := CollationKey(name)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.generation++
	if fn == nil {
		delete(r.collations, key)
	} else {
		r.collations[key] = CollationEntry{Fn: fn, Version: r.generation}
	}
	return r.generation, nil
}

// Collations returns a snapshot of the registered collations and the
// generation it reflects.
func (r *Registry) Collations() (map[string]CollationEntry, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]CollationEntry, len(r.collations))
	for k, v := range r.collations {
		out[k] = v
	}
	return out, r.generation
}

// Generation changes whenever a collation is added, replaced or removed.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// CollationKey normalizes and validates a collation name.
func CollationKey(name string) (string, error) {
	key := strings.ToUpper(name)
	if key == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidCollationName, name)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c == '_') {
			return "", fmt.Errorf("%w: %q", ErrInvalidCollationName, name)
		}
	}
	return key, nil
}

// Adapt returns the primitive bind form of v: nil, int64, float64, string
// or []byte. Self-describing values win over registered adapters, which win
// over primitive pass-through.
func (r *Registry) Adapt(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	if c, ok := v.(Conformer); ok {
		if out, ok := c.Conform(r.protocol); ok {
			return primitive(out)
		}
	}
	if valuer, ok := v.(driver.Valuer); ok {
		out, err := valuer.Value()
		if err != nil {
			return nil, err
		}
		return r.Adapt(out)
	}

	r.mu.RLock()
	fn, ok := r.adapters[adapterKey{typ: reflect.TypeOf(v), protocol: r.protocol}]
	r.mu.RUnlock()
	if ok {
		out, err := fn(v)
		if err != nil {
			return nil, err
		}
		return primitive(out)
	}

	return primitive(v)
}

// primitive normalizes v to one of the wire types or fails.
func primitive(v any) (any, error) {
	switch x := v.(type) {
	case nil, int64, float64, string, []byte:
		return x, nil
	case int:
		return int64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d", ErrIntegerOverflow, u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Bool:
		if rv.Bool() {
			return int64(1), nil
		}
		return int64(0), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}
