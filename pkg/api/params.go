package api

import (
	"database/sql"
	"fmt"
	"iter"
	"reflect"

	"github.com/kasuganosora/sqlsession/pkg/engine"
	"github.com/kasuganosora/sqlsession/pkg/registry"
)

// Named is a parameter set for :name, @name and $name placeholders, keyed
// by the name without its prefix.
type Named map[string]any

// params is one parameter set.
type params struct {
	positional []any
	named      map[string]any
	isNamed    bool
}

// normalizeArgs turns Execute's variadic arguments into a parameter set: a
// single Named or map[string]any, any number of sql.NamedArg, or plain
// positional values.
func normalizeArgs(args []any) (params, error) {
	if len(args) == 1 {
		switch m := args[0].(type) {
		case Named:
			return params{named: m, isNamed: true}, nil
		case map[string]any:
			return params{named: m, isNamed: true}, nil
		}
	}

	var named map[string]any
	for i, a := range args {
		na, ok := a.(sql.NamedArg)
		if !ok {
			if named != nil {
				return params{}, NewError(ErrCodeProgramming, "cannot mix named and positional parameters", nil)
			}
			continue
		}
		if named == nil {
			if i > 0 {
				return params{}, NewError(ErrCodeProgramming, "cannot mix named and positional parameters", nil)
			}
			named = make(map[string]any, len(args))
		}
		named[na.Name] = na.Value
	}
	if named != nil {
		return params{named: named, isNamed: true}, nil
	}
	return params{positional: args}, nil
}

// toParams converts one element of an ExecuteMany sequence.
func toParams(v any) (params, error) {
	switch x := v.(type) {
	case []any:
		return params{positional: x}, nil
	case Named:
		return params{named: x, isNamed: true}, nil
	case map[string]any:
		return params{named: x, isNamed: true}, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return params{}, NewError(ErrCodeProgramming, "parameters are of unsupported type", nil)
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return params{positional: out}, nil
	}
	return params{}, NewError(ErrCodeProgramming, "parameters are of unsupported type", nil)
}

// paramSets adapts the sequence kinds ExecuteMany accepts into one lazy
// iterator. Elements are converted as they are consumed.
func paramSets(seq any) (iter.Seq2[params, error], error) {
	switch s := seq.(type) {
	case iter.Seq[[]any]:
		return seqOf(s), nil
	case func(func([]any) bool):
		return seqOf(s), nil
	case iter.Seq[Named]:
		return seqOf(s), nil
	case func(func(Named) bool):
		return seqOf(s), nil
	case iter.Seq[map[string]any]:
		return seqOf(s), nil
	case func(func(map[string]any) bool):
		return seqOf(s), nil
	case iter.Seq2[[]any, error]:
		return seq2Of(s), nil
	case func(func([]any, error) bool):
		return seq2Of(s), nil
	case <-chan []any:
		return seqOf(func(yield func([]any) bool) {
			for v := range s {
				if !yield(v) {
					return
				}
			}
		}), nil
	}

	rv := reflect.ValueOf(seq)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		return func(yield func(params, error) bool) {
			for i := 0; i < rv.Len(); i++ {
				p, err := toParams(rv.Index(i).Interface())
				if !yield(p, err) || err != nil {
					return
				}
			}
		}, nil
	case reflect.Chan:
		if rv.Type().ChanDir()&reflect.RecvDir == 0 {
			break
		}
		return func(yield func(params, error) bool) {
			for {
				v, ok := rv.Recv()
				if !ok {
					return
				}
				p, err := toParams(v.Interface())
				if !yield(p, err) || err != nil {
					return
				}
			}
		}, nil
	}
	return nil, NewError(ErrCodeType, "executemany() requires an iterable of parameter sets", nil)
}

func seqOf[T any](s func(func(T) bool)) iter.Seq2[params, error] {
	return func(yield func(params, error) bool) {
		for v := range s {
			p, err := toParams(v)
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

func seq2Of(s func(func([]any, error) bool)) iter.Seq2[params, error] {
	return func(yield func(params, error) bool) {
		for v, err := range s {
			if err != nil {
				yield(params{}, err)
				return
			}
			if !yield(params{positional: v}, nil) {
				return
			}
		}
	}
}

// bindParams binds p to the placeholders of stmt. Every check runs before
// the engine sees a value.
func bindParams(stmt engine.Stmt, reg *registry.Registry, p params) error {
	n := stmt.BindCount()

	hasNamed, hasUnnamed := false, false
	for i := 1; i <= n; i++ {
		if isUnnamed(stmt.BindName(i)) {
			hasUnnamed = true
		} else {
			hasNamed = true
		}
	}
	if hasNamed && hasUnnamed {
		return NewError(ErrCodeProgramming, "You cannot mix named and unnamed placeholders in one statement.", nil)
	}

	if !p.isNamed {
		if len(p.positional) != n {
			return NewError(ErrCodeProgramming, fmt.Sprintf(
				"Incorrect number of bindings supplied. The current statement uses %d, and there are %d supplied.",
				n, len(p.positional)), nil)
		}
		for i, v := range p.positional {
			if err := bindValue(stmt, reg, i+1, v); err != nil {
				return err
			}
		}
		return nil
	}

	for i := 1; i <= n; i++ {
		name := stmt.BindName(i)
		if isUnnamed(name) {
			return NewError(ErrCodeProgramming, fmt.Sprintf(
				"Binding %d has no name, but you supplied a dictionary (which has only names).", i), nil)
		}
		v, ok := p.named[name[1:]]
		if !ok {
			return NewError(ErrCodeProgramming, fmt.Sprintf("You did not supply a value for binding %d.", i), nil)
		}
		if err := bindValue(stmt, reg, i, v); err != nil {
			return err
		}
	}
	return nil
}

func isUnnamed(name string) bool {
	return name == "" || name[0] == '?'
}

func bindValue(stmt engine.Stmt, reg *registry.Registry, i int, v any) error {
	wire, err := reg.Adapt(v)
	if err != nil {
		return WrapError(err, ErrCodeInterface,
			fmt.Sprintf("Error binding parameter %d - probably unsupported type.", i))
	}
	return engineError(stmt.Bind(i, wire))
}
