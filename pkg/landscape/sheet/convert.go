// Package sheet declares how engine CSV sheets map onto stored records, in
// both directions.
package sheet

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/model"
)

// Lookup resolves definition names to ids within a project, and back.
type Lookup interface {
	Resolve(ctx context.Context, kind model.Kind, name string, projectID int64) (*int64, error)
	Name(ctx context.Context, kind model.Kind, id int64) (string, error)
}

// Converter is one of Value or Reference.
type Converter interface {
	converter()
}

// Value is a pure transform between a CSV cell and a field value.
type Value struct {
	Name    string
	Forward func(string) (any, error)
	Reverse func(any) (string, error)
}

// Reference resolves a cell naming a definition of Kind into its id.
type Reference struct {
	Kind model.Kind
}

func (Value) converter()     {}
func (Reference) converter() {}

// Ref is shorthand for Reference{Kind: k}.
func Ref(k model.Kind) Reference {
	return Reference{Kind: k}
}

// Sentinels stored for blank numeric cells.
const (
	AbsentInt   int64   = -1
	AbsentFloat float64 = -1.0
)

// BoolTrue is the only cell value decoded as true.
const BoolTrue = "Yes"

var (
	// Identity passes strings through.
	Identity = Value{
		Name:    "identity",
		Forward: func(s string) (any, error) { return s, nil },
		Reverse: func(v any) (string, error) {
			switch x := v.(type) {
			case nil:
				return "", nil
			case string:
				return x, nil
			default:
				return fmt.Sprint(x), nil
			}
		},
	}

	// DefaultInt maps a blank cell to AbsentInt.
	DefaultInt = Value{
		Name: "default_int",
		Forward: func(s string) (any, error) {
			if s == "" {
				return AbsentInt, nil
			}
			return parseInt(s)
		},
		Reverse: func(v any) (string, error) {
			if v == nil {
				return "", nil
			}
			n, ok := model.AsInt(v)
			if !ok {
				return "", fmt.Errorf("default_int: %v (%T) is not an integer", v, v)
			}
			if n == AbsentInt {
				return "", nil
			}
			return strconv.FormatInt(n, 10), nil
		},
	}

	// DefaultFloat maps a blank cell to AbsentFloat.
	DefaultFloat = Value{
		Name: "default_float",
		Forward: func(s string) (any, error) {
			if s == "" {
				return AbsentFloat, nil
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("default_float: %w", err)
			}
			return f, nil
		},
		Reverse: func(v any) (string, error) {
			if v == nil {
				return "", nil
			}
			f, ok := model.AsFloat(v)
			if !ok {
				return "", fmt.Errorf("default_float: %v (%T) is not a number", v, v)
			}
			if f == AbsentFloat {
				return "", nil
			}
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		},
	}

	// TimeInt maps a blank cell to nil. Used for iteration and timestep
	// correlators, where 0 is a valid value.
	TimeInt = Value{
		Name: "time_int",
		Forward: func(s string) (any, error) {
			if s == "" {
				return nil, nil
			}
			return parseInt(s)
		},
		Reverse: func(v any) (string, error) {
			if v == nil {
				return "", nil
			}
			n, ok := model.AsInt(v)
			if !ok {
				return "", fmt.Errorf("time_int: %v (%T) is not an integer", v, v)
			}
			return strconv.FormatInt(n, 10), nil
		},
	}

	// EmptyOrYesToBool decodes "Yes" as true and anything else as false.
	EmptyOrYesToBool = Value{
		Name:    "empty_or_yes_to_bool",
		Forward: func(s string) (any, error) { return s == BoolTrue, nil },
		Reverse: func(v any) (string, error) {
			switch x := v.(type) {
			case nil:
				return "", nil
			case bool:
				if x {
					return BoolTrue, nil
				}
				return "", nil
			default:
				return "", fmt.Errorf("empty_or_yes_to_bool: %v (%T) is not a bool", v, v)
			}
		},
	}
)

func parseInt(s string) (any, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("integer cell: %w", err)
	}
	return n, nil
}

func forward(ctx context.Context, c Converter, cell string, lookup Lookup, projectID int64) (any, error) {
	switch conv := c.(type) {
	case Value:
		return conv.Forward(cell)
	case Reference:
		if lookup == nil {
			return nil, exception.Newf(exception.KindConfiguration, "sheet", "no lookup to resolve %s", conv.Kind)
		}
		id, err := lookup.Resolve(ctx, conv.Kind, cell, projectID)
		if err != nil {
			return nil, err
		}
		if id == nil {
			return nil, nil
		}
		return *id, nil
	default:
		return nil, exception.Newf(exception.KindConfiguration, "sheet", "unsupported converter %T", c)
	}
}

func reverse(ctx context.Context, c Converter, v any, lookup Lookup) (string, error) {
	switch conv := c.(type) {
	case Value:
		return conv.Reverse(v)
	case Reference:
		switch x := v.(type) {
		case nil:
			return "", nil
		case string:
			return x, nil
		}
		id, ok := model.AsInt(v)
		if !ok {
			return "", fmt.Errorf("reference to %s: %v (%T) is not an id", conv.Kind, v, v)
		}
		if lookup == nil {
			return "", exception.Newf(exception.KindConfiguration, "sheet", "no lookup to name %s", conv.Kind)
		}
		return lookup.Name(ctx, conv.Kind, id)
	default:
		return "", exception.Newf(exception.KindConfiguration, "sheet", "unsupported converter %T", c)
	}
}
