// Package serialize converts resource structs into CloudFormation property maps.
package serialize

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/cohort-modeler/cohort-infra/intrinsics"
)

// Resolver replaces values the serializer does not know how to emit, such as
// construct references. It reports handled=false for anything else.
type Resolver func(v any) (resolved any, handled bool, err error)

// Serializer walks Go values and produces JSON-compatible maps, slices and scalars.
type Serializer struct {
	resolve Resolver
}

// New returns a Serializer that consults resolve before serializing each value.
// A nil resolver is allowed.
func New(resolve Resolver) *Serializer {
	return &Serializer{resolve: resolve}
}

// Resource serializes a Go struct to CloudFormation resource properties
// without token resolution.
func Resource(v any) (map[string]any, error) {
	return New(nil).Resource(v)
}

// Resource serializes a Go struct to CloudFormation resource properties.
// It handles:
// - json tag field names
// - omitting nil/zero values
// - nested structs and intrinsic functions
// - values claimed by the resolver
func (s *Serializer) Resource(v any) (map[string]any, error) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, nil
		}
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct, got %s", val.Kind())
	}

	return s.structFields(val)
}

// Value serializes an arbitrary value.
func (s *Serializer) Value(v any) (any, error) {
	return s.serializeValue(reflect.ValueOf(v))
}

func (s *Serializer) structFields(val reflect.Value) (map[string]any, error) {
	result := make(map[string]any)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)

		if !field.IsExported() {
			continue
		}

		name := fieldName(field)
		if name == "-" {
			continue
		}

		if omitted(fieldVal) {
			continue
		}

		serialized, err := s.serializeValue(fieldVal)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		if serialized != nil {
			result[name] = serialized
		}
	}

	return result, nil
}

// fieldName returns the property name from the json tag, or the Go name.
func fieldName(field reflect.StructField) string {
	if name, _, _ := strings.Cut(field.Tag.Get("json"), ","); name != "" {
		return name
	}
	return field.Name
}

// omitted reports whether a field is left out of the property map. Empty
// slices and maps are omitted. Structs are kept unless they report IsZero.
func omitted(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	case reflect.Struct:
		z, ok := v.Interface().(interface{ IsZero() bool })
		return ok && z.IsZero()
	default:
		return v.IsZero()
	}
}

func (s *Serializer) nested(v any) (any, error) {
	return s.serializeValue(reflect.ValueOf(v))
}

func (s *Serializer) nestedAll(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		r, err := s.nested(v)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// serializeIntrinsic emits intrinsic functions whose arguments may hold
// values that need resolving. It reports false for anything else.
func (s *Serializer) serializeIntrinsic(iface any) (any, bool, error) {
	switch val := iface.(type) {
	case intrinsics.Equals:
		args, err := s.nestedAll([]any{val.Value1, val.Value2})
		return map[string]any{"Fn::Equals": args}, true, err
	case intrinsics.If:
		args, err := s.nestedAll([]any{val.ValueIfTrue, val.ValueIfFalse})
		if err != nil {
			return nil, true, err
		}
		return map[string]any{"Fn::If": []any{val.Condition, args[0], args[1]}}, true, nil
	case intrinsics.Select:
		list, err := s.nested(val.List)
		return map[string]any{"Fn::Select": []any{val.Index, list}}, true, err
	case intrinsics.And:
		conds, err := s.nestedAll(val.Conditions)
		return map[string]any{"Fn::And": conds}, true, err
	case intrinsics.Or:
		conds, err := s.nestedAll(val.Conditions)
		return map[string]any{"Fn::Or": conds}, true, err
	case intrinsics.Not:
		cond, err := s.nested(val.Condition)
		return map[string]any{"Fn::Not": []any{cond}}, true, err
	case intrinsics.Join:
		values, err := s.nestedAll(val.Values)
		return map[string]any{"Fn::Join": []any{val.Delimiter, values}}, true, err
	case intrinsics.SubWithMap:
		vars := make(map[string]any, len(val.Variables))
		for k, v := range val.Variables {
			r, err := s.nested(v)
			if err != nil {
				return nil, true, fmt.Errorf("Fn::Sub variable %s: %w", k, err)
			}
			vars[k] = r
		}
		return map[string]any{"Fn::Sub": []any{val.String, vars}}, true, nil
	case intrinsics.Base64:
		v, err := s.nested(val.Value)
		return map[string]any{"Fn::Base64": v}, true, err
	case intrinsics.ImportValue:
		v, err := s.nested(val.ExportName)
		return map[string]any{"Fn::ImportValue": v}, true, err
	case intrinsics.FindInMap:
		keys, err := s.nestedAll([]any{val.TopKey, val.SecondKey})
		if err != nil {
			return nil, true, err
		}
		return map[string]any{"Fn::FindInMap": []any{val.MapName, keys[0], keys[1]}}, true, nil
	case intrinsics.Split:
		src, err := s.nested(val.Source)
		return map[string]any{"Fn::Split": []any{val.Delimiter, src}}, true, err
	case intrinsics.Cidr:
		args, err := s.nestedAll([]any{val.IPBlock, val.Count, val.CidrBits})
		return map[string]any{"Fn::Cidr": args}, true, err
	case intrinsics.Tag:
		v, err := s.nested(val.Value)
		return map[string]any{"Key": val.Key, "Value": v}, true, err
	}
	return nil, false, nil
}

// serializeValue converts a reflect.Value to a JSON-compatible value.
func (s *Serializer) serializeValue(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	if s.resolve != nil && v.CanInterface() && !isNilPointer(v) {
		resolved, handled, err := s.resolve(v.Interface())
		if err != nil {
			return nil, err
		}
		if handled {
			return resolved, nil
		}
	}

	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		return s.serializeValue(v.Elem())
	}

	if v.CanInterface() {
		iface := v.Interface()
		if out, ok, err := s.serializeIntrinsic(iface); ok {
			return out, err
		}

		if marshaler, ok := iface.(json.Marshaler); ok {
			data, err := marshaler.MarshalJSON()
			if err != nil {
				return nil, err
			}
			var result any
			if err := json.Unmarshal(data, &result); err != nil {
				return nil, err
			}
			return result, nil
		}
	}

	switch v.Kind() {
	case reflect.Struct:
		return s.structFields(v)

	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return nil, nil
		}
		result := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			elem, err := s.serializeValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			result[i] = elem
		}
		return result, nil

	case reflect.Map:
		if v.Len() == 0 {
			return nil, nil
		}
		result := make(map[string]any)
		iter := v.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			val, err := s.serializeValue(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			result[key] = val
		}
		return result, nil

	case reflect.String:
		return v.String(), nil

	case reflect.Bool:
		return v.Bool(), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil

	case reflect.Float32, reflect.Float64:
		return v.Float(), nil

	default:
		return nil, fmt.Errorf("unsupported value of kind %s", v.Kind())
	}
}

func isNilPointer(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}
