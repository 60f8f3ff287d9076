package ini

import (
	"bytes"
	"errors"
	"reflect"
	"strconv"
	"strings"
)

// Unmarshaller can be implemented to override how a value is decoded from
// its raw INI text.
type Unmarshaller interface {
	UnmarshalINI(bytes []byte) error
}

var unmarshallerType = reflect.TypeOf((*Unmarshaller)(nil)).Elem()

// get resolves key to a field of a struct (by ini tag, falling back to the
// field name) or an entry of a string-keyed map, and calls fn with it.
// Unknown keys are ignored.
func get(rv reflect.Value, key string, fn func(rv reflect.Value) error) error {
outer:
	for {
		switch rv.Kind() {
		case reflect.Pointer:
			if rv.IsNil() {
				rv.Set(reflect.New(rv.Type().Elem()))
			}
			rv = rv.Elem()
		case reflect.Struct, reflect.Map:
			break outer
		default:
			return nil
		}
	}

	switch rv.Kind() {
	case reflect.Struct:
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			name, ok := field.Tag.Lookup("ini")
			if !ok {
				name = field.Name
			}
			if name == key {
				return fn(rv.Field(i))
			}
		}
		return nil
	case reflect.Map:
		rt := rv.Type()
		if rt.Key().Kind() != reflect.String {
			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.MakeMap(rt))
		}
		k := reflect.New(rt.Key()).Elem()
		k.SetString(key)
		v := reflect.New(rt.Elem()).Elem()
		if err := fn(v); err != nil {
			return err
		}
		rv.SetMapIndex(k, v)
		return nil
	default:
		panic("unreachable")
	}
}

func set(rv reflect.Value, value string) error {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		if rv.Type().Implements(unmarshallerType) {
			return rv.Interface().(Unmarshaller).UnmarshalINI([]byte(value))
		}
		rv = rv.Elem()
	}
	if rv.CanAddr() && rv.Addr().Type().Implements(unmarshallerType) {
		return rv.Addr().Interface().(Unmarshaller).UnmarshalINI([]byte(value))
	}

	switch rv.Kind() {
	case reflect.Struct, reflect.Map:
		// inline form: key = a=1 b=2
		for _, field := range strings.Fields(value) {
			k, v, ok := strings.Cut(field, "=")
			if !ok {
				return errors.New("expected key=value")
			}
			if err := get(rv, k, func(entry reflect.Value) error {
				return set(entry, v)
			}); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice:
		items := strings.Split(value, ",")
		slice := reflect.MakeSlice(rv.Type(), len(items), len(items))
		for i, item := range items {
			if err := set(slice.Index(i), strings.TrimSpace(item)); err != nil {
				return err
			}
		}
		rv.Set(slice)
		return nil
	case reflect.String:
		rv.SetString(value)
		return nil
	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		rv.SetBool(v)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		rv.SetInt(v)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		rv.SetUint(v)
		return nil
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		rv.SetFloat(v)
		return nil
	default:
		return errors.New("cannot set value of this type")
	}
}

func setpath(rv reflect.Value, section, key, value string) error {
	if section == "" {
		return get(rv, key, func(entry reflect.Value) error {
			return set(entry, value)
		})
	}
	return get(rv, section, func(sec reflect.Value) error {
		return get(sec, key, func(entry reflect.Value) error {
			return set(entry, value)
		})
	})
}

func Unmarshal(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("expected pointer to non nil")
	}
	rv = rv.Elem()

	var section string

	var line []byte
	for len(data) > 0 {
		line, data, _ = bytes.Cut(data, []byte{'\n'})
		line = bytes.TrimSpace(line)

		if len(line) == 0 {
			continue
		}

		// comment
		if line[0] == ';' || line[0] == '#' {
			continue
		}

		// section header
		if line[0] == '[' && line[len(line)-1] == ']' {
			section = string(line[1 : len(line)-1])
			continue
		}

		key, value, ok := bytes.Cut(line, []byte{'='})
		if !ok {
			return errors.New("expected key = value")
		}
		key = bytes.TrimSpace(key)
		value = bytes.TrimSpace(value)

		if err := setpath(rv, section, string(key), string(value)); err != nil {
			return err
		}
	}

	return nil
}
