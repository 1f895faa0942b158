package field

import (
	"encoding"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	timeType            = reflect.TypeFor[time.Time]()
	durationType        = reflect.TypeFor[time.Duration]()
	uuidType            = reflect.TypeFor[uuid.UUID]()
	bytesType           = reflect.TypeFor[[]byte]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// failure is a coercion error before it gets a location.
type failure struct {
	msg string
	typ string
}

// isScalar reports whether t can be produced from a single string.
func isScalar(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t {
	case timeType, durationType, uuidType, bytesType:
		return true
	}

	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return true
	}

	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Interface:
		return true
	}

	return false
}

// coerce converts s into a value of type t.
func coerce(t reflect.Type, s string) (reflect.Value, *failure) {
	if t.Kind() == reflect.Pointer {
		v, f := coerce(t.Elem(), s)
		if f != nil {
			return reflect.Value{}, f
		}

		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(v)

		return ptr, nil
	}

	switch t {
	case timeType:
		for _, layout := range timeFormats {
			if ts, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return reflect.ValueOf(ts), nil
			}
		}

		return reflect.Value{}, &failure{"invalid datetime format", TypeDatetime}

	case durationType:
		d, err := time.ParseDuration(s)
		if err != nil {
			return reflect.Value{}, &failure{"invalid duration format", TypeDuration}
		}

		return reflect.ValueOf(d), nil

	case uuidType:
		id, err := uuid.Parse(s)
		if err != nil {
			return reflect.Value{}, &failure{"value is not a valid uuid", TypeUUID}
		}

		return reflect.ValueOf(id), nil

	case bytesType:
		return reflect.ValueOf([]byte(s)), nil
	}

	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		ptr := reflect.New(t)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return reflect.Value{}, &failure{err.Error(), TypeValue}
		}

		return ptr.Elem(), nil
	}

	out := reflect.New(t).Elem()

	switch t.Kind() {
	case reflect.Interface:
		return reflect.ValueOf(s), nil

	case reflect.String:
		out.SetString(s)

	case reflect.Bool:
		b, ok := parseBool(s)
		if !ok {
			return reflect.Value{}, &failure{"value could not be parsed to a boolean", TypeBool}
		}

		out.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, t.Bits())
		if err != nil {
			return reflect.Value{}, &failure{"value is not a valid integer", TypeInteger}
		}

		out.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(strings.TrimSpace(s), 10, t.Bits())
		if err != nil {
			return reflect.Value{}, &failure{"value is not a valid integer", TypeInteger}
		}

		out.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), t.Bits())
		if err != nil {
			return reflect.Value{}, &failure{"value is not a valid float", TypeFloat}
		}

		out.SetFloat(f)

	default:
		return reflect.Value{}, &failure{"unsupported value type " + t.String(), TypeValue}
	}

	return out, nil
}

// parseBool accepts the usual spellings of true and false.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on", "t", "y":
		return true, true
	case "false", "0", "no", "off", "f", "n":
		return false, true
	}

	return false, false
}
