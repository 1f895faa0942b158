package field

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator. Struct namespaces use JSON names so
// error locations match the wire format.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(sf reflect.StructField) string {
			name, _, skip := jsonName(sf)
			if skip {
				return "-"
			}

			return name
		})
	})

	return validate
}

// Check runs validator tags and struct validation on an already typed value.
func (f *Field) Check(value any, loc Loc) Errors {
	if value == nil {
		return nil
	}

	if f.tag != "" {
		if err := Validator().Var(value, f.tag); err != nil {
			return translate(err, loc, false)
		}
	}

	return checkStructs(reflect.ValueOf(value), loc)
}

// CheckValue validates structs reachable from value without field tags.
func CheckValue(value any, loc Loc) Errors {
	if value == nil {
		return nil
	}

	return checkStructs(reflect.ValueOf(value), loc)
}

func checkStructs(rv reflect.Value, loc Loc) Errors {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}

		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		if rv.Type() == timeType {
			return nil
		}

		if err := Validator().Struct(rv.Interface()); err != nil {
			return translate(err, loc, true)
		}

	case reflect.Slice, reflect.Array:
		if rv.Type() == bytesType {
			return nil
		}

		var errs Errors
		for i := range rv.Len() {
			errs = append(errs, checkStructs(rv.Index(i), loc.Append(i))...)
		}

		return errs

	case reflect.Map:
		var errs Errors
		for _, key := range rv.MapKeys() {
			errs = append(errs, checkStructs(rv.MapIndex(key), loc.Append(fmt.Sprint(key.Interface())))...)
		}

		return sortErrors(errs)
	}

	return nil
}

func translate(err error, loc Loc, structLevel bool) Errors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Invalid(loc, err.Error(), TypeValue)
	}

	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		at := loc
		if structLevel {
			at = loc.Append(namespacePath(fe.Namespace())...)
		}

		msg, typ := message(fe)
		out = append(out, ErrorDetail{Loc: at, Msg: msg, Type: typ})
	}

	return out
}

// namespacePath splits "Item.tags[0].name" into ["tags", 0, "name"],
// dropping the root struct name.
func namespacePath(ns string) []any {
	segments := strings.Split(ns, ".")
	if len(segments) > 0 {
		segments = segments[1:]
	}

	var path []any
	for _, seg := range segments {
		for seg != "" {
			open := strings.IndexByte(seg, '[')
			if open < 0 {
				path = append(path, seg)
				break
			}

			if open > 0 {
				path = append(path, seg[:open])
			}

			end := strings.IndexByte(seg[open:], ']')
			if end < 0 {
				path = append(path, seg[open:])
				break
			}

			key := seg[open+1 : open+end]
			if n, err := strconv.Atoi(key); err == nil {
				path = append(path, n)
			} else {
				path = append(path, key)
			}

			seg = seg[open+end+1:]
		}
	}

	return path
}

func message(fe validator.FieldError) (string, string) {
	kind := fe.Kind()
	sized := kind == reflect.String || kind == reflect.Slice || kind == reflect.Map || kind == reflect.Array
	unit := "characters"
	if kind != reflect.String {
		unit = "items"
	}

	switch fe.Tag() {
	case "required":
		return MsgMissing, TypeMissing
	case "min", "gte":
		if sized {
			return fmt.Sprintf("ensure this value has at least %s %s", fe.Param(), unit), "value_error.min_length"
		}

		return "ensure this value is greater than or equal to " + fe.Param(), "value_error.number.not_ge"
	case "max", "lte":
		if sized {
			return fmt.Sprintf("ensure this value has at most %s %s", fe.Param(), unit), "value_error.max_length"
		}

		return "ensure this value is less than or equal to " + fe.Param(), "value_error.number.not_le"
	case "gt":
		return "ensure this value is greater than " + fe.Param(), "value_error.number.not_gt"
	case "lt":
		return "ensure this value is less than " + fe.Param(), "value_error.number.not_lt"
	case "len":
		return fmt.Sprintf("ensure this value has exactly %s %s", fe.Param(), unit), "value_error.len"
	case "oneof":
		return "value is not a valid enumeration member; permitted: " + strings.Join(strings.Fields(fe.Param()), ", "), "type_error.enum"
	case "email":
		return "value is not a valid email address", "value_error.email"
	case "url", "uri", "http_url":
		return "invalid or missing URL scheme", "value_error.url"
	case "uuid", "uuid4":
		return "value is not a valid uuid", TypeUUID
	default:
		return fmt.Sprintf("failed on the %q validation", fe.Tag()), "value_error." + fe.Tag()
	}
}

func sortErrors(errs Errors) Errors {
	sort.SliceStable(errs, func(i, j int) bool {
		return errs[i].Loc.String() < errs[j].Loc.String()
	})

	return errs
}
