package field

import (
	"fmt"
	"strings"
)

// Loc is the location of a value inside a request, for example
// ["query", "limit"] or ["body", "items", 0, "name"].
type Loc []any

// Append returns a copy of loc with elems added. The receiver is never
// mutated so a Loc can be shared between sibling fields.
func (l Loc) Append(elems ...any) Loc {
	out := make(Loc, 0, len(l)+len(elems))
	out = append(out, l...)
	return append(out, elems...)
}

func (l Loc) String() string {
	parts := make([]string, len(l))
	for i, p := range l {
		parts[i] = fmt.Sprint(p)
	}

	return strings.Join(parts, ".")
}

// ErrorDetail is a single validation failure as rendered in a 422 response.
type ErrorDetail struct {
	Loc  Loc    `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// Errors is an ordered list of validation failures.
type Errors []ErrorDetail

func (e Errors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation failed: %s: %s", e[0].Loc, e[0].Msg)
	default:
		return fmt.Sprintf("validation failed: %d errors", len(e))
	}
}

// Error types and messages used across the binders.
const (
	TypeMissing    = "value_error.missing"
	TypeInteger    = "type_error.integer"
	TypeFloat      = "type_error.float"
	TypeBool       = "type_error.bool"
	TypeString     = "type_error.str"
	TypeList       = "type_error.list"
	TypeDict       = "type_error.dict"
	TypeUUID       = "type_error.uuid"
	TypeDatetime   = "value_error.datetime"
	TypeDuration   = "value_error.duration"
	TypeValue      = "value_error"
	TypeJSONDecode = "value_error.jsondecode"
	TypeFile       = "type_error.file"

	MsgMissing = "field required"
)

// Missing returns the detail reported for an absent required value.
func Missing(loc Loc) ErrorDetail {
	return ErrorDetail{Loc: loc, Msg: MsgMissing, Type: TypeMissing}
}

// Invalid returns a single-entry Errors value.
func Invalid(loc Loc, msg, typ string) Errors {
	return Errors{{Loc: loc, Msg: msg, Type: typ}}
}
