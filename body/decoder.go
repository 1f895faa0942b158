package body

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Decoder turns raw body bytes into v, a non-nil pointer.
type Decoder interface {
	Decode(data []byte, v any) error
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte, v any) error

// Decode implements Decoder.
func (f DecoderFunc) Decode(data []byte, v any) error { return f(data, v) }

// JSONDecoder decodes exactly one JSON value; trailing data is an error.
type JSONDecoder struct {
	DisallowUnknownFields bool
}

// Decode implements Decoder.
func (d JSONDecoder) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if d.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(v); err != nil {
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data after JSON value")
	}

	return nil
}

// YAMLDecoder decodes YAML documents into types described with json tags.
type YAMLDecoder struct{}

// Decode implements Decoder.
func (YAMLDecoder) Decode(data []byte, v any) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}

	return viaJSON(doc, v)
}

// MsgPackDecoder decodes MessagePack using json struct tags.
type MsgPackDecoder struct {
	DisallowUnknownFields bool
}

// Decode implements Decoder.
func (d MsgPackDecoder) Decode(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if d.DisallowUnknownFields {
		dec.DisallowUnknownFields(true)
	}

	return dec.Decode(v)
}

// TOMLDecoder decodes TOML documents into types described with json tags.
type TOMLDecoder struct{}

// Decode implements Decoder.
func (TOMLDecoder) Decode(data []byte, v any) error {
	doc := map[string]any{}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return err
	}

	return viaJSON(doc, v)
}

// viaJSON re-encodes a generic document so json tags, TextUnmarshaler and
// the json type errors apply uniformly.
func viaJSON(doc, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "re-encode document")
	}

	return json.Unmarshal(data, v)
}
