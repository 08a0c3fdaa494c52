package checkpoint

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
)

// File extensions for supported codecs.
const (
	jsonExtension = ".json"
	gobExtension  = ".gob"
)

const defaultIndent = "  "

// requiredJSONFields must be present in every human-readable checkpoint.
var requiredJSONFields = []string{
	"completed_indices",
	"results",
	"total_items",
	"checkpoint_time",
}

// Codec defines how a record is serialized and deserialized.
type Codec interface {
	// Encode writes v to w.
	Encode(w io.Writer, v any) error
	// Decode reads into v, which must be a pointer.
	Decode(r io.Reader, v any) error
	// Extension returns the file extension, including the dot.
	Extension() string
}

// JSONCodec implements Codec using JSON with optional indentation.
type JSONCodec struct {
	// Indent is the indentation string. Empty means compact JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec with two-space indentation.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.
func (c *JSONCodec) Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if c.Indent != "" {
		enc.SetIndent("", c.Indent)
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

// Decode implements Codec.
func (c *JSONCodec) Decode(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	return nil
}

// Extension implements Codec.
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

// GobCodec implements Codec using encoding/gob.
//
// Result types stored behind interfaces (Record[any]) must be registered
// with gob.Register before encoding. Gob carries no required-field check;
// see DecodeRecord.
type GobCodec struct{}

// NewGobCodec creates a gob codec.
func NewGobCodec() *GobCodec {
	return &GobCodec{}
}

// Encode implements Codec.
func (c *GobCodec) Encode(w io.Writer, v any) error {
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// Decode implements Codec.
func (c *GobCodec) Decode(r io.Reader, v any) error {
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}

// Extension implements Codec.
func (c *GobCodec) Extension() string {
	return gobExtension
}

// CodecFor returns the codec for a format.
func CodecFor(f Format) (Codec, error) {
	switch f {
	case FormatJSON:
		return NewJSONCodec(), nil
	case FormatBinary:
		return NewGobCodec(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// EncodeRecord serializes rec in the given format.
func EncodeRecord[R any](rec Record[R], f Format) ([]byte, error) {
	codec, err := CodecFor(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := codec.Encode(&buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRecord deserializes a record and checks that it is well formed.
// All failures are *DecodeError.
//
// JSON input must carry every required field. Binary (gob) input is only
// checked for len(CompletedIndices) == len(Results): gob leaves missing
// fields at their zero value, so a foreign gob stream that shares a field
// name with Record decodes into a mostly empty record without error.
func DecodeRecord[R any](data []byte, f Format) (Record[R], error) {
	codec, err := CodecFor(f)
	if err != nil {
		return Record[R]{}, &DecodeError{Format: f, Reason: "unsupported format", Err: err}
	}

	if f == FormatJSON {
		if err := checkRequiredFields(data); err != nil {
			return Record[R]{}, err
		}
	}

	var rec Record[R]
	if err := codec.Decode(bytes.NewReader(data), &rec); err != nil {
		return Record[R]{}, &DecodeError{Format: f, Reason: "malformed", Err: err}
	}

	if len(rec.CompletedIndices) != len(rec.Results) {
		return Record[R]{}, &DecodeError{
			Format: f,
			Reason: "inconsistent record",
			Err: fmt.Errorf("%w: %d indices, %d results",
				ErrLengthMismatch, len(rec.CompletedIndices), len(rec.Results)),
		}
	}

	normalize(&rec)
	return rec, nil
}

func checkRequiredFields(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return &DecodeError{Format: FormatJSON, Reason: "malformed", Err: err}
	}
	for _, name := range requiredJSONFields {
		if _, ok := fields[name]; !ok {
			return &DecodeError{
				Format: FormatJSON,
				Reason: "missing field",
				Err:    fmt.Errorf("%w: %s", ErrMissingField, name),
			}
		}
	}
	return nil
}

// normalize replaces nil collections so both formats decode to the same
// shape; gob omits empty slices and maps.
func normalize[R any](rec *Record[R]) {
	if rec.CompletedIndices == nil {
		rec.CompletedIndices = []int{}
	}
	if rec.Results == nil {
		rec.Results = []R{}
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}
}
