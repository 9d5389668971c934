package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
)

// StructuredOutputFormat asks a provider to reply with JSON matching Schema.
// Schema is passed to the vendor untouched; its dialect is not validated.
// Documents decoded into this type must carry a "name" field.
type StructuredOutputFormat struct {
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

type structuredOutputFormatJSON struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

func (f *StructuredOutputFormat) UnmarshalJSON(data []byte) error {
	var raw structuredOutputFormatJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Name == nil {
		return llmErrors.InvalidInput("structured output format: missing field \"name\"")
	}

	schema, err := compactRaw(raw.Schema)
	if err != nil {
		return fmt.Errorf("structured output format %q: %w", *raw.Name, err)
	}

	*f = StructuredOutputFormat{
		Name:        *raw.Name,
		Description: raw.Description,
		Schema:      schema,
		Strict:      raw.Strict,
	}
	return nil
}

// Clone returns a deep copy; nil stays nil.
func (f *StructuredOutputFormat) Clone() *StructuredOutputFormat {
	if f == nil {
		return nil
	}
	out := &StructuredOutputFormat{Name: f.Name}
	if f.Description != nil {
		d := *f.Description
		out.Description = &d
	}
	if f.Schema != nil {
		out.Schema = append(json.RawMessage(nil), f.Schema...)
	}
	if f.Strict != nil {
		s := *f.Strict
		out.Strict = &s
	}
	return out
}

// SchemaValue decodes Schema into a generic value; nil when unset.
func (f StructuredOutputFormat) SchemaValue() (any, error) {
	if len(f.Schema) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(f.Schema, &v); err != nil {
		return nil, fmt.Errorf("decode schema %q: %w", f.Name, err)
	}
	return v, nil
}

// ParseStructuredOutputFormat decodes a user-supplied JSON document.
func ParseStructuredOutputFormat(data []byte) (*StructuredOutputFormat, error) {
	var f StructuredOutputFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, llmErrors.WrapWithCategory(err, "parse structured output format", llmErrors.ErrInvalidInput)
	}
	return &f, nil
}

// LoadStructuredOutputFormat reads and decodes a JSON document from path.
func LoadStructuredOutputFormat(path string) (*StructuredOutputFormat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file %s: %w", path, err)
	}
	return ParseStructuredOutputFormat(data)
}

func compactRaw(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

// Equal reports whether two formats are the same, comparing Schema by its
// compacted JSON so whitespace differences do not matter.
func (f StructuredOutputFormat) Equal(other StructuredOutputFormat) bool {
	if f.Name != other.Name || !equalPtr(f.Description, other.Description) || !equalPtr(f.Strict, other.Strict) {
		return false
	}
	a, errA := compactRaw(f.Schema)
	b, errB := compactRaw(other.Schema)
	if errA != nil || errB != nil {
		return bytes.Equal(f.Schema, other.Schema)
	}
	return bytes.Equal(a, b)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
