package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"formflow/internal/form/answers"
)

// Schema validates the structural shape of an answer set against a
// template's JSON schema (field types, formats, required keys).
type Schema struct {
	compiled *jsonschema.Schema
}

// CompileSchema parses and compiles a JSON schema document. Templates
// compile at registration so malformed schemas fail at boot.
func CompileSchema(raw []byte) (*Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse answer schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("answers.json", doc); err != nil {
		return nil, fmt.Errorf("add answer schema resource: %w", err)
	}
	compiled, err := c.Compile("answers.json")
	if err != nil {
		return nil, fmt.Errorf("compile answer schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// Validate checks the answer set, returning the first leaf failure with a
// dot/bracket path, or nil when the shape is valid. A nil schema passes
// everything (templates without structural rules).
func (s *Schema) Validate(ans answers.Map) *Error {
	if s == nil || s.compiled == nil {
		return nil
	}
	err := s.compiled.Validate(map[string]any(ans))
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &Error{Message: err.Error()}
	}
	leaf := leafCause(ve)
	return &Error{
		Message: leaf.Error(),
		Path:    dotPath(leaf.InstanceLocation),
	}
}

// leafCause walks to the first deepest cause so the reported path points at
// a concrete field instead of the schema root.
func leafCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

// dotPath converts a JSON-pointer instance location into the dot/bracket
// form the rest of the system addresses answers with.
func dotPath(location []string) string {
	var b strings.Builder
	for _, seg := range location {
		if isIndex(seg) {
			b.WriteString("[")
			b.WriteString(seg)
			b.WriteString("]")
			continue
		}
		if b.Len() > 0 {
			b.WriteString(".")
		}
		b.WriteString(seg)
	}
	return b.String()
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
