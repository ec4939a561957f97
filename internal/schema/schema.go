// Package schema validates decoded YAML documents against embedded CUE
// definitions.
//
// Documents are decoded with gopkg.in/yaml.v3 into generic values, unified
// with a closed CUE definition, and decoded into Go structs through their
// json tags. Unknown fields, wrong types and failed constraints all surface
// as errors that name the offending path.
package schema

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// Schema is a compiled CUE source holding one or more definitions.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so Check
// serializes callers.
type Schema struct {
	mu   sync.Mutex
	name string
	ctx  *cue.Context
	val  cue.Value
}

// Compile builds a Schema from CUE source. name is used in error messages.
func Compile(name, src string) (*Schema, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(src, cue.Filename(name))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, formatCUEError(err))
	}
	return &Schema{name: name, ctx: ctx, val: val}, nil
}

// MustCompile is like Compile but panics on error.
// Use only with embedded sources.
func MustCompile(name, src string) *Schema {
	s, err := Compile(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Check unifies raw with the definition def (for example "#Manifest"),
// requires the result to be concrete, and decodes it into out.
func (s *Schema) Check(def string, raw any, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema := s.val.LookupPath(cue.ParsePath(def))
	if !schema.Exists() {
		return fmt.Errorf("schema %s has no definition %s", s.name, def)
	}

	doc := s.ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encode document: %w", formatCUEError(err))
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	if out == nil {
		return nil
	}
	if err := unified.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", def, formatCUEError(err))
	}
	return nil
}

// formatCUEError flattens a CUE error list into one error, keeping every
// message so a manifest author sees all problems at once.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
