package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// ErrSchema marks a body that failed validation. The HTTP layer maps it to
// 400 alongside the engine's own validation class.
var ErrSchema = errors.New("schema violation")

var schemas = compileAll()

func compileAll() map[string]*jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, kind := range kinds {
		name := schemaName(kind)
		raw, err := schemaFS.ReadFile(name)
		if err != nil {
			panic(fmt.Sprintf("protocol: read %s: %v", name, err))
		}
		if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
			panic(fmt.Sprintf("protocol: add %s: %v", name, err))
		}
	}
	out := make(map[string]*jsonschema.Schema, len(kinds))
	for _, kind := range kinds {
		out[kind] = c.MustCompile(schemaName(kind))
	}
	return out
}

func schemaName(kind string) string {
	return "schemas/" + kind + ".schema.json"
}

// Validate checks raw against the schema for kind. A nil error means the body
// is structurally sound and safe to decode into its request struct. Numbers
// are decoded with UseNumber so they are checked at full precision; 1<<63 is
// rejected while 1<<63 - 1 passes.
func Validate(kind string, raw []byte) error {
	s, ok := schemas[kind]
	if !ok {
		return fmt.Errorf("%w: unknown request kind %q", ErrSchema, kind)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var inst any
	if err := dec.Decode(&inst); err != nil {
		return fmt.Errorf("%w: malformed json: %v", ErrSchema, err)
	}
	if err := s.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
