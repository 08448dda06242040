package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Validator checks inbound client messages against the embedded JSON schemas.
type Validator struct {
	hello *jsonschema.Schema
	act   *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	for _, name := range []string{"hello.schema.json", "act.schema.json"} {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}
	hello, err := c.Compile("hello.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile hello schema: %w", err)
	}
	act, err := c.Compile("act.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile act schema: %w", err)
	}
	return &Validator{hello: hello, act: act}, nil
}

// Validate checks raw JSON against the schema for msgType. Unknown types
// are rejected.
func (v *Validator) Validate(msgType string, raw []byte) error {
	var s *jsonschema.Schema
	switch msgType {
	case TypeHello:
		s = v.hello
	case TypeAct:
		s = v.act
	default:
		return fmt.Errorf("no schema for message type %q", msgType)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
