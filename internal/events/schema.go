package events

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// loadSchemas compiles the embedded schema of every event type once.
var loadSchemas = sync.OnceValues(func() (map[Type]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	out := make(map[Type]*jsonschema.Schema, len(Types()))

	for _, t := range Types() {
		name := "schemas/" + string(t) + ".json"
		raw, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", name, err)
		}
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("adding schema %s: %w", name, err)
		}
		sch, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", name, err)
		}
		out[t] = sch
	}
	return out, nil
})

// Decode validates raw against the schema for t and decodes it into the
// matching event struct.
//
// Returns:
//   - Event: the typed event (a value, not a pointer)
//   - error: ErrUnknownType, or ErrDecode wrapping the parse or validation failure
func Decode(t Type, raw []byte) (Event, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	schemas, err := loadSchemas()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, t, err)
	}
	if err := schemas[t].Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, t, err)
	}

	switch t {
	case TypeWaitingForUserAction:
		return decodeInto[WaitingForUserAction](t, raw)
	case TypeOperationProgress:
		return decodeInto[OperationProgress](t, raw)
	case TypeMaintenanceResult:
		return decodeInto[MaintenanceResult](t, raw)
	case TypeProcedureAccepted:
		return decodeInto[ProcedureAccepted](t, raw)
	case TypeProcedureRejected:
		return decodeInto[ProcedureRejected](t, raw)
	default:
		return decodeInto[DetailedStatusChanged](t, raw)
	}
}

func decodeInto[E Event](t Type, raw []byte) (Event, error) {
	var e E
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, t, err)
	}
	return e, nil
}
