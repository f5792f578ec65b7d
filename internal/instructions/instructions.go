// Package instructions parses and renders user-authored instruction
// documents, the JSON form in which learning preferences arrive over
// the API before they are applied to a container.
package instructions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/praxis-labs/mentat/internal/container"
)

// DocumentVersion is the only instruction document version accepted.
const DocumentVersion = 1

// ActionIgnoreEventType suppresses observation of a single event type.
const ActionIgnoreEventType = "ignore_event_type"

// ErrUnsupportedVersion is returned for documents written against a
// different document version.
var ErrUnsupportedVersion = errors.New("unsupported instruction document version")

const documentSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["version", "instructions"],
	"properties": {
		"version": {"type": "integer"},
		"instructions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["action"],
				"properties": {
					"action": {"type": "string"},
					"type": {"type": "string"}
				}
			}
		}
	}
}`

type document struct {
	Version      int         `json:"version"`
	Instructions []directive `json:"instructions"`
}

type directive struct {
	Action string `json:"action"`
	Type   string `json:"type,omitempty"`
}

// Parse validates a raw instruction document and converts it into the
// instruction values a container accepts. The action set is closed:
// any directive with an unrecognized action rejects the whole document.
func Parse(data []byte) ([]container.Instruction, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode instruction document: %w", err)
	}
	if doc.Version != DocumentVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, doc.Version, DocumentVersion)
	}

	out := make([]container.Instruction, 0, len(doc.Instructions))
	for i, d := range doc.Instructions {
		switch d.Action {
		case ActionIgnoreEventType:
			if d.Type == "" {
				return nil, fmt.Errorf("instruction %d: %s requires a type", i, ActionIgnoreEventType)
			}
			out = append(out, container.IgnoreEventType{EventType: d.Type})
		default:
			return nil, fmt.Errorf("instruction %d: unknown action %q", i, d.Action)
		}
	}
	return out, nil
}

// Encode renders instructions back into the canonical document form.
func Encode(list []container.Instruction) ([]byte, error) {
	doc := document{
		Version:      DocumentVersion,
		Instructions: make([]directive, 0, len(list)),
	}
	for _, ins := range list {
		switch v := ins.(type) {
		case container.IgnoreEventType:
			doc.Instructions = append(doc.Instructions, directive{Action: ActionIgnoreEventType, Type: v.EventType})
		default:
			return nil, fmt.Errorf("unsupported instruction %T", ins)
		}
	}
	return json.Marshal(doc)
}

func validateDocument(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(documentSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid instruction document: %s", strings.Join(msgs, "; "))
	}
	return nil
}
