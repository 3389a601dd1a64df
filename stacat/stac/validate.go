package stac

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Minimal structural schemas. They check the members traversal depends on,
// not the full STAC specification.
var schemas = map[Type]string{
	TypeCatalog: `{
		"type": "object",
		"required": ["id", "description", "links"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"links": {"type": "array", "items": {"$ref": "#/definitions/link"}}
		},
		"definitions": ` + linkDefinition + `
	}`,
	TypeCollection: `{
		"type": "object",
		"required": ["id", "description", "license", "extent", "links"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"license": {"type": "string"},
			"extent": {"type": "object"},
			"assets": {"type": "object", "additionalProperties": {"$ref": "#/definitions/asset"}},
			"links": {"type": "array", "items": {"$ref": "#/definitions/link"}}
		},
		"definitions": ` + linkDefinition + `
	}`,
	TypeItem: `{
		"type": "object",
		"required": ["id", "type", "geometry", "properties", "assets", "links"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"type": {"enum": ["Feature"]},
			"geometry": {"type": ["object", "null"]},
			"properties": {"type": "object"},
			"assets": {"type": "object", "additionalProperties": {"$ref": "#/definitions/asset"}},
			"links": {"type": "array", "items": {"$ref": "#/definitions/link"}}
		},
		"definitions": ` + linkDefinition + `
	}`,
	TypeItemCollection: `{
		"type": "object",
		"required": ["type", "features"],
		"properties": {
			"type": {"enum": ["FeatureCollection"]},
			"features": {"type": "array", "items": {"type": "object", "required": ["id", "assets"]}}
		}
	}`,
}

const linkDefinition = `{
	"link": {
		"type": "object",
		"required": ["rel", "href"],
		"properties": {"rel": {"type": "string"}, "href": {"type": "string"}}
	},
	"asset": {
		"type": "object",
		"required": ["href"],
		"properties": {"href": {"type": "string", "minLength": 1}}
	}
}`

// ValidationError lists the schema violations found in a document.
type ValidationError struct {
	Type   Type
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("stac: invalid %s: %s", e.Type, strings.Join(e.Errors, "; "))
}

// Unwrap returns ErrInvalidDocument.
func (e *ValidationError) Unwrap() error { return ErrInvalidDocument }

// Validate checks obj against the structural schema of its type.
func Validate(obj Object) error {
	schema, ok := schemas[obj.ObjectType()]
	if !ok {
		return fmt.Errorf("%w: no schema for type %q", ErrInvalidDocument, obj.ObjectType())
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(obj.ToMap()),
	)
	if err != nil {
		return fmt.Errorf("stac: validate: %w", err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{Type: obj.ObjectType()}
	for _, re := range result.Errors() {
		verr.Errors = append(verr.Errors, re.String())
	}
	return verr
}
