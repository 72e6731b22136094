package protocol

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/stoewer/go-strcase"
)

// Document bundles the schemas of both directions of the protocol.
type Document struct {
	Request  *jsonschema.Schema `json:"request"`
	Response *jsonschema.Schema `json:"response"`
}

// NewReflector returns the reflector used for protocol schemas
func NewReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		KeyNamer: strcase.SnakeCase,
		Namer: func(t reflect.Type) string {
			return strcase.SnakeCase(t.Name())
		},
		ExpandedStruct: true,
		// Requests of any shape are accepted as long as they are objects.
		AllowAdditionalProperties: true,
		RequiredFromJSONSchemaTags: true,
	}
}

// Schema renders the JSON Schema for request and response lines.
func Schema() ([]byte, error) {
	r := NewReflector()

	doc := Document{
		Request:  r.Reflect(&Request{}),
		Response: r.Reflect(&Response{}),
	}
	doc.Request.Title = "Request"
	doc.Request.Description = "One line of engine input."
	doc.Response.Title = "Response"
	doc.Response.Description = "One line of engine output."
	doc.Response.Required = []string{"status"}

	return json.MarshalIndent(doc, "", "  ")
}
