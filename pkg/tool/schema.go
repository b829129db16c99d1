package tool

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

type declaration struct {
	name        string
	description string
	schema      func() (*jsonschema.Schema, error)
}

func schemaOf[T any]() func() (*jsonschema.Schema, error) {
	return func() (*jsonschema.Schema, error) {
		return jsonschema.For[T](nil)
	}
}

var declarations = []declaration{
	{
		name:        NameCreateTask,
		description: "User delegated something to remember and remind about",
		schema:      schemaOf[createTaskArgs](),
	},
	{
		name:        NameCompleteTask,
		description: "User says something is done or no longer needed",
		schema:      schemaOf[completeTaskArgs](),
	},
	{
		name:        NameUpdateTask,
		description: "User wants to change the timing of a delegated task",
		schema:      schemaOf[updateTaskArgs](),
	},
	{
		name:        NameListTasks,
		description: "User asks what they've delegated or what's coming up",
		schema:      schemaOf[listTasksArgs](),
	},
	{
		name:        NameSaveMemo,
		description: "User mentioned a personal preference, habit, or important info worth remembering for future interactions",
		schema:      schemaOf[saveMemoArgs](),
	},
	{
		name:        NameReadLink,
		description: "Message contains a URL that should be fetched and read",
		schema:      schemaOf[readLinkArgs](),
	},
}

// Declarations returns the function declarations of all tools for Gemini function calling
func Declarations() (*genai.Tool, error) {
	decls := &genai.Tool{}
	for _, d := range declarations {
		js, err := d.schema()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to infer tool schema", goerr.V("name", d.name))
		}

		fd := &genai.FunctionDeclaration{
			Name:        d.name,
			Description: d.description,
		}
		// a parameterless function is declared without a schema
		if len(js.Properties) > 0 {
			params, err := convertJSONSchemaToGenai(js)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert tool schema", goerr.V("name", d.name))
			}
			fd.Parameters = params
		}
		decls.FunctionDeclarations = append(decls.FunctionDeclarations, fd)
	}
	return decls, nil
}

// Schemas returns the JSON schema of each tool's arguments keyed by tool name
func Schemas() (map[string]*jsonschema.Schema, error) {
	schemas := make(map[string]*jsonschema.Schema, len(declarations))
	for _, d := range declarations {
		js, err := d.schema()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to infer tool schema", goerr.V("name", d.name))
		}
		schemas[d.name] = js
	}
	return schemas, nil
}

// Description returns the model-facing description of a tool
func Description(name string) string {
	for _, d := range declarations {
		if d.name == name {
			return d.description
		}
	}
	return ""
}

// convertJSONSchemaToGenai converts JSON Schema to Gemini genai.Schema
func convertJSONSchemaToGenai(schema *jsonschema.Schema) (*genai.Schema, error) {
	if schema == nil {
		return nil, nil
	}

	out := &genai.Schema{
		Description: schema.Description,
		Required:    schema.Required,
	}

	switch schema.Type {
	case "object":
		out.Type = genai.TypeObject
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	default:
		if schema.Type != "" {
			return nil, goerr.New("unsupported schema type", goerr.V("type", schema.Type))
		}
	}

	for _, v := range schema.Enum {
		if s, ok := v.(string); ok {
			out.Enum = append(out.Enum, s)
		}
	}

	if len(schema.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for name, prop := range schema.Properties {
			converted, err := convertJSONSchemaToGenai(prop)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert property schema", goerr.V("property", name))
			}
			out.Properties[name] = converted
		}
	}

	if schema.Items != nil {
		converted, err := convertJSONSchemaToGenai(schema.Items)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert items schema")
		}
		out.Items = converted
	}

	return out, nil
}
