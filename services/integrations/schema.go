package integrations

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// paramSchemas maps "integration.action" to the JSON schema its rendered
// parameters must satisfy.
var paramSchemas = map[string]string{
	"gmail.send_email": `{
		"type": "object",
		"required": ["to", "subject", "body"],
		"properties": {
			"to":      {"type": "string", "minLength": 1},
			"subject": {"type": "string"},
			"body":    {"type": "string"},
			"cc":      {"type": "string"},
			"bcc":     {"type": "string"},
			"from":    {"type": "string"}
		}
	}`,
	"gmail.receive_email": `{
		"type": "object",
		"properties": {
			"query":      {"type": "string"},
			"maxResults": {"type": ["integer", "string"]}
		}
	}`,
	"gmail.search_email": `{
		"type": "object",
		"required": ["query"],
		"properties": {
			"query":      {"type": "string", "minLength": 1},
			"maxResults": {"type": ["integer", "string"]}
		}
	}`,
	"slack.post_message": `{
		"type": "object",
		"required": ["channel", "text"],
		"properties": {
			"channel":   {"type": "string", "minLength": 1},
			"text":      {"type": "string", "minLength": 1},
			"thread_ts": {"type": "string"}
		}
	}`,
	"slack.read_channels": `{
		"type": "object",
		"properties": {
			"types": {"type": "string"},
			"limit": {"type": ["integer", "string"]}
		}
	}`,
	"slack.read_messages": `{
		"type": "object",
		"required": ["channel"],
		"properties": {
			"channel": {"type": "string", "minLength": 1},
			"limit":   {"type": ["integer", "string"]}
		}
	}`,
	"hubspot.create_contact": `{
		"type": "object",
		"required": ["email"],
		"properties": {
			"email":     {"type": "string", "minLength": 3},
			"firstname": {"type": "string"},
			"lastname":  {"type": "string"},
			"company":   {"type": "string"},
			"phone":     {"type": "string"}
		}
	}`,
	"hubspot.update_contact": `{
		"type": "object",
		"required": ["id", "properties"],
		"properties": {
			"id":         {"type": "string", "minLength": 1},
			"properties": {"type": "object"}
		}
	}`,
	"hubspot.get_contact": `{
		"type": "object",
		"required": ["id"],
		"properties": {"id": {"type": "string", "minLength": 1}}
	}`,
	"hubspot.create_deal": `{
		"type": "object",
		"required": ["dealname"],
		"properties": {
			"dealname":  {"type": "string", "minLength": 1},
			"amount":    {"type": ["number", "string"]},
			"dealstage": {"type": "string"},
			"pipeline":  {"type": "string"},
			"closedate": {"type": "string"}
		}
	}`,
	"hubspot.update_deal": `{
		"type": "object",
		"required": ["id", "properties"],
		"properties": {
			"id":         {"type": "string", "minLength": 1},
			"properties": {"type": "object"}
		}
	}`,
}

// Actions returns the actions known for an integration.
func Actions(integration string) []string {
	var out []string
	prefix := integration + "."
	for key := range paramSchemas {
		if strings.HasPrefix(key, prefix) {
			out = append(out, strings.TrimPrefix(key, prefix))
		}
	}
	return out
}

// ValidateParams checks params against the schema of integration.action.
func ValidateParams(integration, action string, params map[string]any) error {
	schema, ok := paramSchemas[integration+"."+action]
	if !ok {
		return unknownAction(integration, action)
	}
	if params == nil {
		params = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(params))
	if err != nil {
		return fmt.Errorf("%s.%s: validate parameters: %w", integration, action, err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%s.%s: invalid parameters: %s", integration, action, strings.Join(errs, "; "))
	}
	return nil
}
