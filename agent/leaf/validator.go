package leaf

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// fieldAliases canonicalizes legacy/alternate field names per leaf before
// validation.
var fieldAliases = map[string]map[string]string{
	"craft_recipe": {"item": "recipe", "count": "qty"},
	"smelt":        {"item": "input", "count": "qty"},
}

// NormalizeLeafArgs rewrites alias field names to their canonical form for
// leafName. The input map is not mutated; a new map is returned.
func NormalizeLeafArgs(leafName string, args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	aliases := fieldAliases[leafName]
	for k, v := range args {
		if canonical, ok := aliases[k]; ok {
			out[canonical] = v
			continue
		}
		out[k] = v
	}
	return out
}

// contractSchemas holds the compiled JSON Schema for each recognized leaf's
// argument contract, describing required fields and their value types.
var contractSchemas = map[string]string{
	"craft_recipe": `{
		"type": "object",
		"required": ["recipe", "qty"],
		"properties": {
			"recipe": {"type": "string", "minLength": 1},
			"qty": {"type": "number"}
		}
	}`,
	"smelt": `{
		"type": "object",
		"required": ["input", "qty"],
		"properties": {
			"input": {"type": "string", "minLength": 1},
			"qty": {"type": "number"}
		}
	}`,
	"acquire_material": `{
		"type": "object",
		"required": ["item", "qty"],
		"properties": {
			"item": {"type": "string", "minLength": 1},
			"qty": {"type": "number"}
		}
	}`,
	"place_block": `{
		"type": "object",
		"required": ["block", "position"],
		"properties": {
			"block": {"type": "string", "minLength": 1},
			"position": {"type": "object"}
		}
	}`,
	"place_workstation": `{
		"type": "object",
		"required": ["workstation"],
		"properties": {
			"workstation": {"type": "string", "minLength": 1}
		}
	}`,
	"explore_for_resources": `{
		"type": "object",
		"required": ["reason"],
		"properties": {
			"reason": {"type": "string"},
			"resource_tags": {"type": "array"}
		}
	}`,
	"step_forward_safely": `{
		"type": "object",
		"required": ["distance"],
		"properties": {
			"distance": {"type": "number"}
		}
	}`,
	"retreat_from_threat": `{
		"type": "object",
		"required": ["retreatDistance"],
		"properties": {
			"retreatDistance": {"type": "number"}
		}
	}`,
}

var (
	compiledMu      sync.Mutex
	compiledSchemas = map[string]*jsonschema.Schema{}
)

func compiledSchemaFor(leafName string) (*jsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()
	if s, ok := compiledSchemas[leafName]; ok {
		return s, nil
	}
	src, ok := contractSchemas[leafName]
	if !ok {
		return nil, nil
	}
	c := jsonschema.NewCompiler()
	url := "mem://leaf/" + leafName + ".json"
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, err
	}
	compiledSchemas[leafName] = schema
	return schema, nil
}

// ValidateLeafArgs validates args against leafName's contract, returning a
// descriptive error string or "" when valid. strict=true treats an empty
// object as invalid whenever the contract requires any field.
func ValidateLeafArgs(leafName string, args map[string]any, strict bool) string {
	schema, err := compiledSchemaFor(leafName)
	if err != nil {
		return fmt.Sprintf("invalid-args: schema compile error for %s: %v", leafName, err)
	}
	if schema == nil {
		// No contract registered for this leaf: nothing to validate against.
		return ""
	}
	if strict && len(args) == 0 {
		if _, required := contractSchemas[leafName]; required {
			return fmt.Sprintf("invalid-args: %s requires a non-empty args object", leafName)
		}
	}
	if err := schema.Validate(toAny(args)); err != nil {
		return fmt.Sprintf("invalid-args: %v", err)
	}
	return ""
}

func toAny(args map[string]any) any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
