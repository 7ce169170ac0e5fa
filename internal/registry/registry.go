// ABOUTME: Immutable registry of the Radius CLI tools exposed over MCP.
// ABOUTME: Loads the embedded TOML catalog and compiles input schemas for validation.

package registry

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed catalog.toml
var catalogTOML []byte

// Suffixes appended when the Radius CLI is not available. The catalog still
// lists every tool; clients see the degradation in the descriptions.
const (
	unavailableSuffix     = " (UNAVAILABLE: 'rad' command not found)"
	unavailableNoteSuffix = " (NOTE: 'rad' command not found in PATH)"
)

// ErrToolNotFound indicates the named tool is not in the catalog.
var ErrToolNotFound = errors.New("tool not found")

// Param describes one named string parameter of a tool.
type Param struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

// Descriptor is the immutable definition of one tool.
type Descriptor struct {
	Name        string
	Description string
	Args        []string // base argv appended after the runner command
	ParseOutput bool     // attempt to decode command output as JSON
	Required    []string
	Params      []Param

	inputSchema  map[string]any
	outputSchema map[string]any
}

// InputSchema returns the JSON-schema shape describing the tool's parameters.
func (d *Descriptor) InputSchema() map[string]any { return d.inputSchema }

// OutputSchema returns the fixed {output, data} result shape.
func (d *Descriptor) OutputSchema() map[string]any { return d.outputSchema }

// ToolSummary is the {name, description} projection used in metadata listings.
type ToolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Metadata is the catalog summary served by getMetadata and initialize.
type Metadata struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Tools       []ToolSummary `json:"tools"`
	Version     string        `json:"version"`
}

type manifest struct {
	Title       string         `toml:"title"`
	Description string         `toml:"description"`
	Version     string         `toml:"version"`
	Tools       []toolManifest `toml:"tools"`
}

type toolManifest struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Args        []string `toml:"args"`
	ParseOutput bool     `toml:"parse_output"`
	Required    []string `toml:"required"`
	Params      []Param  `toml:"params"`
}

// Options control registry construction.
type Options struct {
	// Degraded marks the backing executable as globally unavailable; tool
	// and catalog descriptions are suffixed so clients can surface it.
	Degraded bool
}

// Registry is the read-only tool catalog. Safe for concurrent use without
// synchronization: nothing mutates after New returns.
type Registry struct {
	title       string
	description string
	version     string
	order       []string
	tools       map[string]*Descriptor
	schemas     map[string]*jsonschema.Schema
}

// New builds the registry from the embedded catalog manifest.
func New(opts Options) (*Registry, error) {
	var m manifest
	if err := toml.Unmarshal(catalogTOML, &m); err != nil {
		return nil, fmt.Errorf("parsing tool catalog: %w", err)
	}
	if len(m.Tools) == 0 {
		return nil, errors.New("tool catalog is empty")
	}

	r := &Registry{
		title:       m.Title,
		description: m.Description,
		version:     m.Version,
		tools:       make(map[string]*Descriptor, len(m.Tools)),
		schemas:     make(map[string]*jsonschema.Schema, len(m.Tools)),
	}
	if opts.Degraded {
		r.description += unavailableNoteSuffix
	}

	compiler := jsonschema.NewCompiler()
	for _, tm := range m.Tools {
		if tm.Name == "" {
			return nil, errors.New("tool catalog entry missing name")
		}
		if _, dup := r.tools[tm.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q in catalog", tm.Name)
		}

		desc := tm.Description
		if opts.Degraded {
			desc += unavailableSuffix
		}

		d := &Descriptor{
			Name:         tm.Name,
			Description:  desc,
			Args:         tm.Args,
			ParseOutput:  tm.ParseOutput,
			Required:     tm.Required,
			Params:       tm.Params,
			inputSchema:  buildInputSchema(tm),
			outputSchema: outputSchema(),
		}

		schema, err := compileSchema(compiler, tm.Name, d.inputSchema)
		if err != nil {
			return nil, fmt.Errorf("compiling schema for %q: %w", tm.Name, err)
		}

		r.tools[tm.Name] = d
		r.schemas[tm.Name] = schema
		r.order = append(r.order, tm.Name)
	}

	return r, nil
}

// buildInputSchema assembles the JSON-schema object for a tool's parameters.
// All parameters are strings; unknown parameters are rejected.
func buildInputSchema(tm toolManifest) map[string]any {
	properties := map[string]any{}
	for _, p := range tm.Params {
		properties[p.Name] = map[string]any{
			"type":        "string",
			"description": p.Description,
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(tm.Required) > 0 {
		schema["required"] = tm.Required
	}
	return schema
}

// outputSchema returns the fixed result shape shared by every tool.
func outputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"output": map[string]any{
				"type":        "string",
				"description": "Command output",
			},
			"data": map[string]any{
				"type":        []any{"object", "array", "null"},
				"description": "Parsed JSON data (if available)",
			},
		},
	}
}

func compileSchema(compiler *jsonschema.Compiler, name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	url := "catalog:///" + name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// Describe returns every tool descriptor in registration order.
func (r *Registry) Describe() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Lookup returns the descriptor for the named tool.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.tools[name]
	return d, ok
}

// SchemaFor returns the input and output schemas for the named tool.
func (r *Registry) SchemaFor(name string) (input, output map[string]any, err error) {
	d, ok := r.tools[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return d.inputSchema, d.outputSchema, nil
}

// Metadata returns the catalog summary with tools in registration order.
func (r *Registry) Metadata() Metadata {
	summaries := make([]ToolSummary, 0, len(r.order))
	for _, name := range r.order {
		d := r.tools[name]
		summaries = append(summaries, ToolSummary{Name: d.Name, Description: d.Description})
	}
	return Metadata{
		Title:       r.title,
		Description: r.description,
		Tools:       summaries,
		Version:     r.version,
	}
}

// Validate checks tool parameters against the tool's compiled input schema.
// Missing required parameters are reported explicitly so the message always
// names the parameter; other schema violations fall through to the compiled
// validator.
func (r *Registry) Validate(name string, params map[string]any) error {
	d, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	var missing []string
	for _, req := range d.Required {
		v, present := params[req]
		if !present {
			missing = append(missing, req)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required parameter(s): %s", strings.Join(missing, ", "))
	}

	if params == nil {
		params = map[string]any{}
	}
	if err := r.schemas[name].Validate(params); err != nil {
		return fmt.Errorf("invalid parameters for %s: %v", name, err)
	}
	return nil
}
