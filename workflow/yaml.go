package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/meshwave/agentwave/types"
)

// yamlTask mirrors types.Task, with Prompt and Context values rendered
// through text/template against the caller's params before conversion.
type yamlTask struct {
	ID            string            `yaml:"id"`
	AgentName     string            `yaml:"agent"`
	Description   string            `yaml:"description"`
	Prompt        string            `yaml:"prompt"`
	Dependencies  []string          `yaml:"depends_on"`
	Priority      int               `yaml:"priority"`
	MaxTokens     int               `yaml:"max_tokens"`
	ModelOverride string            `yaml:"model"`
	Context       map[string]string `yaml:"context"`
	ParentID      string            `yaml:"parent_id"`
}

// yamlDoc is the on-disk shape of a YAML template document.
type yamlDoc struct {
	Name         string     `yaml:"name"`
	ParamsSchema any        `yaml:"params_schema"`
	Tasks        []yamlTask `yaml:"tasks"`
}

// YAMLTemplate is a Template backed by a static task skeleton with
// {{.param}} placeholders in Prompt and Context values, and an optional
// JSON Schema validating the parameter bag before expansion.
type YAMLTemplate struct {
	name   string
	tasks  []yamlTask
	schema *jsonschema.Schema
}

// ParseYAML compiles a YAML template document. The document's
// params_schema field, when present, must be a JSON Schema object
// describing the accepted parameter keys.
func ParseYAML(doc []byte) (*YAMLTemplate, error) {
	var parsed yamlDoc
	if err := yaml.Unmarshal(doc, &parsed); err != nil {
		return nil, types.NewError(types.ErrorInvalidWorkflow, fmt.Sprintf("parse workflow template: %v", err))
	}
	if parsed.Name == "" {
		return nil, types.NewError(types.ErrorInvalidWorkflow, "workflow template missing name")
	}
	if len(parsed.Tasks) == 0 {
		return nil, types.NewError(types.ErrorInvalidWorkflow, fmt.Sprintf("workflow template %q has no tasks", parsed.Name))
	}

	var schema *jsonschema.Schema
	if parsed.ParamsSchema != nil {
		// Round-trip through JSON so the compiler sees plain JSON values.
		raw, err := json.Marshal(parsed.ParamsSchema)
		if err != nil {
			return nil, types.NewError(types.ErrorInvalidWorkflow, fmt.Sprintf("encode params_schema for %q: %v", parsed.Name, err))
		}
		var schemaDoc any
		if err := json.Unmarshal(raw, &schemaDoc); err != nil {
			return nil, types.NewError(types.ErrorInvalidWorkflow, fmt.Sprintf("parse params_schema for %q: %v", parsed.Name, err))
		}
		c := jsonschema.NewCompiler()
		resource := parsed.Name + "#params"
		if err := c.AddResource(resource, schemaDoc); err != nil {
			return nil, types.NewError(types.ErrorInvalidWorkflow, fmt.Sprintf("add params_schema resource for %q: %v", parsed.Name, err))
		}
		compiled, err := c.Compile(resource)
		if err != nil {
			return nil, types.NewError(types.ErrorInvalidWorkflow, fmt.Sprintf("compile params_schema for %q: %v", parsed.Name, err))
		}
		schema = compiled
	}

	return &YAMLTemplate{name: parsed.Name, tasks: parsed.Tasks, schema: schema}, nil
}

// Expand implements Template.
func (t *YAMLTemplate) Expand(_ context.Context, params map[string]any) ([]types.Task, error) {
	if t.schema != nil {
		if err := t.schema.Validate(params); err != nil {
			return nil, types.NewError(types.ErrorInvalidWorkflow, fmt.Sprintf("workflow template %q: invalid params: %v", t.name, err))
		}
	}

	out := make([]types.Task, 0, len(t.tasks))
	for _, yt := range t.tasks {
		prompt, err := render(yt.Prompt, params)
		if err != nil {
			return nil, types.NewError(types.ErrorInvalidWorkflow, fmt.Sprintf("workflow template %q: render prompt for task %q: %v", t.name, yt.ID, err))
		}
		agentName, err := render(yt.AgentName, params)
		if err != nil {
			return nil, types.NewError(types.ErrorInvalidWorkflow, fmt.Sprintf("workflow template %q: render agent for task %q: %v", t.name, yt.ID, err))
		}
		ctxFields := make(map[string]string, len(yt.Context))
		for k, v := range yt.Context {
			rv, err := render(v, params)
			if err != nil {
				return nil, types.NewError(types.ErrorInvalidWorkflow, fmt.Sprintf("workflow template %q: render context %q for task %q: %v", t.name, k, yt.ID, err))
			}
			ctxFields[k] = rv
		}
		out = append(out, types.Task{
			ID:            yt.ID,
			AgentName:     agentName,
			Description:   yt.Description,
			Prompt:        prompt,
			Dependencies:  yt.Dependencies,
			Priority:      yt.Priority,
			MaxTokens:     yt.MaxTokens,
			ModelOverride: yt.ModelOverride,
			Context:       ctxFields,
			ParentID:      yt.ParentID,
		})
	}
	return out, nil
}

// render substitutes {{.param}} placeholders in s using params.
func render(s string, params map[string]any) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	tmpl, err := template.New("task").Option("missingkey=error").Parse(s)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", err
	}
	return buf.String(), nil
}
