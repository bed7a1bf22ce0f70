package tool

import (
	"errors"
	"fmt"
)

type Choice string

const (
	ChoiceAuto     Choice = "auto"
	ChoiceNone     Choice = "none"
	ChoiceRequired Choice = "required"
)

const (
	TypeFunction = "function"
	TypeMCP      = "mcp"
)

var ErrInvalidTool = errors.New("invalid tool")

// Tool is either a function the model may call, or a remote MCP server whose
// tools are exposed to the model.
type Tool struct {
	Type        string     `json:"type"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Parameters  Parameters `json:"parameters,omitzero"`

	ServerLabel     string   `json:"server_label,omitempty"`
	ServerURL       string   `json:"server_url,omitempty"`
	ConnectorID     string   `json:"connector_id,omitempty"`
	Authorization   string   `json:"authorization,omitempty"`
	RequireApproval string   `json:"require_approval,omitempty"`
	AllowedTools    []string `json:"allowed_tools,omitempty"`
}

type Parameters struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Required   []string   `json:"required"`
}

func (p Parameters) IsZero() bool {
	return p.Type == "" && len(p.Properties) == 0 && len(p.Required) == 0
}

type Properties map[string]Property

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// Function returns a function tool taking an object of the given properties.
func Function(name, description string, props Properties, required ...string) Tool {
	if props == nil {
		props = Properties{}
	}
	if required == nil {
		required = []string{}
	}
	return Tool{
		Type:        TypeFunction,
		Name:        name,
		Description: description,
		Parameters: Parameters{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

func (t Tool) Validate() error {
	switch t.Type {
	case TypeFunction:
		if t.Name == "" {
			return fmt.Errorf("%w: function tool without name", ErrInvalidTool)
		}
	case TypeMCP:
		if t.ServerLabel == "" {
			return fmt.Errorf("%w: mcp tool without server_label", ErrInvalidTool)
		}
		if t.ServerURL == "" && t.ConnectorID == "" {
			return fmt.Errorf("%w: mcp tool %q needs server_url or connector_id", ErrInvalidTool, t.ServerLabel)
		}
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidTool, t.Type)
	}
	return nil
}
