package models

// ParamType is the declared type of an algorithm parameter.
type ParamType string

const (
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamString  ParamType = "string"
	ParamBoolean ParamType = "boolean"
)

// ParamSpec declares one accepted algorithm parameter.
type ParamSpec struct {
	Type        ParamType `json:"type" toml:"type"`
	Default     any       `json:"default,omitempty" toml:"default"`
	Description string    `json:"description,omitempty" toml:"description"`
	Min         *float64  `json:"min,omitempty" toml:"min"`
	Max         *float64  `json:"max,omitempty" toml:"max"`
	Enum        []string  `json:"enum,omitempty" toml:"enum"`
}

// Algorithm describes a registered GRN inference method.
type Algorithm struct {
	Name        string               `json:"name" toml:"name"`
	DisplayName string               `json:"display_name" toml:"display_name"`
	Description string               `json:"description" toml:"description"`
	Image       string               `json:"image" toml:"image"`
	Command     []string             `json:"command,omitempty" toml:"command"`
	Parameters  map[string]ParamSpec `json:"parameters" toml:"parameters"`
}
