package skill

import (
	"regexp"
	"time"
)

// TargetClass names the syntax a skill accepts for its target.
type TargetClass string

const (
	TargetHostname   TargetClass = "hostname"
	TargetIP         TargetClass = "ip"
	TargetCIDR       TargetClass = "cidr"
	TargetHostOrCIDR TargetClass = "host_or_cidr"
	TargetURL        TargetClass = "url"
)

// ParamType is the value type of a declared parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamBool   ParamType = "bool"
	ParamEnum   ParamType = "enum"
)

// Template placeholders.
const (
	PlaceholderTarget = "{target}"
	PlaceholderParams = "{params}"
)

// ParamSpec declares one allowed parameter of a skill.
type ParamSpec struct {
	Name        string    `yaml:"name" toml:"name" json:"name"`
	Type        ParamType `yaml:"type" toml:"type" json:"type"`
	Description string    `yaml:"description,omitempty" toml:"description" json:"description,omitempty"`

	// Flag is emitted in front of the value ("-p 80"), or alone for bools.
	Flag string `yaml:"flag" toml:"flag" json:"flag"`
	// Join emits flag and value as a single element ("-T4").
	Join bool `yaml:"join,omitempty" toml:"join" json:"join,omitempty"`

	Pattern   string   `yaml:"pattern,omitempty" toml:"pattern" json:"pattern,omitempty"`
	MaxLength int      `yaml:"max_length,omitempty" toml:"max_length" json:"max_length,omitempty"`
	Min       *int64   `yaml:"min,omitempty" toml:"min" json:"min,omitempty"`
	Max       *int64   `yaml:"max,omitempty" toml:"max" json:"max,omitempty"`
	Values    []string `yaml:"values,omitempty" toml:"values" json:"values,omitempty"`

	re *regexp.Regexp
}

// Descriptor is the immutable capability definition of a skill.
type Descriptor struct {
	Name        string        `yaml:"name" toml:"name" json:"name"`
	Description string        `yaml:"description" toml:"description" json:"description"`
	Binary      string        `yaml:"binary" toml:"binary" json:"-"`
	Args        []string      `yaml:"args" toml:"args" json:"-"`
	Target      TargetClass   `yaml:"target" toml:"target" json:"target"`
	Parameters  []ParamSpec   `yaml:"parameters,omitempty" toml:"parameters" json:"parameters,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty" toml:"timeout" json:"-"`
}

// Param returns the spec named name.
func (d *Descriptor) Param(name string) (ParamSpec, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Invocation is a validated call: a binary and its argument vector.
type Invocation struct {
	Skill      string
	Binary     string
	Argv       []string
	Target     string
	Parameters map[string]interface{}
	Timeout    time.Duration
}
