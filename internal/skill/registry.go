package skill

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Registry is the fixed set of skills the gateway may run. It is built once
// at start-up and never mutated, so reads need no locking.
type Registry struct {
	skills map[string]Descriptor
	names  []string
}

// NewRegistry checks every descriptor and builds the registry.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		skills: make(map[string]Descriptor, len(descriptors)),
	}

	for i := range descriptors {
		d := descriptors[i]
		if err := prepare(&d); err != nil {
			return nil, fmt.Errorf("skill %q: %w", d.Name, err)
		}
		if _, exists := r.skills[d.Name]; exists {
			return nil, fmt.Errorf("duplicate skill: %s", d.Name)
		}
		r.skills[d.Name] = d
		r.names = append(r.names, d.Name)
	}
	sort.Strings(r.names)

	return r, nil
}

// Lookup retrieves a skill by name
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, exists := r.skills[name]
	if !exists {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrSkillNotFound, name)
	}
	return d.clone(), nil
}

// Validate looks up name and validates the call against it.
func (r *Registry) Validate(name, target string, params map[string]interface{}) (*Invocation, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return Validate(d, target, params)
}

// Names returns all registered skill names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// List returns all descriptors, sorted by name.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.names))
	for _, name := range r.names {
		d := r.skills[name]
		out = append(out, d.clone())
	}
	return out
}

// Count returns the number of registered skills
func (r *Registry) Count() int {
	return len(r.names)
}

// clone copies the slices so callers cannot reach registry state.
func (d Descriptor) clone() Descriptor {
	d.Args = append([]string(nil), d.Args...)
	params := make([]ParamSpec, len(d.Parameters))
	for i, p := range d.Parameters {
		p.Values = append([]string(nil), p.Values...)
		params[i] = p
	}
	d.Parameters = params
	return d
}

func prepare(d *Descriptor) error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if strings.TrimSpace(d.Binary) == "" {
		return fmt.Errorf("binary cannot be empty")
	}
	if !knownTarget(d.Target) {
		return fmt.Errorf("unknown target class %q", d.Target)
	}
	if d.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}

	hasTarget := false
	for _, tok := range d.Args {
		if strings.Contains(tok, PlaceholderTarget) {
			hasTarget = true
		}
		if tok != PlaceholderParams && strings.Contains(tok, PlaceholderParams) {
			return fmt.Errorf("%s must be a whole argument, got %q", PlaceholderParams, tok)
		}
	}
	if !hasTarget {
		return fmt.Errorf("args never reference %s", PlaceholderTarget)
	}

	d.Args = append([]string(nil), d.Args...)
	params := make([]ParamSpec, len(d.Parameters))
	seen := make(map[string]bool, len(d.Parameters))
	for i, p := range d.Parameters {
		if err := prepareParam(&p); err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		params[i] = p
	}
	d.Parameters = params

	return nil
}

func prepareParam(p *ParamSpec) error {
	if p.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if p.Flag == "" {
		return fmt.Errorf("flag cannot be empty")
	}
	if !strings.HasPrefix(p.Flag, "-") {
		return fmt.Errorf("flag %q must start with '-'", p.Flag)
	}

	switch p.Type {
	case ParamString:
		if p.Pattern != "" {
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				return fmt.Errorf("bad pattern: %w", err)
			}
			p.re = re
		}
	case ParamInt:
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return fmt.Errorf("min %d greater than max %d", *p.Min, *p.Max)
		}
	case ParamBool:
		if p.Join {
			return fmt.Errorf("bool parameters cannot join a value")
		}
	case ParamEnum:
		if len(p.Values) == 0 {
			return fmt.Errorf("enum needs values")
		}
		p.Values = append([]string(nil), p.Values...)
	default:
		return fmt.Errorf("unknown type %q", p.Type)
	}
	return nil
}
