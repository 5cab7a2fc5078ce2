package skill

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Validate checks target and params against d and builds the argument
// vector. Each value lands in its own argv element; nothing is ever joined
// into a command line.
func Validate(d Descriptor, target string, params map[string]interface{}) (*Invocation, error) {
	target, err := validateTarget(d.Target, target)
	if err != nil {
		return nil, err
	}

	for key := range params {
		if _, ok := d.Param(key); !ok {
			return nil, invalid("parameters."+key, "unknown parameter")
		}
	}

	normalized := make(map[string]interface{}, len(params))
	var paramArgv []string
	for _, spec := range d.Parameters {
		raw, ok := params[spec.Name]
		if !ok || raw == nil {
			continue
		}
		value, args, err := validateParam(spec, raw)
		if err != nil {
			return nil, err
		}
		normalized[spec.Name] = value
		paramArgv = append(paramArgv, args...)
	}

	argv := make([]string, 0, len(d.Args)+len(paramArgv))
	expanded := false
	for _, tok := range d.Args {
		if tok == PlaceholderParams {
			argv = append(argv, paramArgv...)
			expanded = true
			continue
		}
		argv = append(argv, strings.ReplaceAll(tok, PlaceholderTarget, target))
	}
	if !expanded {
		argv = append(argv, paramArgv...)
	}

	return &Invocation{
		Skill:      d.Name,
		Binary:     d.Binary,
		Argv:       argv,
		Target:     target,
		Parameters: normalized,
		Timeout:    d.Timeout,
	}, nil
}

func validateTarget(class TargetClass, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", invalid("target", "cannot be empty")
	}
	if len(target) > MaxTargetLength {
		return "", invalid("target", "longer than %d bytes", MaxTargetLength)
	}
	if strings.HasPrefix(target, "-") {
		return "", invalid("target", "cannot start with '-'")
	}
	if r, bad := firstForbidden(target, metaFor(class)); bad {
		return "", invalid("target", "forbidden character %q", r)
	}
	if !checkTarget(class, target) {
		return "", invalid("target", "not a valid %s", class)
	}
	return target, nil
}

func validateParam(spec ParamSpec, raw interface{}) (interface{}, []string, error) {
	field := "parameters." + spec.Name

	switch spec.Type {
	case ParamBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, nil, invalid(field, "expected a boolean")
		}
		if !b {
			return false, nil, nil
		}
		return true, []string{spec.Flag}, nil

	case ParamInt:
		n, ok := toInt(raw)
		if !ok {
			return nil, nil, invalid(field, "expected an integer")
		}
		if spec.Min != nil && n < *spec.Min {
			return nil, nil, invalid(field, "must be >= %d", *spec.Min)
		}
		if spec.Max != nil && n > *spec.Max {
			return nil, nil, invalid(field, "must be <= %d", *spec.Max)
		}
		return n, flagArgs(spec, strconv.FormatInt(n, 10)), nil

	case ParamEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, nil, invalid(field, "expected a string")
		}
		for _, allowed := range spec.Values {
			if s == allowed {
				return s, flagArgs(spec, s), nil
			}
		}
		return nil, nil, invalid(field, "must be one of %s", strings.Join(spec.Values, ", "))

	case ParamString:
		s, ok := raw.(string)
		if !ok {
			return nil, nil, invalid(field, "expected a string")
		}
		limit := spec.MaxLength
		if limit <= 0 || limit > MaxTargetLength {
			limit = MaxTargetLength
		}
		switch {
		case s == "":
			return nil, nil, invalid(field, "cannot be empty")
		case len(s) > limit:
			return nil, nil, invalid(field, "longer than %d bytes", limit)
		case strings.HasPrefix(s, "-"):
			return nil, nil, invalid(field, "cannot start with '-'")
		}
		if r, bad := firstForbidden(s, shellMeta); bad {
			return nil, nil, invalid(field, "forbidden character %q", r)
		}
		if re := spec.pattern(); re != nil && !re.MatchString(s) {
			return nil, nil, invalid(field, "does not match %s", spec.Pattern)
		}
		return s, flagArgs(spec, s), nil
	}

	return nil, nil, invalid(field, "unsupported type %q", spec.Type)
}

func flagArgs(spec ParamSpec, value string) []string {
	if spec.Join {
		return []string{spec.Flag + value}
	}
	return []string{spec.Flag, value}
}

// pattern returns the compiled pattern, compiling on demand for descriptors
// that never went through a registry.
func (p ParamSpec) pattern() *regexp.Regexp {
	if p.re != nil || p.Pattern == "" {
		return p.re
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		// Fail closed: a pattern that cannot compile matches nothing.
		return regexp.MustCompile(`$^`)
	}
	return re
}

func toInt(raw interface{}) (int64, bool) {
	switch n := raw.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
